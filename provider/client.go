// Package provider talks to the music provider's authorization server and
// Web API. Provider specific failures are translated to the gateway's error
// taxonomy here and never leave the package in raw form.
package provider

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/config"
	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client is a provider API client. Every call is bounded by the configured
// timeout, paced by a shared rate limiter and never retried.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	apiBase    string
	limiter    *rate.Limiter
	timeout    time.Duration
	pageSize   int
	logger     zerolog.Logger
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every provider call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(cfg config.ProviderConfig, options ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("[provider New] config is required")
	}
	if cfg.GetClientID() == "" {
		return nil, errors.New("[provider New] client id is required")
	}
	limit := rate.Inf
	if cfg.GetProviderRate() > 0 {
		limit = rate.Limit(cfg.GetProviderRate())
	}
	burst := cfg.GetProviderBurst()
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:    cfg.GetClientID(),
			RedirectURL: cfg.GetRedirectURI(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.GetAuthURL(),
				TokenURL:  cfg.GetTokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{},
		apiBase:    strings.TrimRight(cfg.GetAPIBaseURL(), "/"),
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    cfg.GetProviderTimeout(),
		pageSize:   cfg.GetPageSize(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// PageSize is the number of items requested per provider page.
func (c *Client) PageSize() int {
	return c.pageSize
}

// AuthCodeURL builds the authorization URL for a PKCE request.
func (c *Client) AuthCodeURL(state, verifier string, scopes []string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("scope", strings.Join(scopes, " ")),
	)
}

// Exchange redeems an authorization code with its PKCE verifier.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, c.tokenError(ctx, "exchange", err, errors.ErrProviderExchange)
	}
	return tok, nil
}

// Refresh redeems a refresh token. A refusal from the provider means the
// user has to authenticate again.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, c.tokenError(ctx, "refresh", err, errors.ErrReauthRequired)
	}
	return tok, nil
}

// Profile returns the profile of the user owning accessToken.
func (c *Client) Profile(ctx context.Context, accessToken string) (Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, accessToken, "/me", nil, &p); err != nil {
		return Profile{}, err
	}
	if p.ID == "" {
		return Profile{}, errors.Wrapf(errors.ErrProviderUnavailable, "profile without id")
	}
	return p, nil
}

// Playlists returns the current user's playlists starting at offset.
func (c *Client) Playlists(ctx context.Context, accessToken string, offset int) (PlaylistPage, error) {
	var page PlaylistPage
	err := c.getJSON(ctx, accessToken, "/me/playlists", c.pageQuery(offset), &page)
	return page, err
}

// PlaylistTracks returns the tracks of playlistID starting at offset.
func (c *Client) PlaylistTracks(ctx context.Context, accessToken, playlistID string, offset int) (TrackPage, error) {
	var page TrackPage
	err := c.getJSON(ctx, accessToken, "/playlists/"+url.PathEscape(playlistID)+"/tracks", c.pageQuery(offset), &page)
	return page, err
}

func (c *Client) pageQuery(offset int) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(errors.ErrProviderTimeout, "rate limiter: %v", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, path string, query url.Values, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.wait(ctx); err != nil {
		return err
	}

	u := c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrapf(errors.ErrInternal, "building provider request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		c.logger.Warn().Str("event", "provider.api_error").Str("path", path).Int("status", resp.StatusCode).Msg("provider api call failed")
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return c.transportError(ctx, path, err)
		}
		return errors.Wrapf(errors.ErrProviderUnavailable, "decoding %s: %v", path, err)
	}
	return nil
}

func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return errors.Wrapf(errors.ErrReauthRequired, "provider rejected access token")
	case status == http.StatusNotFound:
		return errors.Wrapf(errors.ErrNotFound, "provider resource not found")
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.Wrapf(errors.ErrProviderUnavailable, "provider status %d", status)
	default:
		return errors.Wrapf(errors.ErrProviderUnavailable, "unexpected provider status %d", status)
	}
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(errors.ErrProviderTimeout, "%s", op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(errors.ErrProviderTimeout, "%s", op)
	}
	return errors.Wrapf(errors.ErrProviderUnavailable, "%s: %v", op, err)
}

// tokenError maps a token endpoint failure. refused is returned when the
// provider answered and said no.
func (c *Client) tokenError(ctx context.Context, op string, err error, refused error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		c.logger.Warn().Str("event", "provider.token_error").Str("op", op).Int("status", status).Str("error_code", re.ErrorCode).Msg("token endpoint refused request")
		if status == http.StatusTooManyRequests || status >= 500 {
			return errors.Wrapf(errors.ErrProviderUnavailable, "%s: provider status %d", op, status)
		}
		return errors.Wrapf(refused, "%s: %s", op, re.ErrorCode)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return c.transportError(ctx, op, err)
	}
	return errors.Wrapf(refused, "%s: %v", op, err)
}
