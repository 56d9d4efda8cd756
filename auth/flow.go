// Package auth runs the PKCE authorization flow against the provider and
// tears sessions down again at logout.
package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/config"
	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/internal/keylock"
	"github.com/jrsteele09/go-playlist-gateway/pkce"
	"github.com/jrsteele09/go-playlist-gateway/provider"
	"github.com/jrsteele09/go-playlist-gateway/sessions"
	"github.com/jrsteele09/go-playlist-gateway/token"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const maxDeviceInfoLength = 256

// Provider is the part of the provider client the flow needs.
type Provider interface {
	AuthCodeURL(state, verifier string, scopes []string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	Profile(ctx context.Context, accessToken string) (provider.Profile, error)
}

// TokenSealer prepares token sets for storage.
type TokenSealer interface {
	Seal(set token.Set) (token.Set, error)
}

// StartResult is returned to the client that starts a flow.
type StartResult struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}

// FlowCoordinator owns the authorization code + PKCE flow.
type FlowCoordinator struct {
	repo         Repo
	provider     Provider
	sealer       TokenSealer
	states       *keylock.Locker
	pkceTTL      time.Duration
	sessionTTL   time.Duration
	deepLinkBase string
	nowTime      func() time.Time
	logger       zerolog.Logger
}

func NewFlowCoordinator(repo Repo, p Provider, sealer TokenSealer, cfg config.SecurityConfig, opts ...Option) (*FlowCoordinator, error) {
	if repo == nil {
		return nil, errors.New("[NewFlowCoordinator] repo is required")
	}
	if p == nil {
		return nil, errors.New("[NewFlowCoordinator] provider is required")
	}
	if sealer == nil {
		return nil, errors.New("[NewFlowCoordinator] sealer is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewFlowCoordinator] config is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &FlowCoordinator{
		repo:         repo,
		provider:     p,
		sealer:       sealer,
		states:       keylock.New(),
		pkceTTL:      cfg.GetPKCETTL(),
		sessionTTL:   cfg.GetSessionTTL(),
		deepLinkBase: cfg.GetDeepLinkBase(),
		nowTime:      o.nowTime,
		logger:       o.logger,
	}, nil
}

// StartAuth records a new PKCE entry and returns the URL the user agent
// must visit.
func (f *FlowCoordinator) StartAuth(ctx context.Context, scopes []string) (StartResult, error) {
	scopes, err := provider.ValidateScopes(scopes)
	if err != nil {
		return StartResult{}, err
	}
	entry, err := pkce.NewEntry(scopes, f.nowTime(), f.pkceTTL)
	if err != nil {
		return StartResult{}, errors.Wrapf(errors.ErrInternal, "creating pkce entry: %v", err)
	}
	if err := f.repo.SavePKCE(ctx, entry); err != nil {
		return StartResult{}, err
	}
	f.logger.Info().Str("event", "auth.started").Strs("scopes", scopes).Msg("authorization flow started")
	return StartResult{
		AuthorizationURL: f.provider.AuthCodeURL(entry.State, entry.CodeVerifier, scopes),
		State:            entry.State,
	}, nil
}

// HandleCallback redeems code for the flow identified by state and creates a
// session. The PKCE entry is consumed in the same transaction that creates
// the session, so a state can produce at most one session. If the provider
// refuses the code nothing is written and the entry stays until it expires.
func (f *FlowCoordinator) HandleCallback(ctx context.Context, code, state, deviceInfo string) (string, error) {
	if state == "" {
		return "", errors.Wrapf(errors.ErrUnknownOrExpiredState, "missing state")
	}
	if code == "" {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "missing authorization code")
	}

	unlock := f.states.Lock(state)
	defer unlock()

	entry, err := f.repo.GetPKCE(ctx, state)
	if err != nil {
		f.logger.Warn().Str("event", "auth.failed").Str("reason", "unknown_state").Msg("callback with unknown state")
		return "", err
	}
	if entry.Expired(f.nowTime()) {
		if _, err := f.repo.TakePKCE(ctx, state); err != nil && !errors.Is(err, errors.ErrUnknownOrExpiredState) {
			return "", err
		}
		f.logger.Warn().Str("event", "auth.failed").Str("reason", "expired_state").Msg("callback with expired state")
		return "", errors.Wrapf(errors.ErrUnknownOrExpiredState, "state expired")
	}

	tok, err := f.provider.Exchange(ctx, code, entry.CodeVerifier)
	if err != nil {
		f.logger.Warn().Str("event", "auth.failed").Str("reason", "exchange").Err(err).Msg("code exchange failed")
		return "", err
	}
	profile, err := f.provider.Profile(ctx, tok.AccessToken)
	if err != nil {
		f.logger.Warn().Str("event", "auth.failed").Str("reason", "profile").Err(err).Msg("profile lookup failed")
		if errors.Is(err, errors.ErrProviderTimeout) || errors.Is(err, errors.ErrProviderUnavailable) {
			return "", err
		}
		return "", errors.Wrapf(errors.ErrProviderExchange, "fetching profile: %v", err)
	}

	sessionID, err := sessions.NewID()
	if err != nil {
		return "", errors.Wrapf(errors.ErrInternal, "creating session id: %v", err)
	}
	now := f.nowTime()
	session := sessions.Session{
		ID:             sessionID,
		ProviderUserID: profile.ID,
		DeviceInfo:     truncate(deviceInfo, maxDeviceInfoLength),
		CreatedAt:      now,
		ExpiresAt:      now.Add(f.sessionTTL),
	}
	set := token.Set{
		SessionID:    sessionID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        strings.Join(entry.Scopes, " "),
		ExpiresAt:    tok.Expiry,
		UpdatedAt:    now,
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		set.Scope = scope
	}
	sealed, err := f.sealer.Seal(set)
	if err != nil {
		return "", err
	}

	if err := f.repo.CompleteAuth(ctx, state, session, sealed); err != nil {
		f.logger.Warn().Str("event", "auth.failed").Str("reason", "complete").Err(err).Msg("could not complete authorization")
		return "", err
	}
	f.logger.Info().Str("event", "auth.succeeded").Str("session_id", sessionID).Str("provider_user_id", profile.ID).Msg("session created")
	return sessionID, nil
}

// DeepLink is where the callback sends the user agent once the session exists.
func (f *FlowCoordinator) DeepLink(sessionID string) string {
	sep := "?"
	if strings.Contains(f.deepLinkBase, "?") {
		sep = "&"
	}
	return f.deepLinkBase + sep + "sid=" + url.QueryEscape(sessionID)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
