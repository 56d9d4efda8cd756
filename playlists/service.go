// Package playlists serves the provider's playlist listings through the
// shared page cache and decorates them with the caller's selection.
package playlists

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/internal/utils"
	"github.com/jrsteele09/go-playlist-gateway/pagetoken"
	"github.com/jrsteele09/go-playlist-gateway/provider"
	"github.com/jrsteele09/go-playlist-gateway/providercache"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

const (
	playlistsResource = "playlists"
	defaultCacheTTL   = 60 * time.Minute
)

// SessionResolver authorizes a session and hands out a fresh access token.
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (string, error)
	Touch(ctx context.Context, sessionID string) (token.Set, error)
}

// Provider is the part of the provider client the read path needs.
type Provider interface {
	Playlists(ctx context.Context, accessToken string, offset int) (provider.PlaylistPage, error)
	PlaylistTracks(ctx context.Context, accessToken, playlistID string, offset int) (provider.TrackPage, error)
}

// PageFetcher reads through the shared provider cache.
type PageFetcher interface {
	Fetch(ctx context.Context, sessionID, providerUserID, key string, ttl time.Duration, fill providercache.FillFunc) ([]byte, error)
}

// SelectionLister reads a session's selected playlist ids.
type SelectionLister interface {
	ListSelection(ctx context.Context, sessionID string) ([]string, error)
}

// PageTokens issues and verifies continuation tokens.
type PageTokens interface {
	Encode(cursor pagetoken.Cursor) (string, error)
	Decode(tokenString, providerUserID, resource string) (pagetoken.Cursor, error)
}

type Item struct {
	PlaylistID string `json:"playlistId"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Owner      string `json:"owner,omitempty"`
	TrackCount int    `json:"trackCount"`
	Selected   bool   `json:"selected"`
}

// Page is one page of the caller's playlists. An empty NextPageToken marks
// the last page.
type Page struct {
	Items         []Item `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

type Track struct {
	TrackID  string   `json:"trackId"`
	Name     string   `json:"name"`
	Artists  []string `json:"artists"`
	Album    string   `json:"album,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

type TracksPage struct {
	PlaylistID string  `json:"playlistId"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
	NextOffset *int    `json:"nextOffset"`
	Tracks     []Track `json:"tracks"`
}

// cachedPlaylists is the identity-wide payload stored in the cache; it never
// carries per-session state.
type cachedPlaylists struct {
	Items      []Item `json:"items"`
	NextOffset *int   `json:"nextOffset,omitempty"`
}

type Service struct {
	sessions   SessionResolver
	pages      PageFetcher
	provider   Provider
	selections SelectionLister
	tokens     PageTokens
	cacheTTL   time.Duration
	logger     zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithCacheTTL sets how long a filled page stays shared.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cacheTTL = ttl
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(sessions SessionResolver, pages PageFetcher, p Provider, selections SelectionLister, tokens PageTokens, options ...ServiceOption) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("[playlists NewService] session resolver is required")
	}
	if pages == nil {
		return nil, errors.New("[playlists NewService] page fetcher is required")
	}
	if p == nil {
		return nil, errors.New("[playlists NewService] provider is required")
	}
	if selections == nil {
		return nil, errors.New("[playlists NewService] selection lister is required")
	}
	if tokens == nil {
		return nil, errors.New("[playlists NewService] page token codec is required")
	}
	s := &Service{
		sessions:   sessions,
		pages:      pages,
		provider:   p,
		selections: selections,
		tokens:     tokens,
		cacheTTL:   defaultCacheTTL,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// ListPlaylists returns the page identified by pageToken, or the first page
// when pageToken is empty.
func (s *Service) ListPlaylists(ctx context.Context, sessionID, pageToken string) (Page, error) {
	providerUserID, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return Page{}, err
	}

	offset := 0
	if pageToken != "" {
		cursor, err := s.tokens.Decode(pageToken, providerUserID, playlistsResource)
		if err != nil {
			return Page{}, err
		}
		offset = cursor.Offset
	}

	payload, err := s.pages.Fetch(ctx, sessionID, providerUserID, providercache.PlaylistsKey(offset), s.cacheTTL,
		func(ctx context.Context) ([]byte, error) {
			set, err := s.sessions.Touch(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			page, err := s.provider.Playlists(ctx, set.AccessToken, offset)
			if err != nil {
				return nil, err
			}
			return json.Marshal(toCachedPlaylists(page))
		})
	if err != nil {
		return Page{}, err
	}

	var cached cachedPlaylists
	if err := json.Unmarshal(payload, &cached); err != nil {
		return Page{}, errors.Wrapf(errors.ErrInternal, "decoding cached playlists: %v", err)
	}

	selected, err := s.selectedSet(ctx, sessionID)
	if err != nil {
		return Page{}, err
	}
	out := Page{Items: make([]Item, 0, len(cached.Items))}
	for _, item := range cached.Items {
		_, item.Selected = selected[item.PlaylistID]
		out.Items = append(out.Items, item)
	}
	if cached.NextOffset != nil {
		out.NextPageToken, err = s.tokens.Encode(pagetoken.Cursor{
			ProviderUserID: providerUserID,
			Resource:       playlistsResource,
			Offset:         *cached.NextOffset,
		})
		if err != nil {
			return Page{}, err
		}
	}
	s.logger.Debug().Str("event", "playlists.listed").Str("session_id", sessionID).Int("offset", offset).Int("items", len(out.Items)).Msg("playlists page served")
	return out, nil
}

// ListPlaylistTracks returns one page of a playlist's tracks starting at offset.
func (s *Service) ListPlaylistTracks(ctx context.Context, sessionID, playlistID string, offset int) (TracksPage, error) {
	playlistID = strings.TrimSpace(playlistID)
	if playlistID == "" {
		return TracksPage{}, errors.Wrapf(errors.ErrInvalidRequest, "playlist id is required")
	}
	if offset < 0 {
		return TracksPage{}, errors.Wrapf(errors.ErrInvalidRequest, "offset must not be negative")
	}
	providerUserID, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return TracksPage{}, err
	}

	payload, err := s.pages.Fetch(ctx, sessionID, providerUserID, providercache.TracksKey(playlistID, offset), s.cacheTTL,
		func(ctx context.Context) ([]byte, error) {
			set, err := s.sessions.Touch(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			page, err := s.provider.PlaylistTracks(ctx, set.AccessToken, playlistID, offset)
			if err != nil {
				return nil, err
			}
			return json.Marshal(toTracksPage(playlistID, offset, page))
		})
	if err != nil {
		return TracksPage{}, err
	}

	var out TracksPage
	if err := json.Unmarshal(payload, &out); err != nil {
		return TracksPage{}, errors.Wrapf(errors.ErrInternal, "decoding cached tracks: %v", err)
	}
	return out, nil
}

func (s *Service) selectedSet(ctx context.Context, sessionID string) (map[string]struct{}, error) {
	ids, err := s.selections.ListSelection(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func toCachedPlaylists(page provider.PlaylistPage) cachedPlaylists {
	out := cachedPlaylists{Items: make([]Item, 0, len(page.Items))}
	for _, p := range page.Items {
		item := Item{PlaylistID: p.ID, Name: p.Name}
		if len(p.Images) > 0 {
			item.ImageURL = p.Images[0].URL
		}
		if p.Owner != nil {
			item.Owner = p.Owner.DisplayName
			if item.Owner == "" {
				item.Owner = p.Owner.ID
			}
		}
		if p.Tracks != nil {
			item.TrackCount = utils.Value(p.Tracks.Total)
		}
		out.Items = append(out.Items, item)
	}
	if next, ok := provider.NextOffset(page.Next); ok {
		out.NextOffset = utils.Ptr(next)
	}
	return out
}

func toTracksPage(playlistID string, offset int, page provider.TrackPage) TracksPage {
	out := TracksPage{
		PlaylistID: playlistID,
		Limit:      page.Limit,
		Offset:     offset,
		Tracks:     make([]Track, 0, len(page.Items)),
	}
	for _, it := range page.Items {
		// local files and removed tracks come back without a track object
		if it.Track == nil {
			continue
		}
		t := Track{TrackID: it.Track.ID, Name: it.Track.Name, Artists: make([]string, 0, len(it.Track.Artists))}
		for _, a := range it.Track.Artists {
			t.Artists = append(t.Artists, a.Name)
		}
		if it.Track.Album != nil {
			t.Album = it.Track.Album.Name
			if len(it.Track.Album.Images) > 0 {
				t.ImageURL = it.Track.Album.Images[0].URL
			}
		}
		out.Tracks = append(out.Tracks, t)
	}
	if next, ok := provider.NextOffset(page.Next); ok {
		out.NextOffset = utils.Ptr(next)
	}
	return out
}
