// Package selection maintains the set of playlists a session has picked.
package selection

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/rs/zerolog"
)

// SessionResolver authorizes a session id.
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (string, error)
}

// Service applies selection operations for live sessions. Playlist ids are
// treated as opaque and are not checked against the provider.
type Service struct {
	repo     Repo
	sessions SessionResolver
	nowTime  func() time.Time
	logger   zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(repo Repo, sessions SessionResolver, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[NewService] selection repo is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewService] session resolver is required")
	}
	s := &Service{
		repo:     repo,
		sessions: sessions,
		nowTime:  time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Replace makes the selection exactly the given ids.
func (s *Service) Replace(ctx context.Context, sessionID string, playlistIDs []string) ([]string, error) {
	if _, err := s.sessions.Resolve(ctx, sessionID); err != nil {
		return nil, err
	}
	ids := Normalize(playlistIDs)
	if err := s.repo.ReplaceSelection(ctx, sessionID, ids, s.nowTime()); err != nil {
		return nil, err
	}
	s.audit("selection.replaced", sessionID).Int("count", len(ids)).Msg("selection replaced")
	return s.repo.ListSelection(ctx, sessionID)
}

// Add unions the given ids into the selection.
func (s *Service) Add(ctx context.Context, sessionID string, playlistIDs []string) ([]string, error) {
	if _, err := s.sessions.Resolve(ctx, sessionID); err != nil {
		return nil, err
	}
	ids := Normalize(playlistIDs)
	var added int64
	if len(ids) > 0 {
		var err error
		if added, err = s.repo.AddSelection(ctx, sessionID, ids, s.nowTime()); err != nil {
			return nil, err
		}
	}
	s.audit("selection.added", sessionID).Int("requested", len(ids)).Int64("added", added).Msg("selection added")
	return s.repo.ListSelection(ctx, sessionID)
}

// Remove subtracts the given ids from the selection. Absent ids are ignored.
func (s *Service) Remove(ctx context.Context, sessionID string, playlistIDs []string) ([]string, error) {
	if _, err := s.sessions.Resolve(ctx, sessionID); err != nil {
		return nil, err
	}
	ids := Normalize(playlistIDs)
	var removed int64
	if len(ids) > 0 {
		var err error
		if removed, err = s.repo.RemoveSelection(ctx, sessionID, ids); err != nil {
			return nil, err
		}
	}
	s.audit("selection.removed", sessionID).Int("requested", len(ids)).Int64("removed", removed).Msg("selection removed")
	return s.repo.ListSelection(ctx, sessionID)
}

// Clear empties the selection.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.Resolve(ctx, sessionID); err != nil {
		return err
	}
	if err := s.repo.ClearSelection(ctx, sessionID); err != nil {
		return err
	}
	s.audit("selection.cleared", sessionID).Msg("selection cleared")
	return nil
}

// List returns the selection in ascending id order.
func (s *Service) List(ctx context.Context, sessionID string) ([]string, error) {
	if _, err := s.sessions.Resolve(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListSelection(ctx, sessionID)
}

func (s *Service) audit(event, sessionID string) *zerolog.Event {
	return s.logger.Info().Str("event", event).Str("session_id", sessionID)
}

// Normalize trims ids, drops blanks and duplicates and sorts the result.
func Normalize(playlistIDs []string) []string {
	seen := make(map[string]struct{}, len(playlistIDs))
	out := make([]string, 0, len(playlistIDs))
	for _, id := range playlistIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
