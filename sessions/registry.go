package sessions

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

// TokenRefresher returns a token set that is fresh enough to call the provider.
type TokenRefresher interface {
	EnsureFresh(ctx context.Context, sessionID string) (token.Set, error)
}

// Registry is the single authorization gate for session-scoped operations.
type Registry struct {
	repo    Repo
	tokens  TokenRefresher
	nowTime func() time.Time
}

// RegistryOption defines a function type to modify the Registry instance.
type RegistryOption func(*Registry)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

func NewRegistry(repo Repo, tokens TokenRefresher, options ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[NewRegistry] session repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewRegistry] token refresher is required")
	}
	r := &Registry{
		repo:    repo,
		tokens:  tokens,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve returns the provider user id of a live session.
func (r *Registry) Resolve(ctx context.Context, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.Wrapf(errors.ErrInvalidSession, "missing session id")
	}
	s, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if s.Expired(r.nowTime()) {
		return "", errors.Wrapf(errors.ErrInvalidSession, "session expired")
	}
	return s.ProviderUserID, nil
}

// Touch resolves the session and returns its token set, refreshed if needed.
func (r *Registry) Touch(ctx context.Context, sessionID string) (token.Set, error) {
	if _, err := r.Resolve(ctx, sessionID); err != nil {
		return token.Set{}, err
	}
	return r.tokens.EnsureFresh(ctx, sessionID)
}
