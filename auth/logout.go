package auth

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/config"
	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/internal/keylock"
	"github.com/jrsteele09/go-playlist-gateway/token"
	"github.com/rs/zerolog"
)

const logoutReason = "logout"

// TokenReader reads the plaintext token set of a session.
type TokenReader interface {
	Get(ctx context.Context, sessionID string) (token.Set, error)
}

// LogoutCoordinator revokes a session.
type LogoutCoordinator struct {
	repo      Repo
	tokens    TokenReader
	locks     *keylock.Locker
	retention time.Duration
	nowTime   func() time.Time
	logger    zerolog.Logger
}

func NewLogoutCoordinator(repo Repo, tokens TokenReader, cfg config.SecurityConfig, opts ...Option) (*LogoutCoordinator, error) {
	if repo == nil {
		return nil, errors.New("[NewLogoutCoordinator] repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewLogoutCoordinator] token reader is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewLogoutCoordinator] config is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &LogoutCoordinator{
		repo:      repo,
		tokens:    tokens,
		locks:     o.sessionLocks,
		retention: cfg.GetDenylistRetention(),
		nowTime:   o.nowTime,
		logger:    o.logger,
	}, nil
}

// Logout denylists the session's refresh token and removes the session with
// everything bound to it in one transaction. Calling it for a session that
// is already gone returns errors.ErrInvalidSession, which transports may
// report as success via IsAlreadyLoggedOut.
func (l *LogoutCoordinator) Logout(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.Wrapf(errors.ErrInvalidSession, "missing session id")
	}

	unlock := l.locks.Lock(sessionID)
	defer unlock()

	set, err := l.tokens.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	now := l.nowTime()
	var denied token.Denylisted
	if set.RefreshToken != "" {
		denied = token.Denylisted{
			Hash:      token.HashRefreshToken(set.RefreshToken),
			Reason:    logoutReason,
			AddedAt:   now,
			ExpiresAt: now.Add(l.retention),
		}
	}
	if err := l.repo.Logout(ctx, sessionID, denied); err != nil {
		return err
	}
	l.logger.Info().Str("event", "auth.logout").Str("session_id", sessionID).Msg("session revoked")
	return nil
}

// IsAlreadyLoggedOut reports whether err means the session no longer exists.
func IsAlreadyLoggedOut(err error) bool {
	return errors.Is(err, errors.ErrInvalidSession)
}
