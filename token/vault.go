package token

import (
	"context"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/internal/keylock"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshThreshold = 60 * time.Second

// Refresher redeems a refresh token at the provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Vault owns the token sets bound to sessions. It seals tokens at rest,
// refreshes access tokens shortly before they expire and refuses to redeem
// refresh tokens that were denylisted at logout.
type Vault struct {
	repo      Repo
	refresher Refresher
	sealer    *Sealer
	locks     *keylock.Locker
	group     singleflight.Group
	threshold time.Duration
	nowTime   func() time.Time
	logger    zerolog.Logger
}

// VaultOption defines a function type to modify the Vault instance.
type VaultOption func(*Vault)

// WithRefreshThreshold sets how long before expiry an access token is refreshed.
func WithRefreshThreshold(threshold time.Duration) VaultOption {
	return func(v *Vault) {
		v.threshold = threshold
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) VaultOption {
	return func(v *Vault) {
		v.nowTime = nowFunc
	}
}

// WithSessionLocks shares the per-session lock table with other components
// that mutate a session's tokens, such as logout.
func WithSessionLocks(locks *keylock.Locker) VaultOption {
	return func(v *Vault) {
		v.locks = locks
	}
}

func WithLogger(logger zerolog.Logger) VaultOption {
	return func(v *Vault) {
		v.logger = logger
	}
}

func NewVault(repo Repo, refresher Refresher, sealer *Sealer, options ...VaultOption) (*Vault, error) {
	if repo == nil {
		return nil, errors.New("[NewVault] token repo is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewVault] refresher is required")
	}
	if sealer == nil {
		return nil, errors.New("[NewVault] sealer is required")
	}

	v := &Vault{
		repo:      repo,
		refresher: refresher,
		sealer:    sealer,
		locks:     keylock.New(),
		threshold: defaultRefreshThreshold,
		nowTime:   time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(v)
	}
	return v, nil
}

// Seal prepares a token set for storage.
func (v *Vault) Seal(set Set) (Set, error) {
	sealed, err := v.sealer.SealSet(set)
	if err != nil {
		return Set{}, errors.Wrapf(errors.ErrInternal, "sealing tokens: %v", err)
	}
	return sealed, nil
}

// Get returns the plaintext token set bound to the session.
func (v *Vault) Get(ctx context.Context, sessionID string) (Set, error) {
	stored, err := v.repo.GetTokenSet(ctx, sessionID)
	if err != nil {
		return Set{}, err
	}
	set, err := v.sealer.OpenSet(stored)
	if err != nil {
		return Set{}, errors.Wrapf(errors.ErrInternal, "opening tokens for session: %v", err)
	}
	return set, nil
}

// EnsureFresh returns a token set whose access token is valid for at least
// the refresh threshold, refreshing it at the provider when needed.
// Concurrent callers for the same session share a single refresh.
func (v *Vault) EnsureFresh(ctx context.Context, sessionID string) (Set, error) {
	set, err := v.Get(ctx, sessionID)
	if err != nil {
		return Set{}, err
	}
	if !set.NeedsRefresh(v.nowTime(), v.threshold) {
		return set, nil
	}

	// The refresh runs detached from the first caller so its cancellation
	// does not fail the callers sharing it.
	ch := v.group.DoChan(sessionID, func() (any, error) {
		unlock := v.locks.Lock(sessionID)
		defer unlock()
		return v.refreshLocked(context.WithoutCancel(ctx), sessionID)
	})
	select {
	case <-ctx.Done():
		return Set{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Set{}, res.Err
		}
		return res.Val.(Set), nil
	}
}

func (v *Vault) refreshLocked(ctx context.Context, sessionID string) (Set, error) {
	// another caller may have refreshed while this one waited for the lock
	current, err := v.Get(ctx, sessionID)
	if err != nil {
		return Set{}, err
	}
	now := v.nowTime()
	if !current.NeedsRefresh(now, v.threshold) {
		return current, nil
	}
	if current.RefreshToken == "" {
		return Set{}, errors.Wrapf(errors.ErrReauthRequired, "session has no refresh token")
	}

	tok, err := v.Redeem(ctx, current.RefreshToken)
	if err != nil {
		v.logger.Warn().Str("event", "token.refresh_failed").Str("session_id", sessionID).Err(err).Msg("access token refresh failed")
		return Set{}, err
	}

	updated := Set{
		SessionID:    sessionID,
		AccessToken:  tok.AccessToken,
		RefreshToken: current.RefreshToken,
		Scope:        current.Scope,
		ExpiresAt:    tok.Expiry,
		UpdatedAt:    now,
	}
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		updated.Scope = scope
	}

	sealed, err := v.Seal(updated)
	if err != nil {
		return Set{}, err
	}
	if err := v.repo.UpdateTokenSet(ctx, sealed); err != nil {
		return Set{}, err
	}
	v.logger.Info().Str("event", "token.refreshed").Str("session_id", sessionID).Time("expires_at", updated.ExpiresAt).Msg("access token refreshed")
	return updated, nil
}

// Redeem exchanges a refresh token at the provider unless it is denylisted.
func (v *Vault) Redeem(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	denied, err := v.repo.IsDenylisted(ctx, HashRefreshToken(refreshToken), v.nowTime())
	if err != nil {
		return nil, err
	}
	if denied {
		v.logger.Warn().Str("event", "token.denylisted_replay").Msg("denylisted refresh token presented")
		return nil, errors.Wrapf(errors.ErrReauthRequired, "refresh token has been revoked")
	}
	return v.refresher.Refresh(ctx, refreshToken)
}
