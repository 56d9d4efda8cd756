package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-playlist-gateway/auth"
	"github.com/jrsteele09/go-playlist-gateway/internal/config"
	"github.com/jrsteele09/go-playlist-gateway/internal/keylock"
	"github.com/jrsteele09/go-playlist-gateway/pagetoken"
	"github.com/jrsteele09/go-playlist-gateway/playlists"
	"github.com/jrsteele09/go-playlist-gateway/provider"
	"github.com/jrsteele09/go-playlist-gateway/providercache"
	"github.com/jrsteele09/go-playlist-gateway/providercache/rediscache"
	"github.com/jrsteele09/go-playlist-gateway/selection"
	"github.com/jrsteele09/go-playlist-gateway/server"
	"github.com/jrsteele09/go-playlist-gateway/sessions"
	"github.com/jrsteele09/go-playlist-gateway/store"
	"github.com/jrsteele09/go-playlist-gateway/store/memory"
	"github.com/jrsteele09/go-playlist-gateway/store/postgres"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

// app holds the wired components and the resources to release on exit.
type app struct {
	store    store.Store
	services server.Services
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newApp(ctx context.Context, c config.Config, logger zerolog.Logger) (a *app, returnError error) {
	a = &app{}
	defer func() {
		if returnError != nil {
			a.close()
		}
	}()

	st, err := openStore(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	var cache providercache.Cache = st
	if c.GetCacheBackend() == config.CacheBackendRedis {
		rc, err := rediscache.New(ctx, rediscache.Config{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		if err != nil {
			return nil, err
		}
		cache = rc
		a.closers = append(a.closers, rc.Close)
	}

	sealer, err := newSealer(c, logger)
	if err != nil {
		return nil, err
	}
	codec, err := newPageTokenCodec(c, logger)
	if err != nil {
		return nil, err
	}

	client, err := provider.New(c, provider.WithLogger(logger.With().Str("component", "provider").Logger()))
	if err != nil {
		return nil, err
	}

	// Refresh and logout serialize on the same per-session locks.
	sessionLocks := keylock.New()
	authLogger := logger.With().Str("component", "auth").Logger()

	vault, err := token.NewVault(st, client, sealer,
		token.WithRefreshThreshold(c.GetRefreshThreshold()),
		token.WithSessionLocks(sessionLocks),
		token.WithLogger(authLogger),
	)
	if err != nil {
		return nil, err
	}
	registry, err := sessions.NewRegistry(st, vault)
	if err != nil {
		return nil, err
	}
	reader, err := providercache.NewReader(cache, st, providercache.WithLogger(logger.With().Str("component", "cache").Logger()))
	if err != nil {
		return nil, err
	}
	selections, err := selection.NewService(st, registry, selection.WithLogger(logger.With().Str("component", "selection").Logger()))
	if err != nil {
		return nil, err
	}
	playlistService, err := playlists.NewService(registry, reader, client, st, codec,
		playlists.WithCacheTTL(c.GetCacheTTL()),
		playlists.WithLogger(logger.With().Str("component", "playlists").Logger()),
	)
	if err != nil {
		return nil, err
	}
	flow, err := auth.NewFlowCoordinator(st, client, vault, c,
		auth.WithLogger(authLogger),
		auth.WithSessionLocks(sessionLocks),
	)
	if err != nil {
		return nil, err
	}
	logout, err := auth.NewLogoutCoordinator(st, vault, c,
		auth.WithLogger(authLogger),
		auth.WithSessionLocks(sessionLocks),
	)
	if err != nil {
		return nil, err
	}

	a.services = server.Services{
		Auth:      flow,
		Logout:    logout,
		Playlists: playlistService,
		Selection: selections,
	}
	return a, nil
}

func openStore(ctx context.Context, c config.Config, logger zerolog.Logger) (store.Store, error) {
	if c.GetStoreDriver() == config.StoreDriverPostgres {
		return postgres.Open(ctx, c.GetDatabaseDSN(), postgres.WithLogger(logger.With().Str("component", "store").Logger()))
	}
	return memory.New(), nil
}

// newSealer uses the configured key, or an ephemeral one in DEV.
func newSealer(c config.Config, logger zerolog.Logger) (*token.Sealer, error) {
	if key := c.GetTokenSealingKey(); key != "" {
		return token.NewSealerFromBase64(key)
	}
	logger.Warn().Msg("TOKEN_SEALING_KEY not set, sealed tokens will not survive a restart")
	return token.NewRandomSealer()
}

func newPageTokenCodec(c config.Config, logger zerolog.Logger) (*pagetoken.Codec, error) {
	if secret := c.GetPageTokenSecret(); secret != "" {
		return pagetoken.NewCodec([]byte(secret))
	}
	logger.Warn().Msg("PAGE_TOKEN_SECRET not set, page tokens will not survive a restart")
	return pagetoken.NewRandomCodec()
}
