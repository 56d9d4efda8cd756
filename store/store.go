// Package store defines the persistence contract shared by the memory and
// Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/auth"
	"github.com/jrsteele09/go-playlist-gateway/providercache"
	"github.com/jrsteele09/go-playlist-gateway/selection"
	"github.com/jrsteele09/go-playlist-gateway/sessions"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

// PurgeStats counts rows removed by one purge pass.
type PurgeStats struct {
	PKCEEntries int64
	Sessions    int64
	Denylist    int64
	CachePages  int64
}

// Total is the number of rows removed.
func (p PurgeStats) Total() int64 {
	return p.PKCEEntries + p.Sessions + p.Denylist + p.CachePages
}

// Store is everything the gateway persists.
type Store interface {
	auth.Repo
	sessions.Repo
	token.Repo
	providercache.Cache
	providercache.Linker
	selection.Repo

	// PurgeExpired removes PKCE entries, sessions (with everything bound to
	// them), denylist rows and cache pages that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (PurgeStats, error)
	Close() error
}
