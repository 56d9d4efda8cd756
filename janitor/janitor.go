// Package janitor periodically removes expired rows from the store.
package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/store"
)

const defaultInterval = 5 * time.Minute

// Purger removes everything that expired before now.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (store.PurgeStats, error)
}

type Janitor struct {
	purger   Purger
	interval time.Duration
	nowTime  func() time.Time
	logger   zerolog.Logger
}

// JanitorOption defines a function type to modify the Janitor instance.
type JanitorOption func(*Janitor)

func WithInterval(interval time.Duration) JanitorOption {
	return func(j *Janitor) {
		j.interval = interval
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) JanitorOption {
	return func(j *Janitor) {
		j.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) JanitorOption {
	return func(j *Janitor) {
		j.logger = logger
	}
}

func New(purger Purger, options ...JanitorOption) (*Janitor, error) {
	if purger == nil {
		return nil, errors.New("[janitor New] purger is required")
	}
	j := &Janitor{
		purger:   purger,
		interval: defaultInterval,
		nowTime:  time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(j)
	}
	if j.interval <= 0 {
		return nil, errors.New("[janitor New] interval must be positive")
	}
	return j, nil
}

// Run purges once per interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce runs a single purge pass.
func (j *Janitor) PurgeOnce(ctx context.Context) (store.PurgeStats, error) {
	stats, err := j.purger.PurgeExpired(ctx, j.nowTime())
	if err != nil {
		j.logger.Error().Err(err).Str("event", "janitor.failed").Msg("purging expired rows")
		return store.PurgeStats{}, err
	}
	if stats.Total() > 0 {
		j.logger.Info().
			Str("event", "janitor.purged").
			Int64("pkce_entries", stats.PKCEEntries).
			Int64("sessions", stats.Sessions).
			Int64("denylist", stats.Denylist).
			Int64("cache_pages", stats.CachePages).
			Msg("expired rows purged")
	}
	return stats, nil
}
