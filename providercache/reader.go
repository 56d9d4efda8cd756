package providercache

import (
	"context"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// FillFunc loads a page from the provider on a cache miss.
type FillFunc func(ctx context.Context) ([]byte, error)

// Reader implements read-through access to the shared cache. Concurrent
// misses for the same (provider user, page key) in this process share one
// fill, so the provider sees a single request and the store a single row.
type Reader struct {
	cache   Cache
	linker  Linker
	group   singleflight.Group
	nowTime func() time.Time
	logger  zerolog.Logger
}

// ReaderOption defines a function type to modify the Reader instance.
type ReaderOption func(*Reader)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ReaderOption {
	return func(r *Reader) {
		r.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

func NewReader(cache Cache, linker Linker, options ...ReaderOption) (*Reader, error) {
	if cache == nil {
		return nil, errors.New("[NewReader] cache is required")
	}
	if linker == nil {
		return nil, errors.New("[NewReader] linker is required")
	}
	r := &Reader{
		cache:   cache,
		linker:  linker,
		nowTime: time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Fetch returns the payload cached under (providerUserID, key), filling it
// on a miss, and links the session to the page in both cases.
func (r *Reader) Fetch(ctx context.Context, sessionID, providerUserID, key string, ttl time.Duration, fill FillFunc) ([]byte, error) {
	page, err := r.cache.GetPage(ctx, providerUserID, key, r.nowTime())
	switch {
	case err == nil:
		r.logger.Debug().Str("event", "cache.hit").Str("page_key", key).Msg("provider cache hit")
	case errors.Is(err, errors.ErrNotFound):
		page, err = r.fill(ctx, providerUserID, key, ttl, fill)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := r.linker.LinkSession(ctx, Link{
		SessionID:      sessionID,
		ProviderUserID: providerUserID,
		PageKey:        key,
		LinkedAt:       r.nowTime(),
	}); err != nil {
		return nil, err
	}
	return page.Payload, nil
}

func (r *Reader) fill(ctx context.Context, providerUserID, key string, ttl time.Duration, fill FillFunc) (Page, error) {
	led := false
	// The flight outlives any single caller: a cancelled leader must not fail
	// the sessions waiting on it. Provider timeouts still bound the fill.
	ch := r.group.DoChan(providerUserID+"\x00"+key, func() (any, error) {
		led = true
		return r.load(context.WithoutCancel(ctx), providerUserID, key, ttl, fill)
	})

	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// the leader's session was refused; ours may still be good
			if !led && sessionScoped(res.Err) {
				r.logger.Debug().Str("event", "cache.fill_retry").Str("page_key", key).Msg("shared fill failed for another session")
				return r.load(ctx, providerUserID, key, ttl, fill)
			}
			return Page{}, res.Err
		}
		if res.Shared && !led {
			r.logger.Debug().Str("event", "cache.fill_shared").Str("page_key", key).Msg("joined in-flight fill")
		}
		return res.Val.(Page), nil
	}
}

func (r *Reader) load(ctx context.Context, providerUserID, key string, ttl time.Duration, fill FillFunc) (Page, error) {
	// a fill that finished between our miss and acquiring the flight
	if page, err := r.cache.GetPage(ctx, providerUserID, key, r.nowTime()); err == nil {
		return page, nil
	}
	payload, err := fill(ctx)
	if err != nil {
		return Page{}, err
	}
	now := r.nowTime()
	page := Page{
		ProviderUserID: providerUserID,
		Key:            key,
		Payload:        payload,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	if err := r.cache.PutPage(ctx, page); err != nil {
		return Page{}, err
	}
	r.logger.Debug().Str("event", "cache.fill").Str("page_key", key).Msg("provider cache filled")
	return page, nil
}

// sessionScoped reports whether a fill failed because of the filling
// session rather than the provider.
func sessionScoped(err error) bool {
	return errors.Is(err, errors.ErrInvalidSession) || errors.Is(err, errors.ErrReauthRequired)
}
