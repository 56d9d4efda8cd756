package auth

import (
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/keylock"
	"github.com/rs/zerolog"
)

type options struct {
	nowTime      func() time.Time
	logger       zerolog.Logger
	sessionLocks *keylock.Locker
}

func defaultOptions() options {
	return options{
		nowTime:      time.Now,
		logger:       zerolog.Nop(),
		sessionLocks: keylock.New(),
	}
}

// Option configures the coordinators in this package.
type Option func(*options)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(o *options) {
		o.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSessionLocks shares the per-session lock table with the token vault so
// logout and refresh never interleave for one session.
func WithSessionLocks(locks *keylock.Locker) Option {
	return func(o *options) {
		o.sessionLocks = locks
	}
}
