package config

import "time"

type SecurityConfig interface {
	GetPKCETTL() time.Duration
	GetSessionTTL() time.Duration
	GetRefreshThreshold() time.Duration
	GetDenylistRetention() time.Duration
	GetTokenSealingKey() string
	GetPageTokenSecret() string
	GetDeepLinkBase() string
}

type Security struct {
	PKCETTL           time.Duration `env:"PKCE_TTL" envDefault:"10m"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"60m"`
	RefreshThreshold  time.Duration `env:"REFRESH_THRESHOLD" envDefault:"60s"`
	DenylistRetention time.Duration `env:"DENYLIST_RETENTION" envDefault:"2160h"` // 90 days
	TokenSealingKey   string        `env:"TOKEN_SEALING_KEY"`                     // base64, 32 bytes
	PageTokenSecret   string        `env:"PAGE_TOKEN_SECRET"`
	DeepLinkBase      string        `env:"DEEPLINK_BASE" envDefault:"swipez://oauth-callback/spotify"`
}

var _ SecurityConfig = Security{}

func (s Security) GetPKCETTL() time.Duration {
	return s.PKCETTL
}

func (s Security) GetSessionTTL() time.Duration {
	return s.SessionTTL
}

func (s Security) GetRefreshThreshold() time.Duration {
	return s.RefreshThreshold
}

func (s Security) GetDenylistRetention() time.Duration {
	return s.DenylistRetention
}

func (s Security) GetTokenSealingKey() string {
	return s.TokenSealingKey
}

func (s Security) GetPageTokenSecret() string {
	return s.PageTokenSecret
}

func (s Security) GetDeepLinkBase() string {
	return s.DeepLinkBase
}
