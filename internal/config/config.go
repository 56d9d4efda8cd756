package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	ProviderConfig
	SecurityConfig
	CacheConfig
	StoreConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsDev() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Provider
	Security
	Cache
	Store
}

var _ Config = mainConfig{}

// New loads the configuration from environment variables and validates it.
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] failed to parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c mainConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("[config Validate] %s is required", "PROVIDER_CLIENT_ID")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("[config Validate] %s is required", "PROVIDER_REDIRECT_URI")
	}
	if c.PageSize < minPageSize || c.PageSize > maxPageSize {
		return fmt.Errorf("[config Validate] PAGE_SIZE must be between %d and %d, got %d", minPageSize, maxPageSize, c.PageSize)
	}
	if c.PKCETTL <= 0 || c.SessionTTL <= 0 || c.CacheTTL <= 0 || c.DenylistRetention <= 0 {
		return fmt.Errorf("[config Validate] TTL values must be positive")
	}
	if c.RefreshThreshold < 0 {
		return fmt.Errorf("[config Validate] REFRESH_THRESHOLD must not be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("[config Validate] PROVIDER_TIMEOUT must be positive")
	}
	switch c.Driver {
	case StoreDriverMemory, StoreDriverPostgres:
	default:
		return fmt.Errorf("[config Validate] unknown STORE_DRIVER %q", c.Driver)
	}
	if c.Driver == StoreDriverPostgres && c.DSN == "" {
		return fmt.Errorf("[config Validate] DATABASE_DSN is required for the postgres store")
	}
	switch c.Backend {
	case CacheBackendStore, CacheBackendRedis:
	default:
		return fmt.Errorf("[config Validate] unknown CACHE_BACKEND %q", c.Backend)
	}
	if !c.IsDev() {
		if c.TokenSealingKey == "" {
			return fmt.Errorf("[config Validate] TOKEN_SEALING_KEY is required outside DEV")
		}
		if c.PageTokenSecret == "" {
			return fmt.Errorf("[config Validate] PAGE_TOKEN_SECRET is required outside DEV")
		}
	}
	return nil
}
