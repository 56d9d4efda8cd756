package config

import "time"

const (
	CacheBackendStore = "store"
	CacheBackendRedis = "redis"
)

type CacheConfig interface {
	GetCacheTTL() time.Duration
	GetCacheBackend() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Cache struct {
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"60m"`
	Backend       string        `env:"CACHE_BACKEND" envDefault:"store"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
}

var _ CacheConfig = Cache{}

func (c Cache) GetCacheTTL() time.Duration {
	return c.CacheTTL
}

func (c Cache) GetCacheBackend() string {
	return c.Backend
}

func (c Cache) GetRedisAddr() string {
	return c.RedisAddr
}

func (c Cache) GetRedisPassword() string {
	return c.RedisPassword
}

func (c Cache) GetRedisDB() int {
	return c.RedisDB
}
