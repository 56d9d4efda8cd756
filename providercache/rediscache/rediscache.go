// Package rediscache stores shared provider pages in Redis so several
// gateway instances serve the same cached content.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/providercache"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "playlistgw:cache:"

	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

var _ providercache.Cache = (*Cache)(nil)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Cache is a providercache.Cache backed by Redis. Entries carry a Redis TTL
// equal to their expiry, so no purge is needed.
type Cache struct {
	client    redis.UniversalClient
	keyPrefix string
}

type storedPage struct {
	Payload   []byte    `json:"payload"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[rediscache New] failed to ping redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Cache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Cache{client: client, keyPrefix: keyPrefix}
}

func (c *Cache) key(providerUserID, pageKey string) string {
	return c.keyPrefix + providerUserID + ":" + pageKey
}

func (c *Cache) GetPage(ctx context.Context, providerUserID, key string, now time.Time) (providercache.Page, error) {
	raw, err := c.client.Get(ctx, c.key(providerUserID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return providercache.Page{}, errors.ErrNotFound
	}
	if err != nil {
		return providercache.Page{}, fmt.Errorf("[rediscache GetPage] %w", err)
	}
	var stored storedPage
	if err := json.Unmarshal(raw, &stored); err != nil {
		return providercache.Page{}, fmt.Errorf("[rediscache GetPage] corrupt entry: %w", err)
	}
	page := providercache.Page{
		ProviderUserID: providerUserID,
		Key:            key,
		Payload:        stored.Payload,
		UpdatedAt:      stored.UpdatedAt,
		ExpiresAt:      stored.ExpiresAt,
	}
	if page.Expired(now) {
		return providercache.Page{}, errors.ErrNotFound
	}
	return page, nil
}

func (c *Cache) PutPage(ctx context.Context, page providercache.Page) error {
	ttl := page.ExpiresAt.Sub(page.UpdatedAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(storedPage{Payload: page.Payload, UpdatedAt: page.UpdatedAt, ExpiresAt: page.ExpiresAt})
	if err != nil {
		return fmt.Errorf("[rediscache PutPage] %w", err)
	}
	if err := c.client.Set(ctx, c.key(page.ProviderUserID, page.Key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("[rediscache PutPage] %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
