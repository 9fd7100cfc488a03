// Package redis provides a cache.Cache backed by Redis, for deployments
// where several replicas should share authentication results.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/cache"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key, so several deployments can share one
	// Redis database. Defaults to "tenantgate:".
	Prefix string
}

// Cache stores JSON-encoded results with native Redis expiry.
type Cache struct {
	client *goredis.Client
	prefix string
}

var _ cache.Cache = (*Cache)(nil)

// New creates a Redis-backed cache. The connection is established lazily.
func New(cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.Prefix), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = "tenantgate:"
	}
	return &Cache{client: client, prefix: prefix}
}

// Get returns the cached result for key.
func (c *Cache) Get(ctx context.Context, key string) (*api.AuthResult, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}

	var result api.AuthResult
	if err := json.Unmarshal(data, &result); err != nil {
		// A corrupt entry is dropped and reported as a miss.
		c.client.Del(ctx, c.prefix+key)
		return nil, false, nil
	}
	return &result, true, nil
}

// Put stores result under key with a millisecond-precision expiry.
func (c *Cache) Put(ctx context.Context, key string, result *api.AuthResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return nil
}

// InvalidateAll removes every result key under this cache's prefix. Keys
// written concurrently may survive.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	pattern := c.prefix + cache.KeyPrefix + "*"
	iter := c.client.Scan(ctx, 0, pattern, 500).Iterator()

	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	if len(batch) > 0 {
		if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
