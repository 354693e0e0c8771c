// Package cache provides a Redis-backed read-through cache for script
// reads. Writes never populate the cache; they invalidate it, and the
// next read repopulates. When Redis is not configured or unreachable the
// service runs uncached.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scriptd/internal/logging"
)

// Cache is a thin wrapper over a Redis client with prefix invalidation
type Cache struct {
	client *redis.Client
	logger *logging.Logger
}

// New connects to Redis at the given URL. An empty URL returns a disabled
// cache; a connection failure is reported so the caller can decide to run
// uncached.
func New(ctx context.Context, redisURL string, logger *logging.Logger) (*Cache, error) {
	if redisURL == "" {
		return &Cache{logger: logger}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Cache connected", map[string]interface{}{
		"addr": opts.Addr,
	})

	return &Cache{client: client, logger: logger}, nil
}

// Disabled returns a cache where every Get misses and writes are no-ops
func Disabled(logger *logging.Logger) *Cache {
	return &Cache{logger: logger}
}

// Enabled reports whether a Redis connection is active
func (c *Cache) Enabled() bool {
	return c.client != nil
}

// Close releases the Redis connection
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Get returns the cached value and true on a hit. Redis errors degrade to
// a miss so a cache outage never fails a read.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil {
		return nil, false
	}

	value, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Cache get failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}

	return value, true
}

// Set stores a value with a TTL. Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.client == nil {
		return
	}

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("Cache set failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// Delete removes specific keys
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c.client == nil || len(keys) == 0 {
		return
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Cache delete failed", map[string]interface{}{
			"keys":  keys,
			"error": err.Error(),
		})
	}
}

// DeleteByPrefix removes every key under a prefix using SCAN, so list
// entries with arbitrary parameter combinations can all be invalidated.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) {
	if c.client == nil {
		return
	}

	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("Cache scan failed", map[string]interface{}{
			"prefix": prefix,
			"error":  err.Error(),
		})
		return
	}

	if len(keys) > 0 {
		c.Delete(ctx, keys...)
	}
}
