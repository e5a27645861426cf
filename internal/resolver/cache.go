package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EndpointCache stores resolved base URLs by routing key.
type EndpointCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, baseURL string) error
	Delete(ctx context.Context, key string) error
	Purge(ctx context.Context) error
}

var (
	_ EndpointCache = &MemoryCache{}
	_ EndpointCache = &RedisCache{}
)

type memoryEntry struct {
	baseURL string
	expires time.Time
}

// MemoryCache is a process-local cache. A zero TTL keeps entries until they
// are invalidated.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return "", false, nil
	}
	return e.baseURL, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, baseURL string) error {
	e := memoryEntry{baseURL: baseURL}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Purge(context.Context) error {
	c.mu.Lock()
	c.entries = map[string]memoryEntry{}
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares resolved endpoints between router replicas. Keys are
// namespaced with prefix.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. The caller owns rdb.
func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(k string) string { return c.prefix + k }

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read endpoint from Redis: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, baseURL string) error {
	if err := c.rdb.Set(ctx, c.key(key), baseURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write endpoint to Redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete endpoint from Redis: %w", err)
	}
	return nil
}

// Purge removes every key under the cache prefix.
func (c *RedisCache) Purge(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan endpoint keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to purge endpoints from Redis: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
