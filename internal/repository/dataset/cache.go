package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache holds recently loaded tables for a bounded time.
type Cache interface {
	Get(ctx context.Context, key string) (Table, bool, error)
	Set(ctx context.Context, key string, table Table, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedStore serves loads from a cache and drops the entry on every
// successful or conflicting save, so the next load observes the new state.
type CachedStore struct {
	next   Store
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore wraps next. A non-positive ttl disables caching.
func NewCachedStore(next Store, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Load returns the cached table when fresh, otherwise reads through.
func (s *CachedStore) Load(ctx context.Context, name string) (Table, error) {
	if s.ttl > 0 && s.cache != nil {
		table, ok, err := s.cache.Get(ctx, name)
		if err != nil {
			s.logger.Warn("cache read failed", zap.String("dataset", name), zap.Error(err))
		} else if ok {
			s.logger.Debug("cache hit", zap.String("dataset", name))
			return table, nil
		}
	}

	table, err := s.next.Load(ctx, name)
	if err != nil {
		return Table{}, err
	}

	if s.ttl > 0 && s.cache != nil {
		if err := s.cache.Set(ctx, name, table, s.ttl); err != nil {
			s.logger.Warn("cache write failed", zap.String("dataset", name), zap.Error(err))
		}
	}
	return table, nil
}

// Save writes through and invalidates the dataset entry.
func (s *CachedStore) Save(ctx context.Context, table Table, message string) error {
	err := s.next.Save(ctx, table, message)
	if err == nil || errors.Is(err, ErrVersionConflict) {
		s.Invalidate(ctx, table.Name)
	}
	return err
}

// Invalidate drops the named datasets from the cache.
func (s *CachedStore) Invalidate(ctx context.Context, names ...string) {
	if s.cache == nil || len(names) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, names...); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Strings("datasets", names), zap.Error(err))
	}
}

type cacheEntry struct {
	table   Table
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache builds an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Table, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Table{}, false, nil
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return Table{}, false, nil
	}
	return entry.table.Clone(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, table Table, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{table: table.Clone(), expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// RedisCache shares cached tables between service instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache builds a cache on top of an existing client.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(name string) string {
	return c.prefix + name
}

func (c *RedisCache) Get(ctx context.Context, key string) (Table, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Table{}, false, nil
	}
	if err != nil {
		return Table{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var table Table
	if err := json.Unmarshal(raw, &table); err != nil {
		return Table{}, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return table, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, table Table, ttl time.Duration) error {
	raw, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode %s for cache: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
