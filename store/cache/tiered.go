package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// TieredCache implements a two-tier read-through cache in front of the database:
// - L1: In-memory cache (fast, small, DEFAULT)
// - L2: Redis cache (shared between instances, OPTIONAL)
//
// L1 holds the Go value; L2 holds its JSON encoding.
type TieredCache struct {
	l1    *Cache
	l2    RedisCacheInterface
	l2TTL time.Duration
}

// Loader fetches a value from the database on a full miss.
type Loader[T any] func(ctx context.Context) (*T, error)

// TieredCacheConfig holds the configuration for the tiered cache.
type TieredCacheConfig struct {
	L1MaxItems int           // Max items in L1 memory cache
	L1TTL      time.Duration // TTL for L1 cache entries
	L2TTL      time.Duration // TTL for L2 Redis cache entries
	// Redis enables L2 when non-nil and Addr is set.
	Redis *RedisCacheConfig
}

// DefaultTieredConfig returns L1 only.
func DefaultTieredConfig() *TieredCacheConfig {
	return &TieredCacheConfig{
		L1MaxItems: 1000,
		L1TTL:      5 * time.Minute,
		L2TTL:      30 * time.Minute,
	}
}

// NewTieredCache creates a tiered cache. It fails only when Redis is configured but
// unreachable.
func NewTieredCache(config *TieredCacheConfig) (*TieredCache, error) {
	if config == nil {
		config = DefaultTieredConfig()
	}

	tc := &TieredCache{
		l1: New(Config{
			DefaultTTL:      config.L1TTL,
			CleanupInterval: time.Minute,
			MaxItems:        config.L1MaxItems,
		}),
		l2:    NewNilRedisCache(),
		l2TTL: config.L2TTL,
	}

	if config.Redis != nil && config.Redis.Addr != "" {
		l2, err := NewRedisCache(config.Redis)
		if err != nil {
			_ = tc.l1.Close()
			return nil, errors.Wrap(err, "failed to create L2 cache")
		}
		tc.l2 = l2
	}

	return tc, nil
}

// NewTieredCacheWithL2 builds a tiered cache over an existing L2.
func NewTieredCacheWithL2(config *TieredCacheConfig, l2 RedisCacheInterface) *TieredCache {
	if config == nil {
		config = DefaultTieredConfig()
	}
	return &TieredCache{
		l1: New(Config{
			DefaultTTL:      config.L1TTL,
			CleanupInterval: time.Minute,
			MaxItems:        config.L1MaxItems,
		}),
		l2:    l2,
		l2TTL: config.L2TTL,
	}
}

// Get returns the value for key from L1, then L2, then load. A nil result from load
// is not cached.
func Get[T any](ctx context.Context, t *TieredCache, key string, load Loader[T]) (*T, error) {
	if v, ok := t.l1.Get(ctx, key); ok {
		if typed, ok := v.(*T); ok {
			return typed, nil
		}
	}

	if data, ok := t.l2.Get(ctx, key); ok {
		value := new(T)
		if err := json.Unmarshal(data, value); err == nil {
			t.l1.Set(ctx, key, value)
			return value, nil
		}
		slog.Warn("discarding undecodable cache value", "key", key)
		t.l2.Delete(ctx, key)
	}

	if load == nil {
		return nil, nil
	}
	value, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if value != nil {
		t.Set(ctx, key, value)
	}
	return value, nil
}

// Set stores value in both tiers.
func (t *TieredCache) Set(ctx context.Context, key string, value any) {
	t.l1.Set(ctx, key, value)
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("failed to marshal cache value", "key", key, "error", err)
		return
	}
	t.l2.SetWithTTL(ctx, key, data, t.l2TTL)
}

// Delete removes key from both tiers.
func (t *TieredCache) Delete(ctx context.Context, key string) {
	t.l1.Delete(ctx, key)
	t.l2.Delete(ctx, key)
}

// Clear empties both tiers.
func (t *TieredCache) Clear(ctx context.Context) {
	t.l1.Clear(ctx)
	t.l2.Clear(ctx)
}

// Stats returns cache statistics.
func (t *TieredCache) Stats() map[string]any {
	_, nilL2 := t.l2.(*NilRedisCache)
	return map[string]any{
		"l1_size":    t.l1.Size(),
		"l2_enabled": !nilL2,
	}
}

// Close closes all cache connections.
func (t *TieredCache) Close() error {
	var errs []error
	if err := t.l2.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := t.l1.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Errorf("multiple errors: %v", errs)
	}
	return nil
}
