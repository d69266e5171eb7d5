package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the in-memory cache configuration.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	// MaxItems bounds the cache; zero means unbounded.
	MaxItems int
	// OnEviction is called for entries removed by expiry or capacity.
	OnEviction func(key string, value any)
}

type item struct {
	value     any
	expiresAt time.Time
}

func (i *item) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// Cache is a concurrency-safe in-memory TTL cache.
type Cache struct {
	data   sync.Map
	size   atomic.Int64
	config Config

	stopCh chan struct{}
	once   sync.Once
}

// New creates a cache and starts its cleanup loop when CleanupInterval is set.
func New(config Config) *Cache {
	c := &Cache{
		config: config,
		stopCh: make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.config.DefaultTTL)
}

func (c *Cache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) {
	entry := &item{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	if _, loaded := c.data.Swap(key, entry); !loaded {
		c.size.Add(1)
	}
	if c.config.MaxItems > 0 && int(c.size.Load()) > c.config.MaxItems {
		c.evictOne(key)
	}
}

func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(*item)
	if entry.expired(time.Now()) {
		c.remove(key, entry, true)
		return nil, false
	}
	return entry.value, true
}

func (c *Cache) Delete(_ context.Context, key string) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

func (c *Cache) Clear(_ context.Context) {
	c.data.Range(func(key, _ any) bool {
		if _, loaded := c.data.LoadAndDelete(key); loaded {
			c.size.Add(-1)
		}
		return true
	})
}

// Size returns the number of entries, including expired ones not yet cleaned up.
func (c *Cache) Size() int64 {
	return c.size.Load()
}

// Close stops the cleanup loop.
func (c *Cache) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

func (c *Cache) remove(key string, entry *item, notify bool) {
	if c.data.CompareAndDelete(key, entry) {
		c.size.Add(-1)
		if notify && c.config.OnEviction != nil {
			c.config.OnEviction(key, entry.value)
		}
	}
}

// evictOne drops the entry closest to expiry, never the one just written.
func (c *Cache) evictOne(keep string) {
	var victimKey string
	var victim *item
	c.data.Range(func(k, v any) bool {
		key := k.(string)
		if key == keep {
			return true
		}
		entry := v.(*item)
		if victim == nil || entry.expiresAt.Before(victim.expiresAt) {
			victimKey, victim = key, entry
		}
		return true
	})
	if victim != nil {
		c.remove(victimKey, victim, true)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.data.Range(func(k, v any) bool {
				if entry := v.(*item); entry.expired(now) {
					c.remove(k.(string), entry, true)
				}
				return true
			})
		case <-c.stopCh:
			return
		}
	}
}
