package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryConfig configures a MemoryCache.
type MemoryConfig struct {
	// MaxEntries bounds the number of live entries. When full, expired
	// entries are swept first, then the entry closest to expiry is evicted.
	// Default: 1024
	MaxEntries int

	// Now is the clock used for expiry. Default: time.Now
	Now func() time.Time
}

// MemoryCache is an in-memory cache implementation.
type MemoryCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry[V]
	maxEntries int
	now        func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache[V any](config MemoryConfig) *MemoryCache[V] {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1024
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &MemoryCache[V]{
		entries:    make(map[string]cacheEntry[V]),
		maxEntries: config.MaxEntries,
		now:        config.Now,
	}
}

// Get retrieves a value from the cache. Returns (zero, false) on miss or expiry.
func (c *MemoryCache[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key, false)
}

// Take retrieves and removes a value from the cache.
func (c *MemoryCache[V]) Take(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key, true)
}

func (c *MemoryCache[V]) lookup(key string, remove bool) (V, bool) {
	var zero V

	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	if !c.now().Before(entry.expiresAt) {
		// Expired - clean up lazily
		delete(c.entries, key)
		return zero, false
	}

	if remove {
		delete(c.entries, key)
	}
	return entry.value, true
}

// Set stores a value with the given TTL. TTL<=0 means immediate expiry (no caching).
func (c *MemoryCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.sweep(now)
		if len(c.entries) >= c.maxEntries {
			c.evictSoonest()
		}
	}

	c.entries[key] = cacheEntry[V]{
		value:     value,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Delete removes a value from the cache. Idempotent - no error on miss.
func (c *MemoryCache[V]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep(c.now())
	return len(c.entries)
}

func (c *MemoryCache[V]) sweep(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *MemoryCache[V]) evictSoonest() {
	var victim string
	var soonest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expiresAt.Before(soonest) {
			victim, soonest, first = k, e.expiresAt, false
		}
	}
	if !first {
		delete(c.entries, victim)
	}
}

// Ensure MemoryCache implements Cache
var _ Cache[string] = (*MemoryCache[string])(nil)
