package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache implements a thread-safe in-memory TTL cache. A single mutex
// guards the map; entries are immutable once written so no per-key locking
// is needed.
type MemoryCache struct {
	mu sync.RWMutex

	data map[string]memoryEntry

	defaultTTL time.Duration
	maxEntries int

	// now is swappable for tests.
	now func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithDefaultTTL sets the TTL applied when Set is called with a zero TTL.
func WithDefaultTTL(ttl time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		c.defaultTTL = ttl
	}
}

// WithMaxEntries bounds the cache size. When the bound is reached, expired
// entries are collected first; if the cache is still full the write evicts
// an arbitrary entry. Zero means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryCache) {
		c.maxEntries = n
	}
}

// withClock overrides the time source. Test hook.
func withClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache creates a new MemoryCache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		data:       make(map[string]memoryEntry),
		defaultTTL: time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value, treating expired entries as misses.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a value for the given TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		if _, exists := c.data[key]; !exists {
			c.evictLocked()
		}
	}

	c.data[key] = memoryEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Del removes a value.
func (c *MemoryCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	now := c.now()
	for _, entry := range c.data {
		if !now.After(entry.expiresAt) {
			n++
		}
	}
	return n
}

// evictLocked frees space under the entry bound. Expired entries go first;
// if none have expired one arbitrary entry is dropped.
func (c *MemoryCache) evictLocked() {
	now := c.now()
	for k, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, k)
		}
	}
	if c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		for k := range c.data {
			delete(c.data, k)
			break
		}
	}
}
