// Package repoclient talks to the source repository host (Azure DevOps) for
// repository listings, metadata and file content.
package repoclient

import (
	"strings"
	"sync"
	"time"
)

// cacheEntry holds a cached value with the time it was fetched.
type cacheEntry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL expiration.
// Expired entries are cleaned up lazily on Get; there is no background goroutine.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a new cache with the given TTL.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]*cacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return zero, false
	}

	if c.now().Sub(entry.fetchedAt) > c.ttl {
		// Re-check under the write lock: a concurrent Set may have replaced
		// the entry between RUnlock and Lock.
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && c.now().Sub(current.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return entry.value, true
}

// Set stores value with the current timestamp.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry[V]{
		value:     value,
		fetchedAt: c.now(),
	}
	c.mu.Unlock()
}

// Invalidate drops every entry whose key starts with prefix.
func (c *Cache[V]) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
