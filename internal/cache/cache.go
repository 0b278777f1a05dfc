// Package cache provides the in-process TTL cache used for live storefront
// lookups. Entries are keyed by (domain, query, variables) and expire after a
// fixed TTL; a periodic sweep bounds memory growth.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultTTL bounds how long a live lookup result is trusted.
const DefaultTTL = 5 * time.Minute

// DefaultSweepInterval is how often expired entries are removed.
const DefaultSweepInterval = 10 * time.Minute

// Clock returns the current time. Injected so tests control expiry.
type Clock func() time.Time

// Cache is a concurrency-safe TTL map. Concurrent writes to the same key
// are last-write-wins.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	now     Clock
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a cache with the given TTL and clock.
// A zero TTL uses DefaultTTL; a nil clock uses time.Now.
func New[V any](ttl time.Duration, now Clock) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the cache TTL.
func (c *Cache[V]) Set(key string, value V) {
	expiresAt := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: expiresAt}
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the configured time-to-live.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
// onSweep, if non-nil, receives the number of removed entries.
func (c *Cache[V]) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := c.Sweep()
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// Key builds the canonical cache key for a GraphQL call against domain.
// Variables are JSON-encoded; encoding/json sorts map keys so equal
// variable sets produce equal keys.
func Key(domain, query string, variables map[string]any) string {
	vars, err := json.Marshal(variables)
	if err != nil {
		vars = []byte("{}")
	}
	return domain + "\x00" + query + "\x00" + string(vars)
}
