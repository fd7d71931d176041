// Package dedup filters retried webhook deliveries. The messaging
// platform redelivers a webhook up to five times when it does not see a
// 200 in time, so the handler must treat message IDs idempotently inside
// a short window.
package dedup

import (
	"sync"
	"time"
)

// Cache is a time-expiring set of message identifiers. Insertion is an
// atomic check-and-set: concurrent deliveries of the same ID race, and
// exactly one wins. Entries older than the TTL are swept opportunistically
// on insert, so the set cannot grow without bound.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time // injectable for testing
}

// New creates a cache with the given expiry window.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// InsertIfAbsent records the key and reports whether it was new. A false
// return means a live entry already existed: the delivery is a retry and
// must be dropped.
func (c *Cache) InsertIfAbsent(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	if seen, ok := c.entries[key]; ok && now.Sub(seen) < c.ttl {
		return false
	}
	c.entries[key] = now
	return true
}

// Len reports the number of live entries, for observability.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked(c.now())
	return len(c.entries)
}

func (c *Cache) sweepLocked(now time.Time) {
	for key, seen := range c.entries {
		if now.Sub(seen) >= c.ttl {
			delete(c.entries, key)
		}
	}
}
