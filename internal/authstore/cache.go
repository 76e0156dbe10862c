package authstore

import (
	"sync"
	"time"
)

// entry holds one cached authorization decision with expiration tracking.
type entry struct {
	providerName string
	expiresAt    time.Time
}

// TTLCache is a thread-safe, TTL-only cache mapping a normalized UUID to the
// name of the provider that authorized it. Unlike a resolver's answer cache,
// auth entries have no natural popularity skew worth LRU bookkeeping for, so
// eviction here is expiry-only: a background-free design, entries simply
// stop counting as hits once stale and are overwritten or removed lazily.
type TTLCache struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	data       map[string]entry

	hits   int
	misses int
}

// NewTTLCache creates an L1 cache with the given default TTL (used when Set
// is called without an explicit residual TTL, e.g. on a fresh provider fetch).
func NewTTLCache(defaultTTL time.Duration) *TTLCache {
	if defaultTTL <= 0 {
		defaultTTL = 300 * time.Second
	}
	return &TTLCache{
		defaultTTL: defaultTTL,
		data:       map[string]entry{},
	}
}

// Get returns the provider name for uuid and whether it was a live hit.
func (c *TTLCache) Get(uuid string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[uuid]
	if !ok {
		c.misses++
		return "", false
	}
	if !e.expiresAt.After(time.Now()) {
		delete(c.data, uuid)
		c.misses++
		return "", false
	}
	c.hits++
	return e.providerName, true
}

// Set stores providerName for uuid with the cache's default TTL.
func (c *TTLCache) Set(uuid, providerName string) {
	c.SetTTL(uuid, providerName, c.defaultTTL)
}

// SetTTL stores providerName for uuid with an explicit TTL, used to backfill
// L1 from an L2 hit with the L2 row's residual lifetime rather than a fresh
// full TTL.
func (c *TTLCache) SetTTL(uuid, providerName string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[uuid] = entry{providerName: providerName, expiresAt: time.Now().Add(ttl)}
}

// Delete removes uuid from the cache.
func (c *TTLCache) Delete(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, uuid)
}

// Clear empties the cache entirely, used by a forced Refresh.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = map[string]entry{}
}

// Stats returns the cache's hit/miss counters.
func (c *TTLCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Snapshot returns every currently-live uuid->provider pair, used by
// GET /api/uuids.
func (c *TTLCache) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	out := make(map[string]string, len(c.data))
	for k, e := range c.data {
		if e.expiresAt.After(now) {
			out[k] = e.providerName
		}
	}
	return out
}
