/*
cache.go - Time-boxed cache for expensive week reads

PURPOSE:
  Full weekly-plan scans run to tens of thousands of rows. The cache keeps
  the last result per key for a fixed TTL and is invalidated explicitly
  by every write that touches the key, so readers never wait out the TTL
  to see their own changes.

EXPIRY:
  Entries expire by wall-clock comparison on read. There is no janitor
  goroutine; expired entries are dropped when looked up or on Purge.

GENERATIONS:
  Every Invalidate (and Purge) bumps a generation counter. A loader reads
  Generation before fetching and stores with SetIfCurrent, which refuses
  the value if the key was invalidated in the meantime. A read that
  started before a write can never repopulate the cache with pre-write
  rows.

SEE ALSO:
  - dataset.go: Caches WeekDataset by week reference
  - amendments.go: Invalidates on write
*/
package planning

import (
	"sync"
	"time"
)

// DefaultCacheTTL matches how long a dashboard session keeps a week warm.
const DefaultCacheTTL = 30 * time.Minute

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL cache safe for concurrent use.
type Cache[K comparable, V any] struct {
	name string
	ttl  time.Duration

	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time

	mu      sync.Mutex
	entries map[K]cacheEntry[V]
	version uint64
	gens    map[K]uint64
	purged  uint64
}

// NewCache creates a cache. name labels its metrics; ttl <= 0 uses
// DefaultCacheTTL.
func NewCache[K comparable, V any](name string, ttl time.Duration) *Cache[K, V] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache[K, V]{
		name:    name,
		ttl:     ttl,
		Now:     time.Now,
		entries: make(map[K]cacheEntry[V]),
		gens:    make(map[K]uint64),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		cacheLookups.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}
	if !c.Now().Before(e.expires) {
		delete(c.entries, key)
		cacheLookups.WithLabelValues(c.name, "expired").Inc()
		return zero, false
	}
	cacheLookups.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[V]{value: value, expires: c.Now().Add(c.ttl)}
}

// Generation returns the key's current generation for a later SetIfCurrent.
func (c *Cache[K, V]) Generation(key K) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(key)
}

func (c *Cache[K, V]) generation(key K) uint64 {
	return max(c.gens[key], c.purged)
}

// SetIfCurrent stores value only if key has not been invalidated since gen
// was read. Reports whether the value was stored.
func (c *Cache[K, V]) SetIfCurrent(key K, gen uint64, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(key) != gen {
		cacheLookups.WithLabelValues(c.name, "stale_set").Inc()
		return false
	}
	c.entries[key] = cacheEntry[V]{value: value, expires: c.Now().Add(c.ttl)}
	return true
}

func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.version++
	c.gens[key] = c.version
}

// Purge drops every entry, expired or not.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]cacheEntry[V])
	c.gens = make(map[K]uint64)
	c.version++
	c.purged = c.version
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) TTL() time.Duration { return c.ttl }
