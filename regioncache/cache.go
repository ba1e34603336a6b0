// Package regioncache implements a bounded least recently used cache of query results that are
// only valid for the index generation they were computed against.
//
// Entries are never swept when the index changes. A lookup compares the generation the caller is at
// with the one stored on the entry, and a mismatch counts as a miss and drops the entry on the spot,
// so a mutation costs O(1) regardless of how full the cache is.
package regioncache

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"go.uber.org/atomic"
)

// Cache maps query fingerprints to results. It is safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  *lru.Cache
	capacity int
	epoch    uint64
	dropping bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	stale     atomic.Uint64
	evictions atomic.Uint64
}

type entry[V any] struct {
	value      V
	generation uint64
	epoch      uint64
}

// Stats is a snapshot of a cache's counters.
type Stats struct {
	Capacity  int
	Entries   int
	Hits      uint64
	Misses    uint64
	Stale     uint64
	Evictions uint64
}

// New returns a cache holding at most capacity entries. A capacity of zero or less disables caching:
// every Get misses and Put stores nothing.
func New[V any](capacity int) *Cache[V] {
	c := &Cache[V]{capacity: capacity}
	if capacity > 0 {
		c.entries = lru.New(capacity)
		c.entries.OnEvicted = func(lru.Key, interface{}) {
			if !c.dropping {
				c.evictions.Inc()
			}
		}
	}
	return c
}

// Enabled reports whether the cache can hold anything.
func (c *Cache[V]) Enabled() bool {
	return c.entries != nil
}

// Get returns the value stored for key if it was stored at generation. A value stored at any other
// generation, or before the last InvalidateAll, is removed and reported as a miss.
func (c *Cache[V]) Get(key string, generation uint64) (V, bool) {
	var zero V
	if c.entries == nil {
		c.misses.Inc()
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.entries.Get(key)
	if !ok {
		c.misses.Inc()
		return zero, false
	}
	e := raw.(*entry[V])
	if e.generation != generation || e.epoch != c.epoch {
		c.dropping = true
		c.entries.Remove(key)
		c.dropping = false
		c.stale.Inc()
		c.misses.Inc()
		return zero, false
	}
	c.hits.Inc()
	return e.value, true
}

// Put stores value for key at generation, evicting the least recently used entry if the cache is full.
func (c *Cache[V]) Put(key string, value V, generation uint64) {
	if c.entries == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, &entry[V]{value: value, generation: generation, epoch: c.epoch})
}

// InvalidateAll makes every stored entry stale without touching them. They are dropped as they are
// looked up or pushed out by newer entries.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	if c.entries == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropping = true
	c.entries.Clear()
	c.dropping = false
}

// Len returns the number of stored entries, stale or not.
func (c *Cache[V]) Len() int {
	if c.entries == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns the cache's counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Capacity:  c.capacity,
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Stale:     c.stale.Load(),
		Evictions: c.evictions.Load(),
	}
}
