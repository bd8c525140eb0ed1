// Package querycache is the process-local cache of similarity-search results.
//
// Entries are keyed by (collection, query text, k, generation) and bounded by an
// LRU. There is no TTL. The generation of a collection only moves when Invalidate
// is called, so by default an entry stays valid until evicted or Clear is called,
// even if documents were inserted after it was stored.
package querycache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/cvcontext/internal/domain"
)

// DefaultSize is the capacity used when New is given a non-positive size.
const DefaultSize = 10000

// Key identifies one cached result sequence.
type Key struct {
	Collection string
	Query      string
	K          int
	Generation uint64
}

// Cache maps Key to the exact fragment sequence a search returned.
type Cache struct {
	entries    *lru.Cache[Key, []domain.Fragment]
	cacheTotal *prometheus.CounterVec

	mu          sync.RWMutex
	generations map[string]uint64
}

// New creates a cache holding at most size entries.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"); nil disables counting.
func New(size int, cacheTotal *prometheus.CounterVec) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	entries, _ := lru.New[Key, []domain.Fragment](size) // size > 0 never errors
	return &Cache{
		entries:     entries,
		cacheTotal:  cacheTotal,
		generations: make(map[string]uint64),
	}
}

// KeyFor builds the key for a lookup against the collection's current generation.
func (c *Cache) KeyFor(collection, query string, k int) Key {
	c.mu.RLock()
	gen := c.generations[collection]
	c.mu.RUnlock()
	return Key{Collection: collection, Query: query, K: k, Generation: gen}
}

// Lookup returns the stored sequence. Callers must not mutate it.
func (c *Cache) Lookup(key Key) ([]domain.Fragment, bool) {
	results, ok := c.entries.Get(key)
	if ok {
		c.inc("hit")
	} else {
		c.inc("miss")
	}
	return results, ok
}

// Store records results under key, replacing any previous entry.
func (c *Cache) Store(key Key, results []domain.Fragment) {
	if results == nil {
		results = []domain.Fragment{}
	}
	c.entries.Add(key, results)
}

// Invalidate makes every stored entry of the collection unreachable.
// Old entries age out of the LRU.
func (c *Cache) Invalidate(collection string) {
	c.mu.Lock()
	c.generations[collection]++
	c.mu.Unlock()
}

// Clear drops every entry and every generation.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.generations = make(map[string]uint64)
	c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of stored entries.
func (c *Cache) Len() int { return c.entries.Len() }

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
