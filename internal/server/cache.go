package server

import (
	"sync"
	"sync/atomic"
	"time"
)

// ArtifactCache is a concurrent-safe LRU cache with TTL expiry for rendered
// report files.
type ArtifactCache struct {
	mu         sync.Mutex
	entries    map[string]*artifact
	order      []string // front=least recently used
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

type artifact struct {
	data     []byte
	storedAt time.Time
}

// CacheStats reports cache occupancy and effectiveness.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewArtifactCache creates a cache holding at most maxEntries artifacts for ttl.
func NewArtifactCache(maxEntries int, ttl time.Duration) *ArtifactCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &ArtifactCache{
		entries:    make(map[string]*artifact),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached bytes for name, or nil on a miss or expiry.
func (c *ArtifactCache) Get(name string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		c.misses.Add(1)
		return nil
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, name)
		c.unlink(name)
		c.misses.Add(1)
		return nil
	}
	c.unlink(name)
	c.order = append(c.order, name)
	c.hits.Add(1)
	return e.data
}

// Put stores data under name, evicting the least recently used entries when full.
func (c *ArtifactCache) Put(name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; ok {
		c.unlink(name)
	} else {
		for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
	}
	c.entries[name] = &artifact{data: data, storedAt: c.now()}
	c.order = append(c.order, name)
}

// Purge drops every entry; rendered files changed on disk.
func (c *ArtifactCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*artifact)
	c.order = nil
}

// Stats returns cache performance statistics.
func (c *ArtifactCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
	}
}

func (c *ArtifactCache) unlink(name string) {
	for i, k := range c.order {
		if k == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
