// Package cache provides the in-process query cache that fronts the store's
// derived reads. It is bounded by entry count with LRU eviction and by a TTL
// on each entry, and it is purely an optimization: dropping it at any time
// (restart, Clear) has no effect on correctness.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Key builders for the file-scoped reads. Writers that touch a file path
// must invalidate exactly these keys for that path.

// EditsKey is the cache key for GetFileEdits(path).
func EditsKey(path string) string { return "edits:" + path }

// CommitsKey is the cache key for GetCommitsForFile(path).
func CommitsKey(path string) string { return "commits:" + path }

// DecisionsKey is the cache key for GetDecisionsForFile(path).
func DecisionsKey(path string) string { return "decisions:" + path }

// TimelineKey is the cache key for GetFileTimeline(path).
func TimelineKey(path string) string { return "timeline:" + path }

// ConversationKey is the cache key for GetConversation.
func ConversationKey(externalID, projectPath string) string {
	return fmt.Sprintf("conv:%s:%s", projectPath, externalID)
}

// StatsKey is the cache key for store-wide or project-scoped stats.
func StatsKey(scope string) string { return "stats:" + scope }

// Stats is a point-in-time snapshot of cache counters. Observability only.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hitRate"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
}

// QueryCache is a TTL/size-bounded read-through cache. A cached nil value is
// a hit, distinct from a miss, so repeated lookups of a missing row don't
// re-hit the store. The zero value is disabled until Configure is called.
type QueryCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, any]

	// Counters are atomic because the expirable LRU's background expiry
	// goroutine fires the eviction callback outside our mutex.
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	dropping  atomic.Bool // explicit Delete/Clear in progress; not an eviction
}

// New returns an unconfigured (disabled) cache.
func New() *QueryCache {
	return &QueryCache{}
}

// Configure enables the cache with the given capacity and per-entry TTL.
// Reconfiguring discards all cached entries and resets counters.
func (c *QueryCache) Configure(maxEntries int, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru = expirable.NewLRU[string, any](maxEntries, c.onEvict, ttl)
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

func (c *QueryCache) onEvict(string, any) {
	if !c.dropping.Load() {
		c.evictions.Add(1)
	}
}

// Enabled reports whether Configure has been called.
func (c *QueryCache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru != nil
}

// Get returns the cached value for key. The second return value
// distinguishes a miss from a cached nil.
func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	lru := c.lru
	c.mu.Unlock()

	if lru == nil {
		return nil, false
	}

	value, ok := lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return value, ok
}

// Set stores a value (nil included) under key.
func (c *QueryCache) Set(key string, value any) {
	c.mu.Lock()
	lru := c.lru
	c.mu.Unlock()

	if lru == nil {
		return
	}
	lru.Add(key, value)
}

// Delete removes a single key.
func (c *QueryCache) Delete(key string) {
	c.mu.Lock()
	lru := c.lru
	c.mu.Unlock()

	if lru == nil {
		return
	}
	c.dropping.Store(true)
	lru.Remove(key)
	c.dropping.Store(false)
}

// Clear drops every cached entry. Counters are preserved.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	lru := c.lru
	c.mu.Unlock()

	if lru == nil {
		return
	}
	c.dropping.Store(true)
	lru.Purge()
	c.dropping.Store(false)
}

// InvalidateFile deletes every file-scoped key for path: edits, commits,
// decisions and the merged timeline.
func (c *QueryCache) InvalidateFile(path string) {
	c.mu.Lock()
	lru := c.lru
	c.mu.Unlock()

	if lru == nil {
		return
	}
	c.dropping.Store(true)
	lru.Remove(EditsKey(path))
	lru.Remove(CommitsKey(path))
	lru.Remove(DecisionsKey(path))
	lru.Remove(TimelineKey(path))
	c.dropping.Store(false)
}

// Stats returns a snapshot of the hit/miss/eviction counters.
func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	lru := c.lru
	c.mu.Unlock()

	s := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
	if lru != nil {
		s.Entries = lru.Len()
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
