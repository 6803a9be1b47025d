// Package cache memoizes fully differentiated, compiled traces per
// (function identity, argument signature) key, so repeat calls replay
// instead of re-tracing and re-differentiating.
package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/born-ml/tracegrad/internal/trace"
)

// DefaultSize bounds the number of cached signatures unless configured
// otherwise. Distinct signatures beyond the bound evict least recently
// used entries rather than growing without limit.
const DefaultSize = 256

// Cache is a bounded LRU of compiled traces. It is safe for concurrent
// use; concurrent misses for the same signature are collapsed so the
// trace is built exactly once.
type Cache struct {
	entries *lru.Cache[string, *trace.Trace]
	group   singleflight.Group
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// New creates a cache holding at most size entries.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, *trace.Trace](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// GetOrBuild returns the trace cached under key, building and storing it
// on a miss. hit reports whether the returned trace came from the cache
// and therefore needs a replay against the caller's inputs; when build
// ran in this call, the trace's values already reflect them.
func (c *Cache) GetOrBuild(key string, build func() (*trace.Trace, error)) (tr *trace.Trace, hit bool, err error) {
	if tr, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return tr, true, nil
	}

	built := false
	v, err, _ := c.group.Do(key, func() (any, error) {
		if tr, ok := c.entries.Get(key); ok {
			return tr, nil
		}
		tr, err := build()
		if err != nil {
			return nil, err
		}
		built = true
		c.entries.Add(key, tr)
		return tr, nil
	})
	if err != nil {
		return nil, false, err
	}

	if built {
		c.misses.Add(1)
	} else {
		c.hits.Add(1)
	}
	return v.(*trace.Trace), !built, nil
}

// Len returns the number of cached signatures.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns cumulative hit and miss counts. Counters are best-effort
// under concurrency; they exist for tests and operational logging.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every cached trace.
func (c *Cache) Purge() {
	c.entries.Purge()
}
