// Package cache holds resolved lookup payloads keyed by lookup operation
// name and variables, so identical lookups cost at most one round trip.
//
// Entries are never invalidated: correctness relies on the remote state
// staying stable while a batch executes. Callers choose the lifetime of a
// Cache (one per process, per engine, or per call) and must not share one
// across processes.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aryeko/ghx-router-sub004/internal/canonical"
)

// keyDomain versions the key derivation.
const keyDomain = "ghx/resolution/v1"

// Cache is a process-local resolution cache. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]any

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]any)}
}

// Key derives the deterministic key for a lookup. Variable order and
// numeric representation do not affect the result.
func Key(operationName string, vars map[string]any) (string, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	key, err := canonical.Hash(keyDomain, map[string]any{
		"operation": operationName,
		"variables": vars,
	})
	if err != nil {
		return "", fmt.Errorf("resolution cache key for %s: %w", operationName, err)
	}
	return key, nil
}

// Get returns the cached payload for key. A nil payload is never stored, so
// ok is false whenever the value would be nil.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v, true
}

// Set stores value under key. Nil values are ignored; the last write for a
// key wins.
func (c *Cache) Set(key string, value any) {
	if value == nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
