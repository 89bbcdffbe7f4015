// Package cache wraps the in-memory key-value cache collaborator
// named in the purpose section: a process-local, size-bounded cache
// sitting in front of read paths that would otherwise re-hit the
// store for data that rarely changes, such as an EnvironmentSchema's
// slots (schemas have no mutating boundary operation in this core).
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/ternarybob/forge/internal/common"
)

// Cache is a generic, size-bounded, concurrency-safe in-memory cache.
// It is a best-effort accelerator, never a source of truth: a miss
// always falls back to the store, and entries may be evicted under
// memory pressure at any time.
type Cache[V any] struct {
	ristretto *ristretto.Cache[string, V]
}

// New builds a Cache sized per cfg.
func New[V any](cfg common.CacheConfig) (*Cache[V], error) {
	numCounters := cfg.NumCounters
	if numCounters <= 0 {
		numCounters = 1e6
	}
	maxCost := cfg.MaxCostMB
	if maxCost <= 0 {
		maxCost = 64
	}
	bufferItems := cfg.BufferItems
	if bufferItems <= 0 {
		bufferItems = 64
	}

	rc, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: numCounters,
		MaxCost:     maxCost * 1 << 20,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &Cache[V]{ristretto: rc}, nil
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.ristretto.Get(key)
}

// SetTTL caches value under key for the given duration, with a unit
// cost of 1 (the engine's entries are small, fixed-shape structs, so
// item count is a fine proxy for memory pressure here).
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	c.ristretto.SetWithTTL(key, value, 1, ttl)
	c.ristretto.Wait()
}

// Del evicts key, used when a write makes a cached read stale.
func (c *Cache[V]) Del(key string) {
	c.ristretto.Del(key)
}

// Close releases the cache's background goroutines.
func (c *Cache[V]) Close() {
	c.ristretto.Close()
}
