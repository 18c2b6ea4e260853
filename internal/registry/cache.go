package registry

import (
	"sync"
	"time"
)

// Cache is a process-local read-through TTL cache. The same abstraction
// backs registry lookup caches, the resolver's burst cache, and negative
// caches; only the key/value types and TTL differ.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[K]cacheEntry[V]
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewCache creates a cache whose entries expire ttl after being set.
func NewCache[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		entries: make(map[K]cacheEntry[V]),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge drops every expired entry and returns how many remain.
func (c *Cache[K, V]) Purge() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	return len(c.entries)
}

// GetOrLoad returns the cached value or computes, stores, and returns it.
// Concurrent loads for the same key may race; last write wins, which is
// safe because loads for the same key converge to the same value.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}
