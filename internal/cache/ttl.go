// Package cache provides a small thread-safe TTL cache.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a size-bounded map whose entries expire. Eviction drops expired
// entries first and then the entry closest to expiry.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	data    map[K]entry[V]

	nowFunc func() time.Time
}

// New creates a cache holding at most maxSize entries with a default ttl.
func New[K comparable, V any](maxSize int, ttl time.Duration) *TTL[K, V] {
	if maxSize <= 0 {
		maxSize = 128
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TTL[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		data:    make(map[K]entry[V]),
		nowFunc: time.Now,
	}
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.data[key]
	if !ok {
		return zero, false
	}
	if c.nowFunc().After(e.expiresAt) {
		delete(c.data, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the default ttl.
func (c *TTL[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit ttl.
func (c *TTL[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry[V]{value: value, expiresAt: c.nowFunc().Add(ttl)}
	if len(c.data) > c.maxSize {
		c.evict()
	}
}

// Delete removes key, reporting whether it was present.
func (c *TTL[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	delete(c.data, key)
	return ok
}

// Clear drops every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]entry[V])
}

// Len counts live entries.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	n := 0
	for _, e := range c.data {
		if e.expiresAt.After(now) {
			n++
		}
	}
	return n
}

// evict runs with mu held.
func (c *TTL[K, V]) evict() {
	now := c.nowFunc()
	for k, e := range c.data {
		if !e.expiresAt.After(now) {
			delete(c.data, k)
		}
	}
	for len(c.data) > c.maxSize {
		var (
			oldestKey K
			oldestAt  time.Time
			found     bool
		)
		for k, e := range c.data {
			if !found || e.expiresAt.Before(oldestAt) {
				oldestKey, oldestAt, found = k, e.expiresAt, true
			}
		}
		delete(c.data, oldestKey)
	}
}
