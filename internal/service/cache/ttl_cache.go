package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	v   V
	exp time.Time
}

// TTLCache is an in-process read-through cache with per-entry expiry.
type TTLCache[V any] struct {
	mu    sync.RWMutex
	m     map[string]entry[V]
	now   func() time.Time
	group singleflight.Group
}

func NewTTLCache[V any]() *TTLCache[V] {
	return &TTLCache[V]{m: make(map[string]entry[V]), now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.now = now
	return c
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.v, true
}

// Set stores v; a non-positive ttl never expires.
func (c *TTLCache[V]) Set(key string, v V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = entry[V]{v: v, exp: exp}
	c.mu.Unlock()
}

func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// GetOrLoad returns the cached value for key or runs load once for all
// concurrent callers of the same key and caches its result for ttl.
// Load errors are returned and not cached.
func (c *TTLCache[V]) GetOrLoad(key string, ttl time.Duration, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
