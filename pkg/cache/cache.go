package cache

import (
	"context"
	"sync"
)

// Cache is a thread-safe memoizing map.
// Storing a nil value is the same as deleting the key.
type Cache[V any] struct {
	items     map[string]V
	separator string
	mu        sync.RWMutex
}

// New creates an empty Cache.
func New[V any](opts ...Option) *Cache[V] {
	o := newOptions(opts)
	return &Cache[V]{
		items:     make(map[string]V),
		separator: o.separator,
	}
}

// Key builds a composite key with the cache separator.
func (c *Cache[V]) Key(parts ...string) string {
	return Key(c.separator, parts...)
}

func (c *Cache[V]) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[key]
	return ok
}

// Get returns the stored value and true, or the zero value and false.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Set stores value under key. A nil value removes the key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// Must be called with lock held.
func (c *Cache[V]) set(key string, value V) {
	if isNil(value) {
		delete(c.items, key)
		return
	}
	c.items[key] = value
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
}

func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrSet returns the cached value for key, computing and storing it with
// fn when absent. fn runs under the cache lock and must not call back into
// the cache.
func (c *Cache[V]) GetOrSet(key string, fn func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.items[key]; ok {
		return v
	}
	v := fn()
	c.set(key, v)
	return v
}

// GetOrSetContext is GetOrSet for producers that block or fail.
// fn runs without the lock held, so concurrent misses may each call it;
// the last result wins. Nothing is stored when fn returns an error.
func (c *Cache[V]) GetOrSetContext(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := fn(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, v)
	return v, nil
}
