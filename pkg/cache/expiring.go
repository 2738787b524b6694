package cache

import (
	"context"
	"sync"
	"time"
)

type expiringEntry[V any] struct {
	expiresAt time.Time
	value     V
}

// ExpiringCache memoizes values for a bounded time window.
//
// An entry is valid at time now iff its expiration is non-zero and
// now <= expiresAt + gap. Invalid entries behave as absent. Every method
// takes the current time from the caller, so validity never depends on the
// wall clock inside the cache.
type ExpiringCache[V any] struct {
	items     map[string]expiringEntry[V]
	separator string
	gap       time.Duration
	mu        sync.RWMutex
}

// NewExpiring creates an empty ExpiringCache. The default gap is DefaultGap.
func NewExpiring[V any](opts ...Option) *ExpiringCache[V] {
	o := newOptions(opts)
	return &ExpiringCache[V]{
		items:     make(map[string]expiringEntry[V]),
		separator: o.separator,
		gap:       o.gap,
	}
}

// Key builds a composite key with the cache separator.
func (c *ExpiringCache[V]) Key(parts ...string) string {
	return Key(c.separator, parts...)
}

// Gap returns the configured staleness gap.
func (c *ExpiringCache[V]) Gap() time.Duration {
	return c.gap
}

func (c *ExpiringCache[V]) valid(e expiringEntry[V], now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.After(e.expiresAt.Add(c.gap))
}

// Has reports whether key holds a value valid at now.
func (c *ExpiringCache[V]) Has(key string, now time.Time) bool {
	_, ok := c.Get(key, now)
	return ok
}

// Get returns the value for key if it is valid at now.
func (c *ExpiringCache[V]) Get(key string, now time.Time) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.get(key, now)
}

// Must be called with lock held.
func (c *ExpiringCache[V]) get(key string, now time.Time) (V, bool) {
	e, ok := c.items[key]
	if !ok || !c.valid(e, now) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key until expiresAt (plus the gap).
// A nil value removes the key. A zero expiresAt stores an entry that is
// never valid.
func (c *ExpiringCache[V]) Set(key string, expiresAt time.Time, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, expiresAt, value)
}

// Must be called with lock held.
func (c *ExpiringCache[V]) set(key string, expiresAt time.Time, value V) {
	if isNil(value) {
		delete(c.items, key)
		return
	}
	c.items[key] = expiringEntry[V]{expiresAt: expiresAt, value: value}
}

func (c *ExpiringCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *ExpiringCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
}

// Count returns the number of stored entries, valid or not.
func (c *ExpiringCache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// SetIf stores value like Set, but only if cond reports true. cond runs
// under the cache lock, so a writer that changes what cond observes and then
// deletes key cannot be overtaken by this store.
func (c *ExpiringCache[V]) SetIf(key string, expiresAt time.Time, value V, cond func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !cond() {
		return false
	}
	c.set(key, expiresAt, value)
	return true
}

// GetOrSet returns the value valid at now, or computes it with fn and
// stores it with the expiration fn returns. fn runs under the cache lock
// and must not call back into the cache.
func (c *ExpiringCache[V]) GetOrSet(key string, now time.Time, fn func() (V, time.Time)) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.get(key, now); ok {
		return v
	}
	v, expiresAt := fn()
	c.set(key, expiresAt, v)
	return v
}

// GetOrSetContext is GetOrSet for producers that block or fail.
// fn runs without the lock held. Nothing is stored when fn returns an error.
func (c *ExpiringCache[V]) GetOrSetContext(
	ctx context.Context,
	key string,
	now time.Time,
	fn func(context.Context) (V, time.Time, error),
) (V, error) {
	if v, ok := c.Get(key, now); ok {
		return v, nil
	}

	v, expiresAt, err := fn(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.Set(key, expiresAt, v)
	return v, nil
}
