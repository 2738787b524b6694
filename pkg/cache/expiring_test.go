package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/togglekit/pkg/cache"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestExpiringCache_Validity(t *testing.T) {
	t.Parallel()

	t.Run("valid until expiration plus gap", func(t *testing.T) {
		t.Parallel()
		c := cache.NewExpiring[string]()
		gap := c.Gap()
		require.Equal(t, cache.DefaultGap, gap)

		c.Set("k", t0, "v")

		v, ok := c.Get("k", t0.Add(gap))
		assert.True(t, ok)
		assert.Equal(t, "v", v)

		_, ok = c.Get("k", t0.Add(gap+time.Nanosecond))
		assert.False(t, ok)
	})

	t.Run("has agrees with get", func(t *testing.T) {
		t.Parallel()
		c := cache.NewExpiring[int](cache.WithGap(10 * time.Millisecond))
		c.Set("k", t0, 1)

		for _, offset := range []time.Duration{
			-time.Hour, 0, 5 * time.Millisecond, 10 * time.Millisecond,
			10*time.Millisecond + 1, time.Second,
		} {
			now := t0.Add(offset)
			_, ok := c.Get("k", now)
			assert.Equal(t, ok, c.Has("k", now), "offset %s", offset)
		}
	})

	t.Run("zero expiration is never valid", func(t *testing.T) {
		t.Parallel()
		c := cache.NewExpiring[int]()
		c.Set("k", time.Time{}, 1)

		assert.False(t, c.Has("k", time.Time{}))
		assert.False(t, c.Has("k", t0))
		assert.Equal(t, 1, c.Count(), "invalid entries are still stored")
	})

	t.Run("zero gap", func(t *testing.T) {
		t.Parallel()
		c := cache.NewExpiring[int](cache.WithGap(0))
		c.Set("k", t0, 1)
		assert.True(t, c.Has("k", t0))
		assert.False(t, c.Has("k", t0.Add(time.Nanosecond)))
	})

	t.Run("nil value is absence", func(t *testing.T) {
		t.Parallel()
		c := cache.NewExpiring[map[string]bool]()
		c.Set("k", t0, map[string]bool{"a": true})
		require.True(t, c.Has("k", t0))

		c.Set("k", t0, nil)
		assert.False(t, c.Has("k", t0))
		assert.Equal(t, 0, c.Count())
	})
}

func TestExpiringCache_Maintenance(t *testing.T) {
	t.Parallel()

	c := cache.NewExpiring[int](cache.WithGap(0))
	c.Set("old", t0, 1)
	c.Set("new", t0.Add(time.Hour), 2)
	c.Set(c.Key("a", "b"), t0.Add(time.Hour), 3)
	assert.Equal(t, 3, c.Count())

	c.Delete("old")
	assert.Equal(t, 2, c.Count())

	c.Delete("new")
	assert.False(t, c.Has("new", t0))
	assert.True(t, c.Has("a##b", t0))

	c.Clear()
	assert.Equal(t, 0, c.Count())
}

func TestExpiringCache_GetOrSet(t *testing.T) {
	t.Parallel()

	t.Run("refreshes after expiration", func(t *testing.T) {
		t.Parallel()
		c := cache.NewExpiring[int](cache.WithGap(0))
		calls := 0
		fn := func() (int, time.Time) {
			calls++
			return calls, t0.Add(time.Second)
		}

		assert.Equal(t, 1, c.GetOrSet("k", t0, fn))
		assert.Equal(t, 1, c.GetOrSet("k", t0.Add(time.Second), fn))
		assert.Equal(t, 2, c.GetOrSet("k", t0.Add(2*time.Second), fn))
		assert.Equal(t, 2, calls)
	})

	t.Run("context producer", func(t *testing.T) {
		t.Parallel()
		c := cache.NewExpiring[string]()
		calls := 0
		fn := func(ctx context.Context) (string, time.Time, error) {
			calls++
			return "v", t0.Add(time.Minute), nil
		}

		v, err := c.GetOrSetContext(context.Background(), "k", t0, fn)
		require.NoError(t, err)
		assert.Equal(t, "v", v)

		v, err = c.GetOrSetContext(context.Background(), "k", t0.Add(30*time.Second), fn)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
		assert.Equal(t, 1, calls)
	})

	t.Run("producer error stores nothing", func(t *testing.T) {
		t.Parallel()
		c := cache.NewExpiring[string]()
		boom := errors.New("boom")

		_, err := c.GetOrSetContext(context.Background(), "k", t0,
			func(ctx context.Context) (string, time.Time, error) {
				return "", time.Time{}, boom
			})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, c.Count())
	})
}

func TestExpiringCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.NewExpiring[int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := c.Key("k", string(rune('a'+n%5)))
			c.Set(key, t0.Add(time.Minute), n)
			c.Get(key, t0)
			c.GetOrSet(key, t0, func() (int, time.Time) { return n, t0.Add(time.Minute) })
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, c.Count())
}

func TestExpiringCache_SetIf(t *testing.T) {
	t.Parallel()

	c := cache.NewExpiring[int](cache.WithGap(0))
	var version atomic.Uint64

	observed := version.Load()
	current := func() bool { return version.Load() == observed }

	assert.True(t, c.SetIf("k", t0.Add(time.Hour), 1, current))
	v, ok := c.Get("k", t0)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	// An invalidation between loading and storing wins.
	version.Add(1)
	c.Delete("k")
	assert.False(t, c.SetIf("k", t0.Add(time.Hour), 2, current))
	assert.False(t, c.Has("k", t0))
	assert.Equal(t, 0, c.Count())
}
