package redis_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/togglekit/pkg/redis"
)

func recorder() (redis.Handler, <-chan string) {
	ch := make(chan string, 16)
	return func(ctx context.Context, msg string) error {
		ch <- msg
		return nil
	}, ch
}

func receiveOne(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
		return ""
	}
}

func assertSilent(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected delivery: %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPubSub(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("handler receives payload once", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		h, got := recorder()

		id, err := client.RegisterHandler(ctx, "changes", h)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, 1, mr.PubSubNumSub("changes")["changes"])

		require.NoError(t, client.Publish(ctx, "changes", `{"flag":"new-ui"}`))
		assert.Equal(t, `{"flag":"new-ui"}`, receiveOne(t, got))
		assertSilent(t, got)
	})

	t.Run("all handlers of a channel run", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		h1, got1 := recorder()
		h2, got2 := recorder()

		_, err := client.RegisterHandler(ctx, "changes", h1)
		require.NoError(t, err)
		_, err = client.RegisterHandler(ctx, "changes", h2)
		require.NoError(t, err)
		assert.Equal(t, 2, client.HandlerCount("changes"))
		// One subscription serves both handlers.
		waitSubscribers(t, mr, "changes", 1)

		require.NoError(t, client.Publish(ctx, "changes", "m"))
		assert.Equal(t, "m", receiveOne(t, got1))
		assert.Equal(t, "m", receiveOne(t, got2))
	})

	t.Run("failing handlers do not affect siblings", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		h, got := recorder()

		_, err := client.RegisterHandler(ctx, "changes", func(ctx context.Context, msg string) error {
			return errors.New("broken handler")
		})
		require.NoError(t, err)
		_, err = client.RegisterHandler(ctx, "changes", func(ctx context.Context, msg string) error {
			panic("panicking handler")
		})
		require.NoError(t, err)
		_, err = client.RegisterHandler(ctx, "changes", h)
		require.NoError(t, err)
		waitSubscribers(t, mr, "changes", 1)

		require.NoError(t, client.Publish(ctx, "changes", "first"))
		require.NoError(t, client.Publish(ctx, "changes", "second"))
		assert.Equal(t, "first", receiveOne(t, got))
		assert.Equal(t, "second", receiveOne(t, got))
	})

	t.Run("channels are independent", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		ha, gotA := recorder()
		hb, gotB := recorder()

		_, err := client.RegisterHandler(ctx, "a", ha)
		require.NoError(t, err)
		_, err = client.RegisterHandler(ctx, "b", hb)
		require.NoError(t, err)
		waitSubscribers(t, mr, "a", 1)
		waitSubscribers(t, mr, "b", 1)

		require.NoError(t, client.Publish(ctx, "b", "for-b"))
		assert.Equal(t, "for-b", receiveOne(t, gotB))
		assertSilent(t, gotA)
	})

	t.Run("removed handler is not invoked", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		h1, got1 := recorder()
		h2, got2 := recorder()

		id1, err := client.RegisterHandler(ctx, "changes", h1)
		require.NoError(t, err)
		_, err = client.RegisterHandler(ctx, "changes", h2)
		require.NoError(t, err)
		waitSubscribers(t, mr, "changes", 1)

		require.NoError(t, client.RemoveHandler(ctx, "changes", id1))
		assert.Equal(t, 1, client.HandlerCount("changes"))

		require.NoError(t, client.Publish(ctx, "changes", "m"))
		assert.Equal(t, "m", receiveOne(t, got2))
		assertSilent(t, got1)
	})

	t.Run("removing the last handler unsubscribes", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		h, got := recorder()

		id, err := client.RegisterHandler(ctx, "changes", h)
		require.NoError(t, err)
		waitSubscribers(t, mr, "changes", 1)

		require.NoError(t, client.RemoveHandler(ctx, "changes", id))
		assert.Equal(t, 0, client.HandlerCount("changes"))
		waitSubscribers(t, mr, "changes", 0)

		require.NoError(t, client.Publish(ctx, "changes", "m"))
		assertSilent(t, got)
	})

	t.Run("unknown handler id is ignored", func(t *testing.T) {
		t.Parallel()
		client, _ := newTestClient(t)
		assert.NoError(t, client.RemoveHandler(ctx, "changes", "unknown"))
	})

	t.Run("remove all handlers", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		h1, got1 := recorder()
		h2, got2 := recorder()

		_, err := client.RegisterHandler(ctx, "changes", h1)
		require.NoError(t, err)
		_, err = client.RegisterHandler(ctx, "changes", h2)
		require.NoError(t, err)
		waitSubscribers(t, mr, "changes", 1)

		require.NoError(t, client.RemoveAllHandlers(ctx, "changes"))
		assert.Equal(t, 0, client.HandlerCount("changes"))
		waitSubscribers(t, mr, "changes", 0)

		require.NoError(t, client.Publish(ctx, "changes", "m"))
		assertSilent(t, got1)
		assertSilent(t, got2)
	})

	t.Run("message published right after registration is delivered", func(t *testing.T) {
		t.Parallel()
		client, _ := newTestClient(t)

		for i := range 50 {
			channel := fmt.Sprintf("changes-%d", i)
			h, got := recorder()

			_, err := client.RegisterHandler(ctx, channel, h)
			require.NoError(t, err)
			require.NoError(t, client.Publish(ctx, channel, channel))
			require.Equal(t, channel, receiveOne(t, got))
		}
	})

	t.Run("failed subscribe does not strand other channels", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		h, got := recorder()

		_, err := client.RegisterHandler(ctx, "changes", h)
		require.NoError(t, err)

		mr.Close()
		other, _ := recorder()
		_, err = client.RegisterHandler(ctx, "other", other)
		require.Error(t, err)
		assert.Equal(t, 0, client.HandlerCount("other"))
		assert.Equal(t, 1, client.HandlerCount("changes"))

		require.NoError(t, mr.Restart())
		waitSubscribers(t, mr, "changes", 1)
		assert.Equal(t, 0, mr.PubSubNumSub("other")["other"])

		require.Eventually(t, func() bool {
			return client.Publish(ctx, "changes", "after-restart") == nil
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "after-restart", receiveOne(t, got))
	})

	t.Run("nil handler", func(t *testing.T) {
		t.Parallel()
		client, _ := newTestClient(t)
		_, err := client.RegisterHandler(ctx, "changes", nil)
		assert.ErrorIs(t, err, redis.ErrNilHandler)
	})

	t.Run("subscription is restored after server restart", func(t *testing.T) {
		t.Parallel()
		client, mr := newTestClient(t)
		h, got := recorder()

		_, err := client.RegisterHandler(ctx, "changes", h)
		require.NoError(t, err)
		waitSubscribers(t, mr, "changes", 1)

		mr.Close()
		require.NoError(t, mr.Restart())
		waitSubscribers(t, mr, "changes", 1)

		require.Eventually(t, func() bool {
			return client.Publish(ctx, "changes", "after-restart") == nil
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "after-restart", receiveOne(t, got))
	})
}

func TestClose_WaitsForHandlers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, mr := newTestClient(t)

	started := make(chan struct{})
	var finished atomic.Bool
	_, err := client.RegisterHandler(ctx, "changes", func(ctx context.Context, msg string) error {
		close(started)
		<-ctx.Done()
		finished.Store(true)
		return ctx.Err()
	})
	require.NoError(t, err)
	waitSubscribers(t, mr, "changes", 1)

	require.NoError(t, client.Publish(ctx, "changes", "m"))
	<-started

	require.NoError(t, client.Close())
	assert.True(t, finished.Load())
}
