package redis_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/togglekit/pkg/logger"
	"github.com/dmitrymomot/togglekit/pkg/redis"
)

func testConfig() redis.Config {
	return redis.Config{
		RetryAttempts:  1,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	}
}

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.New(testConfig(),
		redis.WithOptions(&goredis.Options{Addr: mr.Addr()}),
		redis.WithLogger(logger.Discard()),
	)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

// rawClient returns a plain go-redis client used to act as another instance.
func rawClient(t *testing.T, mr *miniredis.Miniredis) *goredis.Client {
	t.Helper()

	cli := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func waitSubscribers(t *testing.T, mr *miniredis.Miniredis, channel string, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == n
	}, 2*time.Second, 5*time.Millisecond, "channel %q should have %d subscribers", channel, n)
}

func ptr[T any](v T) *T {
	return &v
}
