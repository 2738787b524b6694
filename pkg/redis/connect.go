package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect resolves connection options from cfg and returns a client that
// answered PING. It retries RetryAttempts times, RetryInterval apart, within
// ConnectTimeout.
//
// Returns:
//   - ErrFailedToParseRedisConnString, ErrEmptyConnectionURL or
//     ErrInvalidCredentials if the options cannot be resolved
//   - ErrRedisNotReady if all connection attempts fail
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	opts, err := ResolveOptions(cfg)
	if err != nil {
		return nil, err
	}
	return connect(ctx, cfg, opts)
}

func connect(ctx context.Context, cfg Config, opts *redis.Options) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var lastErr error
	for attempt := range cfg.RetryAttempts {
		// go-redis keeps the options pointer; give every client its own copy.
		o := *opts
		client := redis.NewClient(&o)

		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			return client, nil
		}

		_ = client.Close()

		if attempt == cfg.RetryAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}
