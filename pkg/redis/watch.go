package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/togglekit/pkg/logger"
)

// DefaultAttempts is the number of optimistic lock attempts of a watched update.
const DefaultAttempts = 10

type watchOptions struct {
	attempts int
}

// WatchOption configures a watched update.
type WatchOption func(*watchOptions)

// WithAttempts sets the number of optimistic lock attempts. Values below 1 are ignored.
func WithAttempts(n int) WatchOption {
	return func(o *watchOptions) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// codec maps logical values to their stored form. A nil stored form means
// the key is absent.
type codec[T any] struct {
	encode func(T) (*string, error)
	decode func(*string) (T, error)
}

func rawCodec() codec[*string] {
	return codec[*string]{
		encode: func(v *string) (*string, error) { return v, nil },
		decode: func(raw *string) (*string, error) { return raw, nil },
	}
}

func objectCodec[T any]() codec[*T] {
	return codec[*T]{
		encode: encodeObject[T],
		decode: decodeObject[T],
	}
}

// WatchedGetSet replaces the raw value under key with fn(old) using
// optimistic locking. old and the returned value are nil when the key is
// absent; returning nil deletes the key.
//
// The key is watched, read, and written in a MULTI/EXEC block only if the
// new value differs from the old one. When another client modifies the key
// in between, the update is retried from the start. fn may run once per
// attempt and must not have side effects it cannot repeat.
//
// Errors:
//   - ErrAttemptsExceeded: every attempt lost the race; nothing was written.
//   - ErrProtocol: EXEC succeeded with unexpected replies; the write state is unknown.
//   - ErrCommand: a command failed or fn returned an error (available via errors.Unwrap).
func (c *Client) WatchedGetSet(
	ctx context.Context,
	key string,
	fn func(ctx context.Context, old *string) (*string, error),
	opts ...WatchOption,
) (*string, error) {
	return watchedGetSet(ctx, c, "watchedGetSet", key, rawCodec(), fn, opts)
}

// WatchedGetSetObject is WatchedGetSet for JSON values decoded into T.
// A stored JSON null is passed to fn as nil.
func WatchedGetSetObject[T any](
	ctx context.Context,
	c *Client,
	key string,
	fn func(ctx context.Context, old *T) (*T, error),
	opts ...WatchOption,
) (*T, error) {
	return watchedGetSet(ctx, c, "watchedGetSetObject", key, objectCodec[T](), fn, opts)
}

func watchedGetSet[T any](
	ctx context.Context,
	c *Client,
	op, key string,
	cd codec[T],
	fn func(context.Context, T) (T, error),
	opts []WatchOption,
) (T, error) {
	var zero T

	o := watchOptions{attempts: DefaultAttempts}
	for _, opt := range opts {
		opt(&o)
	}

	cli, err := c.command(ctx)
	if err != nil {
		return zero, err
	}

	for attempt := 1; attempt <= o.attempts; attempt++ {
		var (
			result  T
			written bool
		)
		err := cli.Watch(ctx, func(tx *redis.Tx) error {
			var err error
			result, written, err = watchAttempt(ctx, tx, op, key, attempt, cd, fn)
			return err
		}, key)

		var storeErr *Error
		switch {
		case err == nil:
			if written {
				c.metrics.watchAttempts.WithLabelValues(watchCommitted).Inc()
			} else {
				c.metrics.watchAttempts.WithLabelValues(watchUnchanged).Inc()
			}
			return result, nil
		case errors.As(err, &storeErr):
			c.metrics.watchAttempts.WithLabelValues(watchFailed).Inc()
			return zero, storeErr
		case errors.Is(err, redis.TxFailedErr):
			c.metrics.watchAttempts.WithLabelValues(watchConflict).Inc()
			c.log.DebugContext(ctx, "watched key modified concurrently, retrying",
				slog.String("op", op), logger.Key(key), logger.Attempt(attempt))
			continue
		default:
			c.metrics.watchAttempts.WithLabelValues(watchFailed).Inc()
			return zero, c.fail(cli, err, &Error{
				Kind: KindCommand, Op: op, Key: key, Attempt: attempt, Args: []string{key},
			})
		}
	}

	c.metrics.watchAttempts.WithLabelValues(watchExhausted).Inc()
	return zero, &Error{Kind: KindAttemptsExceeded, Op: op, Key: key, Attempt: o.attempts}
}

func watchAttempt[T any](
	ctx context.Context,
	tx *redis.Tx,
	op, key string,
	attempt int,
	cd codec[T],
	fn func(context.Context, T) (T, error),
) (T, bool, error) {
	var zero T

	var stored *string
	val, err := tx.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return zero, false, err
	default:
		stored = &val
	}

	oldVal, err := cd.decode(stored)
	if err != nil {
		return zero, false, &Error{Kind: KindEncoding, Op: op, Key: key, Attempt: attempt, Err: err}
	}
	// Encode before fn runs: fn may modify oldVal in place.
	oldRaw, err := cd.encode(oldVal)
	if err != nil {
		return zero, false, &Error{Kind: KindEncoding, Op: op, Key: key, Attempt: attempt, Err: err}
	}

	newVal, err := fn(ctx, oldVal)
	if err != nil {
		return zero, false, &Error{Kind: KindCommand, Op: op, Key: key, Attempt: attempt, Err: err}
	}
	newRaw, err := cd.encode(newVal)
	if err != nil {
		return zero, false, &Error{Kind: KindEncoding, Op: op, Key: key, Attempt: attempt, Err: err}
	}

	if sameRaw(oldRaw, newRaw) {
		return oldVal, false, nil
	}

	cmds, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if newRaw == nil {
			pipe.Del(ctx, key)
		} else {
			pipe.Set(ctx, key, *newRaw, 0)
		}
		return nil
	})
	if err != nil {
		return zero, false, err
	}

	if err := checkReplies(cmds, newRaw == nil); err != nil {
		return zero, false, &Error{
			Kind: KindProtocol, Op: op, Key: key, Attempt: attempt,
			Replies: describeReplies(cmds), Err: err,
		}
	}
	return newVal, true, nil
}

func sameRaw(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// checkReplies verifies EXEC answered exactly the one queued command.
func checkReplies(cmds []redis.Cmder, deleted bool) error {
	if len(cmds) != 1 {
		return fmt.Errorf("expected 1 reply, got %d", len(cmds))
	}
	cmd := cmds[0]
	if err := cmd.Err(); err != nil {
		return err
	}
	if deleted {
		if _, ok := cmd.(*redis.IntCmd); !ok {
			return fmt.Errorf("unexpected reply type %T for del", cmd)
		}
		return nil
	}
	status, ok := cmd.(*redis.StatusCmd)
	if !ok {
		return fmt.Errorf("unexpected reply type %T for set", cmd)
	}
	if status.Val() != "OK" {
		return fmt.Errorf("unexpected set reply %q", status.Val())
	}
	return nil
}

func describeReplies(cmds []redis.Cmder) []string {
	out := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, cmd.String())
	}
	return out
}
