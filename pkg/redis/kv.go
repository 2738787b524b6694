package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Get returns the raw value stored under key, or nil if the key is absent.
func (c *Client) Get(ctx context.Context, key string) (*string, error) {
	cli, err := c.command(ctx)
	if err != nil {
		return nil, err
	}

	val, err := cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, c.fail(cli, err, &Error{Kind: KindCommand, Op: "get", Key: key, Args: []string{key}})
	}
	return &val, nil
}

// Set stores value under key without expiration.
func (c *Client) Set(ctx context.Context, key, value string) error {
	cli, err := c.command(ctx)
	if err != nil {
		return err
	}

	if err := cli.Set(ctx, key, value, 0).Err(); err != nil {
		return c.fail(cli, err, &Error{Kind: KindCommand, Op: "set", Key: key, Args: []string{key, value}})
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	cli, err := c.command(ctx)
	if err != nil {
		return err
	}

	if err := cli.Del(ctx, key).Err(); err != nil {
		return c.fail(cli, err, &Error{Kind: KindCommand, Op: "del", Key: key, Args: []string{key}})
	}
	return nil
}

// GetObject returns the JSON value stored under key decoded into T.
// An absent key and a stored JSON null both return nil.
func GetObject[T any](ctx context.Context, c *Client, key string) (*T, error) {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	v, err := decodeObject[T](raw)
	if err != nil {
		return nil, &Error{Kind: KindEncoding, Op: "getObject", Key: key, Err: err}
	}
	return v, nil
}

// SetObject stores v under key as JSON. A nil v, or one that encodes to
// null, deletes the key instead.
func SetObject[T any](ctx context.Context, c *Client, key string, v *T) error {
	raw, err := encodeObject(v)
	if err != nil {
		return &Error{Kind: KindEncoding, Op: "setObject", Key: key, Err: err}
	}
	if raw == nil {
		return c.Delete(ctx, key)
	}
	return c.Set(ctx, key, *raw)
}

const jsonNull = "null"

func encodeObject[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	if s == jsonNull {
		return nil, nil
	}
	return &s, nil
}

func decodeObject[T any](raw *string) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	var v *T
	if err := json.Unmarshal([]byte(*raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}
