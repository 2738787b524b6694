package redis

import (
	"context"
	"errors"
)

// Healthcheck returns a probe that pings the store over the command
// connection, creating it if needed.
func (c *Client) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		cli, err := c.command(ctx)
		if err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		if err := cli.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, c.fail(cli, err, &Error{Kind: KindCommand, Op: "ping"}))
		}
		return nil
	}
}
