package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/togglekit/pkg/logger"
)

// Client gives access to a shared Redis instance over two lazily created
// connections: one for commands and publishing, one that only receives
// pub/sub messages. A connection that fails at the transport level is
// closed and recreated by the next operation that needs it.
//
// A Client is safe for concurrent use. Create one per process and share it.
type Client struct {
	cfg     Config
	resolve OptionsResolver
	log     *slog.Logger
	metrics *metrics

	ctx    context.Context // cancelled by Close; handlers run with it
	cancel context.CancelFunc
	wg     sync.WaitGroup // receive loop, recovery loop, running handlers

	mu         sync.Mutex // guards the connection handles, closed and recovering
	cmd        *redis.Client
	sub        *subscription
	closed     bool
	recovering bool

	hmu      sync.RWMutex // guards handlers; acquired before mu
	handlers registry
	routes   atomic.Pointer[registry] // read-only copy of handlers for the receive loop
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithOptionsResolver replaces the credential source. Nil is ignored.
func WithOptionsResolver(fn OptionsResolver) Option {
	return func(c *Client) {
		if fn != nil {
			c.resolve = fn
		}
	}
}

// WithOptions makes every connection use a copy of opts instead of resolving
// them from the Config.
func WithOptions(opts *redis.Options) Option {
	return WithOptionsResolver(func(Config) (*redis.Options, error) {
		o := *opts
		return &o, nil
	})
}

// New creates a Client. No connection is opened until the first operation.
func New(cfg Config, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg.withDefaults(),
		resolve:  ResolveOptions,
		log:      slog.Default(),
		metrics:  newMetrics(),
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(registry),
	}
	c.routes.Store(&registry{})
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("redis"))
	return c
}

func (c *Client) dial(ctx context.Context) (*redis.Client, error) {
	opts, err := c.resolve(c.cfg)
	if err != nil {
		return nil, &Error{Kind: KindConnection, Op: "resolve", Err: err}
	}
	cli, err := connect(ctx, c.cfg, opts)
	if err != nil {
		return nil, &Error{Kind: KindConnection, Op: "connect", Err: err}
	}
	return cli, nil
}

// command returns the command connection, creating it if needed.
func (c *Client) command(ctx context.Context) (*redis.Client, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.cmd != nil {
		cli := c.cmd
		c.mu.Unlock()
		return cli, nil
	}
	c.mu.Unlock()

	// Dial without the lock: pings may be retried for a while.
	cli, err := c.dial(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to create command connection", logger.Error(err))
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = cli.Close()
		return nil, ErrClosed
	}
	if c.cmd != nil {
		// Lost the race with a concurrent caller.
		_ = cli.Close()
		return c.cmd, nil
	}
	c.cmd = cli
	return cli, nil
}

// fail wraps err into e and drops the command connection if err is a
// transport failure.
func (c *Client) fail(cli *redis.Client, err error, e *Error) error {
	if isTransportError(err) {
		c.log.Warn("command connection failed, dropping it",
			slog.String("op", e.Op),
			logger.Error(err),
		)
		c.mu.Lock()
		if c.cmd == cli {
			c.cmd = nil
			c.metrics.connDrops.WithLabelValues(connCommand).Inc()
		}
		c.mu.Unlock()
		_ = cli.Close()
	}
	e.Err = err
	return e
}

// isTransportError reports whether err means the connection is unusable.
// Server replies (including redis.Nil and redis.TxFailedErr) and context
// errors leave the connection intact.
func isTransportError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var replyErr redis.Error
	return !errors.As(err, &replyErr)
}

// Reset closes both connections. The next operation recreates them; if
// handlers are registered the subscription is restored right away.
func (c *Client) Reset() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	cmd, sub := c.cmd, c.sub
	c.cmd, c.sub = nil, nil
	c.mu.Unlock()

	err := closeAll(sub, cmd)

	if c.hasHandlers() {
		c.startRecovery(0)
	}
	return err
}

// Close stops message delivery, waits for running handlers and closes both
// connections. Operations on a closed Client return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cmd, sub := c.cmd, c.sub
	c.cmd, c.sub = nil, nil
	c.mu.Unlock()

	c.cancel()
	err := closeAll(sub, cmd)
	c.wg.Wait()

	c.hmu.Lock()
	clear(c.handlers)
	c.publishRoutes()
	c.hmu.Unlock()

	return err
}

type closer interface {
	Close() error
}

func closeAll(items ...closer) error {
	var errs []error
	for _, item := range items {
		switch v := item.(type) {
		case *redis.Client:
			if v == nil {
				continue
			}
		case *redis.PubSub:
			if v == nil {
				continue
			}
		case *subscription:
			if v == nil {
				continue
			}
		}
		if err := item.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
