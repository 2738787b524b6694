package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/togglekit/pkg/logger"
)

// Handler processes the raw payload of a message received on a channel.
// A returned error or a panic is logged and does not affect other handlers.
type Handler func(ctx context.Context, message string) error

// HandlerID identifies a registered handler.
type HandlerID string

type handlerEntry struct {
	id HandlerID
	fn Handler
}

type registry map[string][]handlerEntry

// subscription is the subscription connection together with the callers
// waiting for the server to confirm a SUBSCRIBE.
type subscription struct {
	ps  *redis.PubSub
	cli *redis.Client

	mu      sync.Mutex
	pending map[string][]chan error
	err     error // set once the connection is gone
}

func newSubscription(ctx context.Context, cli *redis.Client) *subscription {
	return &subscription{
		ps:      cli.Subscribe(ctx),
		cli:     cli,
		pending: make(map[string][]chan error),
	}
}

// expect returns a channel that yields nil once channel is confirmed, or
// the connection error if the connection fails first.
func (s *subscription) expect(channel string) <-chan error {
	ch := make(chan error, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		ch <- s.err
		return ch
	}
	s.pending[channel] = append(s.pending[channel], ch)
	return ch
}

func (s *subscription) confirm(channel string) {
	s.mu.Lock()
	waiters := s.pending[channel]
	delete(s.pending, channel)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- nil
	}
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	pending := s.pending
	s.pending = make(map[string][]chan error)
	s.mu.Unlock()

	for _, waiters := range pending {
		for _, ch := range waiters {
			ch <- err
		}
	}
}

func (s *subscription) Close() error {
	return closeAll(s.ps, s.cli)
}

// Publish sends message to channel over the command connection.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	cli, err := c.command(ctx)
	if err != nil {
		return err
	}

	if err := cli.Publish(ctx, channel, message).Err(); err != nil {
		return c.fail(cli, err, &Error{
			Kind: KindCommand, Op: "publish", Channel: channel, Args: []string{channel, message},
		})
	}
	return nil
}

// RegisterHandler adds h to the handlers of channel. The subscription
// connection is created if needed and the channel is subscribed when h is
// its first handler. RegisterHandler returns once the server has confirmed
// the subscription, so a message published afterwards reaches h.
// Several handlers per channel are supported; each message is delivered to
// all of them concurrently.
func (c *Client) RegisterHandler(ctx context.Context, channel string, h Handler) (HandlerID, error) {
	if h == nil {
		return "", ErrNilHandler
	}

	c.hmu.Lock()
	defer c.hmu.Unlock()

	s, err := c.subscriber(ctx)
	if err != nil {
		return "", err
	}

	id := HandlerID(uuid.NewString())
	first := len(c.handlers[channel]) == 0
	c.handlers[channel] = append(c.handlers[channel], handlerEntry{id: id, fn: h})
	c.publishRoutes()
	if !first {
		return id, nil
	}

	if err := c.subscribe(ctx, s, channel); err != nil {
		delete(c.handlers, channel)
		c.publishRoutes()
		c.abandon(s, channel, err)
		return "", &Error{Kind: KindCommand, Op: "subscribe", Channel: channel, Err: err}
	}
	return id, nil
}

// RemoveHandler removes the handler registered under id. When it was the
// last handler of channel, the channel is unsubscribed. Unknown ids are ignored.
func (c *Client) RemoveHandler(ctx context.Context, channel string, id HandlerID) error {
	c.hmu.Lock()
	defer c.hmu.Unlock()

	entries := c.handlers[channel]
	idx := slices.IndexFunc(entries, func(e handlerEntry) bool { return e.id == id })
	if idx < 0 {
		return nil
	}

	// Delete on a clone: dispatch may still range over the old slice.
	entries = slices.Delete(slices.Clone(entries), idx, idx+1)
	if len(entries) > 0 {
		c.handlers[channel] = entries
		c.publishRoutes()
		return nil
	}

	delete(c.handlers, channel)
	c.publishRoutes()
	return c.unsubscribe(ctx, channel)
}

// RemoveAllHandlers removes every handler of channel and unsubscribes it.
func (c *Client) RemoveAllHandlers(ctx context.Context, channel string) error {
	c.hmu.Lock()
	defer c.hmu.Unlock()

	delete(c.handlers, channel)
	c.publishRoutes()
	return c.unsubscribe(ctx, channel)
}

// HandlerCount returns the number of handlers registered for channel.
func (c *Client) HandlerCount(channel string) int {
	return len((*c.routes.Load())[channel])
}

func (c *Client) hasHandlers() bool {
	return len(*c.routes.Load()) > 0
}

// Must be called with hmu held.
func (c *Client) publishRoutes() {
	r := maps.Clone(c.handlers)
	c.routes.Store(&r)
}

// subscribe sends SUBSCRIBE for channels on s and waits until the server
// confirms every one of them.
func (c *Client) subscribe(ctx context.Context, s *subscription, channels ...string) error {
	waits := make([]<-chan error, 0, len(channels))
	for _, ch := range channels {
		waits = append(waits, s.expect(ch))
	}

	if err := s.ps.Subscribe(ctx, channels...); err != nil {
		return err
	}

	timeout := time.NewTimer(c.cfg.ConnectTimeout)
	defer timeout.Stop()

	for _, w := range waits {
		select {
		case err := <-w:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return ErrNotConfirmed
		}
	}
	return nil
}

// abandon cleans up after a SUBSCRIBE for channel that did not complete.
// A caller that gave up leaves the connection healthy, so the channel is
// unsubscribed in case the server still confirms it. Anything else means the
// connection can no longer be trusted.
func (c *Client) abandon(s *subscription, channel string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		uerr := s.ps.Unsubscribe(c.ctx, channel)
		if uerr == nil {
			return
		}
		err = uerr
	}
	c.lostSubscriber(s, err)
}

// Must be called with hmu held.
func (c *Client) unsubscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	s := c.sub
	c.mu.Unlock()

	// No connection means nothing is subscribed.
	if s == nil {
		return nil
	}

	if err := s.ps.Unsubscribe(ctx, channel); err != nil {
		c.lostSubscriber(s, err)
		return &Error{Kind: KindCommand, Op: "unsubscribe", Channel: channel, Err: err}
	}
	return nil
}

// subscriber returns the subscription connection, creating it if needed.
// A new connection is subscribed to every channel that has handlers.
// Must be called with hmu held.
func (c *Client) subscriber(ctx context.Context) (*subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.sub != nil {
		s := c.sub
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	cli, err := c.dial(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to create subscription connection", logger.Error(err))
		return nil, err
	}

	s := newSubscription(c.ctx, cli)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = s.Close()
		return nil, ErrClosed
	}
	c.sub = s
	c.wg.Add(1)
	go c.receive(s)
	c.mu.Unlock()

	if channels := slices.Sorted(maps.Keys(c.handlers)); len(channels) > 0 {
		if err := c.subscribe(ctx, s, channels...); err != nil {
			c.lostSubscriber(s, err)
			return nil, &Error{Kind: KindCommand, Op: "subscribe", Channel: channels[0], Args: channels, Err: err}
		}
	}
	return s, nil
}

// dropSubscriber tears down s if it is still the current subscription
// connection and reports whether it was.
func (c *Client) dropSubscriber(s *subscription) bool {
	c.mu.Lock()
	if c.sub != s {
		c.mu.Unlock()
		return false
	}
	c.sub = nil
	c.mu.Unlock()

	_ = s.Close()
	return true
}

// lostSubscriber handles a failure of s, wherever it was noticed. Only the
// first caller for the current connection counts it and, while handlers
// remain registered, starts recovery.
func (c *Client) lostSubscriber(s *subscription, err error) {
	s.fail(err)
	// A connection replaced by Reset or an earlier failure ends quietly.
	if !c.dropSubscriber(s) {
		return
	}
	c.metrics.connDrops.WithLabelValues(connSubscription).Inc()
	c.log.Warn("subscription connection lost", logger.Error(err))
	if c.hasHandlers() {
		c.startRecovery(c.cfg.RetryInterval)
	}
}

// receive delivers messages from s until it fails or is closed.
func (c *Client) receive(s *subscription) {
	defer c.wg.Done()

	for {
		msg, err := s.ps.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				s.fail(err)
				return
			}
			c.lostSubscriber(s, err)
			return
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				s.confirm(m.Channel)
			}
		case *redis.Message:
			c.dispatch(m.Channel, m.Payload)
		}
	}
}

// startRecovery recreates the subscription connection in the background,
// retrying every RetryInterval until it succeeds, the registry becomes
// empty or the client is closed. At most one recovery runs at a time.
func (c *Client) startRecovery(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.recovering {
		return
	}
	c.recovering = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		for {
			if delay > 0 {
				select {
				case <-c.ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			delay = c.cfg.RetryInterval

			err := c.resubscribe()
			if c.ctx.Err() != nil {
				return
			}
			if err != nil {
				c.log.Warn("failed to restore subscription", logger.Error(err))
				continue
			}

			// The new connection may have failed already; its loss was
			// not acted on while this loop was running.
			c.mu.Lock()
			if c.sub != nil || !c.hasHandlers() {
				c.recovering = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}()
}

func (c *Client) resubscribe() error {
	c.hmu.Lock()
	defer c.hmu.Unlock()

	if len(c.handlers) == 0 {
		return nil
	}

	if _, err := c.subscriber(c.ctx); err != nil {
		return err
	}
	c.log.Info("subscription restored", slog.Int("channels", len(c.handlers)))
	return nil
}

// dispatch runs every handler of channel in its own goroutine. Messages for
// channels without handlers are dropped: they can still arrive right after
// an unsubscribe.
func (c *Client) dispatch(channel, payload string) {
	c.metrics.messages.WithLabelValues(channel).Inc()

	for _, e := range (*c.routes.Load())[channel] {
		c.wg.Add(1)
		go c.runHandler(channel, e, payload)
	}
}

func (c *Client) runHandler(channel string, e handlerEntry, payload string) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.metrics.handlerFailures.WithLabelValues(channel).Inc()
			c.log.Error("message handler panicked",
				logger.Channel(channel),
				logger.HandlerID(e.id),
				logger.Error(&Error{Kind: KindHandler, Channel: channel, Err: fmt.Errorf("panic: %v", r)}),
			)
		}
	}()

	if err := e.fn(c.ctx, payload); err != nil {
		c.metrics.handlerFailures.WithLabelValues(channel).Inc()
		c.log.Error("message handler failed",
			logger.Channel(channel),
			logger.HandlerID(e.id),
			logger.Error(&Error{Kind: KindHandler, Channel: channel, Err: err}),
		)
	}
}
