// Package redis gives many application instances consistent access to
// shared state in Redis and notifies them when it changes.
//
// The package wraps the go-redis client and adds:
//
//   - A Client that owns two lazily created connections: one for commands
//     and publishing, one dedicated to pub/sub delivery. A connection that
//     fails at the transport level is closed and recreated by the next
//     operation that needs it.
//   - Optimistic read-modify-write of a single key (WatchedGetSet and
//     WatchedGetSetObject) built on WATCH and MULTI/EXEC.
//   - A handler registry that multiplexes any number of handlers per channel
//     over the single subscription connection.
//   - Credential resolution for hosted environments (ServiceCredentials) with
//     a fallback to REDIS_URL.
//
// Configuration is described by the Config struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client := redis.New(cfg, redis.WithLogger(log))
//	defer client.Close()
//
// Values are either raw strings or JSON documents. nil is the "no value"
// sentinel for both; storing nil deletes the key:
//
//	err := redis.SetObject(ctx, client, "flags", &flags)
//	flags, err := redis.GetObject[Flags](ctx, client, "flags")
//
// # Optimistic updates
//
// WatchedGetSetObject reads the key under WATCH, calls fn with the current
// value and commits the result in MULTI/EXEC. If another instance changed the
// key in between, the whole cycle is retried, up to 10 times by default:
//
//	updated, err := redis.WatchedGetSetObject(ctx, client, "flags",
//	    func(ctx context.Context, old *Flags) (*Flags, error) {
//	        if old == nil {
//	            old = &Flags{}
//	        }
//	        old.Enabled["new-ui"] = true
//	        return old, nil
//	    })
//
// If the new value encodes to the same text as the old one, nothing is
// written. Returning nil deletes the key.
//
// # Change notification
//
//	id, err := client.RegisterHandler(ctx, "flags:changed",
//	    func(ctx context.Context, msg string) error {
//	        localCache.Delete("flags")
//	        return nil
//	    })
//	...
//	err = client.Publish(ctx, "flags:changed", "new-ui")
//	err = client.RemoveHandler(ctx, "flags:changed", id)
//
// RegisterHandler returns after the server confirms the subscription, so a
// message published once it returns is delivered. Beyond that, delivery is
// best effort: messages published while the subscription connection is down
// are lost. After a transport failure the subscription is
// restored in the background while handlers remain registered.
//
// # Errors
//
// Store-facing failures are returned as *Error carrying the operation, key or
// channel, attempt number and the underlying cause. Match them by kind:
//
//	if errors.Is(err, redis.ErrAttemptsExceeded) || errors.Is(err, redis.ErrProtocol) {
//	    // the update could not be confirmed as applied
//	}
//
// Handler failures never reach the caller; they are logged.
//
// # Metrics
//
// WithMetrics exposes Prometheus counters for watched update results,
// dropped connections, received messages and failed handlers:
//
//	client := redis.New(cfg, redis.WithMetrics(prometheus.DefaultRegisterer))
package redis
