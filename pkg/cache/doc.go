// Package cache provides process-local memoization for values that are
// expensive to compute or have to be fetched from a remote store.
//
// Two caches are available:
//
//   - Cache memoizes values without expiration.
//   - ExpiringCache stores an expiration time with each value and treats an
//     entry as present only while now <= expiresAt + gap. The gap (default
//     100ms) absorbs clock skew between instances and refresh latency.
//
// Both are keyed by strings. Composite keys are built by joining parts with a
// separator (default "##"):
//
//	c := cache.NewExpiring[*Flag]()
//	key := c.Key("flags", tenantID)
//
// Parts must not contain the separator; the cache does not check it.
//
// Storing a nil value (nil pointer, map, slice, interface, func or channel)
// is the same as deleting the key. This mirrors the remote store, where an
// explicit null and a missing key are both "no value", so a cache shadowing
// the store observes the same semantics.
//
// # Compute if absent
//
// GetOrSet and GetOrSetContext return a valid cached value or call a producer
// to fill the entry. ExpiringCache takes the current time from the caller:
//
//	flags, err := c.GetOrSetContext(ctx, "flags", time.Now(),
//	    func(ctx context.Context) (*Flags, time.Time, error) {
//	        f, err := load(ctx)
//	        return f, time.Now().Add(5 * time.Second), err
//	    })
//
// A producer error is returned unchanged and nothing is stored.
//
// All operations are safe for concurrent use.
package cache
