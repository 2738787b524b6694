package cache

import "time"

// DefaultGap is the grace window an expiring entry stays valid after its
// nominal expiration.
const DefaultGap = 100 * time.Millisecond

type options struct {
	separator string
	gap       time.Duration
}

// Option configures a cache.
type Option func(*options)

// WithSeparator sets the separator used by Key. Empty values are ignored.
func WithSeparator(sep string) Option {
	return func(o *options) {
		if sep != "" {
			o.separator = sep
		}
	}
}

// WithGap sets the staleness gap of an ExpiringCache. Negative values are ignored.
func WithGap(gap time.Duration) Option {
	return func(o *options) {
		if gap >= 0 {
			o.gap = gap
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		separator: DefaultSeparator,
		gap:       DefaultGap,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
