package redis

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "togglekit"

// Results of a watched update attempt.
const (
	watchCommitted = "committed"
	watchUnchanged = "unchanged"
	watchConflict  = "conflict"
	watchExhausted = "exhausted"
	watchFailed    = "failed"
)

// Connections that can be dropped after a transport failure.
const (
	connCommand      = "command"
	connSubscription = "subscription"
)

// metrics are always collected; they are exposed only when a Registerer is
// given through WithMetrics.
type metrics struct {
	watchAttempts   *prometheus.CounterVec
	connDrops       *prometheus.CounterVec
	messages        *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		watchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "redis",
				Name:      "watch_attempts_total",
				Help:      "Optimistic update attempts by result.",
			},
			[]string{"result"},
		),
		connDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "redis",
				Name:      "connection_drops_total",
				Help:      "Connections closed after a transport failure.",
			},
			[]string{"connection"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "redis",
				Name:      "messages_received_total",
				Help:      "Pub/sub messages received per channel, including dropped ones.",
			},
			[]string{"channel"},
		),
		handlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "redis",
				Name:      "handler_failures_total",
				Help:      "Message handlers that returned an error or panicked.",
			},
			[]string{"channel"},
		),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.watchAttempts, m.connDrops, m.messages, m.handlerFailures}
}

// WithMetrics registers the client metrics with reg.
// It panics if they are already registered there.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		if reg != nil {
			reg.MustRegister(c.metrics.collectors()...)
		}
	}
}
