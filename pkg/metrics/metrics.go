package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the Prometheus collector.
type Config struct {
	// Namespace is the metrics namespace (default: "motion").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "motion",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector records session, dispatch and routing activity. It implements
// both channel.Observer and streams.Observer, so passing it as a session's
// observer also instruments that session's router.
//
// Metrics collected:
//   - motion_sessions_active: Gauge of connected sessions
//   - motion_sessions_rejected_total: Counter of rejected subscriptions by reason
//   - motion_dispatch_total: Counter of motions and broadcasts by kind and status
//   - motion_dispatch_duration_seconds: Histogram of dispatch duration by kind
//   - motion_renders_total: Counter of reconciliations by result
//   - motion_subscriptions_total: Counter of substrate subscriptions installed
//   - motion_broadcast_deliveries_total: Counter of routed broadcasts by result
//   - motion_websocket_errors_total: Counter of transport errors by type
type Collector struct {
	sessionsActive   prometheus.Gauge
	sessionsRejected *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	rendersTotal     *prometheus.CounterVec
	subscriptions    prometheus.Counter
	deliveries       *prometheus.CounterVec
	wsErrors         *prometheus.CounterVec
}

// New creates a collector and registers its metrics.
// Registering twice on the same registry panics.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_active",
			Help:        "Number of connected sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_rejected_total",
			Help:        "Total number of rejected subscriptions",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_total",
			Help:        "Total number of motions and broadcasts dispatched to components",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "status"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Dispatch duration in seconds, including lock wait and render",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		rendersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "renders_total",
			Help:        "Total number of reconciliations by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		subscriptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "subscriptions_total",
			Help:        "Total number of substrate subscriptions installed",
			ConstLabels: config.ConstLabels,
		}),

		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "broadcast_deliveries_total",
			Help:        "Total number of broadcasts reaching a router by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// SessionConnected implements channel.Observer.
func (c *Collector) SessionConnected() {
	c.sessionsActive.Inc()
}

// SessionRejected implements channel.Observer.
func (c *Collector) SessionRejected(reason string) {
	c.sessionsRejected.WithLabelValues(reason).Inc()
}

// SessionClosed implements channel.Observer.
func (c *Collector) SessionClosed() {
	c.sessionsActive.Dec()
}

// Dispatched implements channel.Observer.
func (c *Collector) Dispatched(kind, status string, elapsed time.Duration) {
	c.dispatchTotal.WithLabelValues(kind, status).Inc()
	c.dispatchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Rendered implements channel.Observer.
func (c *Collector) Rendered(result string) {
	c.rendersTotal.WithLabelValues(result).Inc()
}

// SubscriptionInstalled implements streams.Observer.
func (c *Collector) SubscriptionInstalled(string) {
	c.subscriptions.Inc()
}

// BroadcastDelivered implements streams.Observer.
func (c *Collector) BroadcastDelivered(string) {
	c.deliveries.WithLabelValues("delivered").Inc()
}

// BroadcastDropped implements streams.Observer. Topics are not used as
// labels; their cardinality is unbounded.
func (c *Collector) BroadcastDropped(_, reason string) {
	c.deliveries.WithLabelValues("dropped_" + reason).Inc()
}

// BroadcastFailed implements streams.Observer.
func (c *Collector) BroadcastFailed(string, error) {
	c.deliveries.WithLabelValues("failed").Inc()
}

// WebSocketError records a transport error.
func (c *Collector) WebSocketError(errType string) {
	c.wsErrors.WithLabelValues(errType).Inc()
}
