// Package observe provides application-wide observability primitives for
// harmonium: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all harmonium metrics.
const meterName = "github.com/harmonium/harmonium"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ResolveDuration tracks how long a single resolver call takes.
	ResolveDuration metric.Float64Histogram

	// CheckpointWriteDuration tracks how long a single checkpoint write takes.
	CheckpointWriteDuration metric.Float64Histogram

	// --- Counters ---

	// QueueOperations counts mutating queue operations. Use with attributes:
	//   attribute.String("op", "add"|"remove"|"move"|"shuffle"|"skip")
	QueueOperations metric.Int64Counter

	// ResolveErrors counts resolver failures. Use with attribute:
	//   attribute.String("kind", "not_found"|"unavailable"|"forbidden"|"other")
	ResolveErrors metric.Int64Counter

	// TransportErrors counts transport-layer failures. Use with attribute:
	//   attribute.String("op", "join"|"change_stream"|"leave")
	TransportErrors metric.Int64Counter

	// AssistantPresenceOutcomes counts EnsureReady outcomes. Use with
	// attribute: attribute.String("reason", presence.BlockReason.String()).
	AssistantPresenceOutcomes metric.Int64Counter

	// --- Gauges ---

	// ActiveChats tracks the number of chats with a live playback actor.
	ActiveChats metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// everything from a cache-hit checkpoint write to a slow extractor call.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResolveDuration, err = m.Float64Histogram("harmonium.resolve.duration",
		metric.WithDescription("Latency of a single resolver call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CheckpointWriteDuration, err = m.Float64Histogram("harmonium.checkpoint.write.duration",
		metric.WithDescription("Latency of a single checkpoint write."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.QueueOperations, err = m.Int64Counter("harmonium.queue.operations",
		metric.WithDescription("Total mutating queue operations by kind."),
	); err != nil {
		return nil, err
	}
	if met.ResolveErrors, err = m.Int64Counter("harmonium.resolve.errors",
		metric.WithDescription("Total resolver failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("harmonium.transport.errors",
		metric.WithDescription("Total transport failures by operation."),
	); err != nil {
		return nil, err
	}
	if met.AssistantPresenceOutcomes, err = m.Int64Counter("harmonium.presence.outcomes",
		metric.WithDescription("Total EnsureReady outcomes by reason."),
	); err != nil {
		return nil, err
	}

	if met.ActiveChats, err = m.Int64UpDownCounter("harmonium.active_chats",
		metric.WithDescription("Number of chats with a live playback actor."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("harmonium.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordQueueOp is a convenience method that records a queue operation
// counter increment.
func (m *Metrics) RecordQueueOp(ctx context.Context, op string) {
	m.QueueOperations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordResolveError is a convenience method that records a resolver error
// counter increment.
func (m *Metrics) RecordResolveError(ctx context.Context, kind string) {
	m.ResolveErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTransportError is a convenience method that records a transport
// error counter increment.
func (m *Metrics) RecordTransportError(ctx context.Context, op string) {
	m.TransportErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordPresenceOutcome is a convenience method that records an
// EnsureReady outcome counter increment.
func (m *Metrics) RecordPresenceOutcome(ctx context.Context, reason string) {
	m.AssistantPresenceOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
