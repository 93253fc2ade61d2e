// Package observe provides application-wide observability primitives for
// Proofline: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Proofline metrics.
const meterName = "github.com/MrWong99/proofline"

// Cycle outcomes recorded by [Metrics.RecordCycle].
const (
	OutcomeCorrected = "corrected"
	OutcomeUnchanged = "unchanged"
	OutcomeNotFound  = "not_found"
	OutcomeStale     = "stale"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// OracleDuration tracks the round-trip time of a single oracle call.
	OracleDuration metric.Float64Histogram

	// CycleDuration tracks a correction cycle from oracle submission to gate
	// release.
	CycleDuration metric.Float64Histogram

	// --- Counters ---

	// OracleRequests counts oracle calls. Use with attributes:
	//   attribute.String("oracle", ...), attribute.String("status", ...)
	OracleRequests metric.Int64Counter

	// Cycles counts finished correction cycles. Use with attribute:
	//   attribute.String("outcome", ...)
	Cycles metric.Int64Counter

	// Highlights counts changed-word marks applied. Use with attribute:
	//   attribute.String("tag", ...)
	Highlights metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// OracleErrors counts oracle failures. Use with attributes:
	//   attribute.String("oracle", ...), attribute.String("kind", ...)
	OracleErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected editor bridge sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// oracle round-trips, from a cached hit to a slow LLM.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.OracleDuration, err = m.Float64Histogram("proofline.oracle.duration",
		metric.WithDescription("Latency of a single correction oracle call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CycleDuration, err = m.Float64Histogram("proofline.cycle.duration",
		metric.WithDescription("Duration of a correction cycle from submission to release."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.OracleRequests, err = m.Int64Counter("proofline.oracle.requests",
		metric.WithDescription("Total oracle requests by oracle and status."),
	); err != nil {
		return nil, err
	}
	if met.Cycles, err = m.Int64Counter("proofline.correction.cycles",
		metric.WithDescription("Total correction cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Highlights, err = m.Int64Counter("proofline.highlights",
		metric.WithDescription("Total changed-word highlights by tag."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("proofline.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions by breaker and new state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.OracleErrors, err = m.Int64Counter("proofline.oracle.errors",
		metric.WithDescription("Total oracle errors by oracle and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("proofline.active_sessions",
		metric.WithDescription("Number of connected editor bridge sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("proofline.http.request.duration",
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

// RecordOracleRequest records an oracle request counter increment with the
// standard attribute set.
func (m *Metrics) RecordOracleRequest(ctx context.Context, oracle, status string) {
	m.OracleRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("oracle", oracle),
			attribute.String("status", status),
		),
	)
}

// RecordOracleError records an oracle error counter increment.
func (m *Metrics) RecordOracleError(ctx context.Context, oracle, kind string) {
	m.OracleErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("oracle", oracle),
			attribute.String("kind", kind),
		),
	)
}

// RecordCycle records a finished correction cycle with the given outcome.
func (m *Metrics) RecordCycle(ctx context.Context, outcome string) {
	m.Cycles.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordHighlights records n highlights applied with tag.
func (m *Metrics) RecordHighlights(ctx context.Context, tag string, n int) {
	if n <= 0 {
		return
	}
	m.Highlights.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("tag", tag)),
	)
}

// RecordBreakerTransition records a circuit breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}
