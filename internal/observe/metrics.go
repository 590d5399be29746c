// Package observe provides observability primitives for the sori server:
// OpenTelemetry metrics, tracing helpers, and HTTP middleware that ties them
// together.
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

// meterName is the instrumentation scope name used for all sori metrics.
const meterName = "github.com/podonamu/sori"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// MatchAttempts counts match engine evaluations. Use with attributes:
	//   attribute.String("outcome", "matched"|"rejected")
	MatchAttempts metric.Int64Counter

	// MatchSimilarity tracks the similarity score distribution of match
	// evaluations, matched or not.
	MatchSimilarity metric.Float64Histogram

	// VersesMatched counts verses successfully read aloud.
	VersesMatched metric.Int64Counter

	// SessionsEnded counts finished sessions. Use with attribute:
	//   attribute.String("reason", "completed"|"stopped"|"error")
	SessionsEnded metric.Int64Counter

	// ActiveSessions tracks the number of live reading sessions.
	ActiveSessions metric.Int64UpDownCounter

	// RecogniserErrors counts recogniser errors by kind.
	RecogniserErrors metric.Int64Counter

	// PersistFailures counts failed progress writes. Saves are advisory,
	// so this counter is the only durable signal of a broken store.
	PersistFailures metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// similarityBuckets spans the 0-100 score scale with finer resolution around
// the decision thresholds.
var similarityBuckets = []float64{
	10, 20, 30, 40, 45, 50, 55, 60, 65, 70, 80, 90, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.MatchAttempts, err = m.Int64Counter("sori.match.attempts",
		metric.WithDescription("Total match engine evaluations by outcome."),
	); err != nil {
		return nil, err
	}
	if met.MatchSimilarity, err = m.Float64Histogram("sori.match.similarity",
		metric.WithDescription("Similarity score distribution of match evaluations."),
		metric.WithExplicitBucketBoundaries(similarityBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VersesMatched, err = m.Int64Counter("sori.verses.matched",
		metric.WithDescription("Total verses successfully read aloud."),
	); err != nil {
		return nil, err
	}
	if met.SessionsEnded, err = m.Int64Counter("sori.sessions.ended",
		metric.WithDescription("Total finished sessions by reason."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("sori.active_sessions",
		metric.WithDescription("Number of live reading sessions."),
	); err != nil {
		return nil, err
	}
	if met.RecogniserErrors, err = m.Int64Counter("sori.recogniser.errors",
		metric.WithDescription("Total recogniser errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.PersistFailures, err = m.Int64Counter("sori.persist.failures",
		metric.WithDescription("Total failed progress store writes."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sori.http.request.duration",
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

// RecordMatchAttempt records one engine evaluation with its similarity score.
func (m *Metrics) RecordMatchAttempt(ctx context.Context, matched bool, similarity int) {
	outcome := "rejected"
	if matched {
		outcome = "matched"
	}
	m.MatchAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.MatchSimilarity.Record(ctx, float64(similarity))
	if matched {
		m.VersesMatched.Add(ctx, 1)
	}
}

// RecordSessionEnd records one finished session with its end reason.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string) {
	m.SessionsEnded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordRecogniserError records one recogniser error by kind.
func (m *Metrics) RecordRecogniserError(ctx context.Context, kind string) {
	m.RecogniserErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
