// Package observe provides application-wide observability primitives for
// countrycall: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all countrycall metrics.
const meterName = "github.com/MrWong99/countrycall"

// Well-known values of the "stage" attribute on WindowsDropped.
const (
	// DropStageQueue marks a window evicted from the bounded window queue.
	DropStageQueue = "queue"

	// DropStagePending marks a window replaced in the scheduler's pending slot.
	DropStagePending = "pending"

	// DropStageBuffer marks raw samples discarded before a window was cut.
	DropStageBuffer = "buffer"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks speech-to-text transcription latency per window.
	STTDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// WindowsEmitted counts audio windows cut by chunkers.
	WindowsEmitted metric.Int64Counter

	// WindowsDropped counts windows lost to backpressure. Use with attribute:
	//   attribute.String("stage", DropStageQueue|DropStagePending|DropStageBuffer)
	WindowsDropped metric.Int64Counter

	// Transcripts counts transcripts delivered to games.
	Transcripts metric.Int64Counter

	// Matches counts matched entities. Use with attribute:
	//   attribute.String("kind", "new"|"repeat")
	Matches metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of running game sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Distributions ---

	// SessionScore records the final score of every ended session.
	SessionScore metric.Int64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for batch transcription of short windows.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10,
}

// scoreBuckets covers everything from a silent round to naming most of the
// catalog.
var scoreBuckets = []float64{0, 1, 5, 10, 20, 35, 50, 75, 100, 150, 200}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("countrycall.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription per window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionScore, err = m.Int64Histogram("countrycall.session.score",
		metric.WithDescription("Final score of ended sessions."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("countrycall.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("countrycall.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.WindowsEmitted, err = m.Int64Counter("countrycall.windows.emitted",
		metric.WithDescription("Total audio windows cut for transcription."),
	); err != nil {
		return nil, err
	}
	if met.WindowsDropped, err = m.Int64Counter("countrycall.windows.dropped",
		metric.WithDescription("Total audio windows dropped by backpressure, by stage."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("countrycall.transcripts",
		metric.WithDescription("Total transcripts delivered to games."),
	); err != nil {
		return nil, err
	}
	if met.Matches, err = m.Int64Counter("countrycall.matches",
		metric.WithDescription("Total matched entities by kind (new or repeat)."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("countrycall.active_sessions",
		metric.WithDescription("Number of running game sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("countrycall.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordWindowDropped records a dropped window at the given stage.
func (m *Metrics) RecordWindowDropped(ctx context.Context, stage string) {
	m.WindowsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordMatches records newly credited and repeated matches of one
// transcript.
func (m *Metrics) RecordMatches(ctx context.Context, newCount, repeatCount int) {
	if newCount > 0 {
		m.Matches.Add(ctx, int64(newCount), metric.WithAttributes(attribute.String("kind", "new")))
	}
	if repeatCount > 0 {
		m.Matches.Add(ctx, int64(repeatCount), metric.WithAttributes(attribute.String("kind", "repeat")))
	}
}
