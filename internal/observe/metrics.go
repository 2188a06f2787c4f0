// Package observe provides application-wide observability primitives for
// lingobridge: OpenTelemetry metrics, tracing, trace-aware logging, and the
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider]. [DefaultMetrics] returns a package-level
// instance backed by the global meter provider; tests should call
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all lingobridge metrics.
const meterName = "github.com/MrWong99/lingobridge"

// Capture outcomes recorded by [Metrics.RecordCapture].
const (
	OutcomeTranslated = "translated"
	OutcomeNoSpeech   = "no_speech"
	OutcomeFailed     = "failed"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// CaptureDuration tracks the time from BeginCapture to the end of the
	// settle window.
	CaptureDuration metric.Float64Histogram

	// TranslationDuration tracks translator latency. Use with attributes:
	//   attribute.String("pair", ...), attribute.String("status", ...)
	TranslationDuration metric.Float64Histogram

	// SynthesisDuration tracks the time from Speak to the end of playback.
	SynthesisDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Captures counts finished capture cycles by outcome.
	Captures metric.Int64Counter

	// SessionErrors counts errors surfaced to the user, by kind.
	SessionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures is 1 while the microphone is open.
	ActiveCaptures metric.Int64UpDownCounter

	// ReadySessions tracks provisioned translation sessions.
	ReadySessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// interactive speech latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureDuration, err = m.Float64Histogram("lingobridge.capture.duration",
		metric.WithDescription("Duration of a capture from start to the end of settling."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("lingobridge.translation.duration",
		metric.WithDescription("Latency of one translation request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("lingobridge.synthesis.duration",
		metric.WithDescription("Duration of synthesis and playback of one utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("lingobridge.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("lingobridge.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Captures, err = m.Int64Counter("lingobridge.captures",
		metric.WithDescription("Finished capture cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("lingobridge.session.errors",
		metric.WithDescription("Errors shown to the user by kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCaptures, err = m.Int64UpDownCounter("lingobridge.active_captures",
		metric.WithDescription("Number of open microphone captures."),
	); err != nil {
		return nil, err
	}
	if met.ReadySessions, err = m.Int64UpDownCounter("lingobridge.translation.ready_sessions",
		metric.WithDescription("Number of provisioned translation sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("lingobridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCapture records a finished capture and how it ended.
func (m *Metrics) RecordCapture(ctx context.Context, direction, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("outcome", outcome),
	)
	m.Captures.Add(ctx, 1, attrs)
	m.CaptureDuration.Record(ctx, seconds, attrs)
}

// RecordTranslation records the latency of one translation.
func (m *Metrics) RecordTranslation(ctx context.Context, pair, status string, seconds float64) {
	m.TranslationDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("pair", pair),
			attribute.String("status", status),
		),
	)
}

// RecordSessionError counts an error surfaced in session state.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
