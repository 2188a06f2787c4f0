package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// record runs fn against fresh Metrics and returns everything it produced.
func record(t *testing.T, fn func(ctx context.Context, m *Metrics)) metricdata.ResourceMetrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	fn(context.Background(), m)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the points of an int64 sum whose attribute key has the
// given value. An empty key matches every point.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

// sampleCount is the number of recordings across all points of a histogram.
func sampleCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is %T, want Histogram[float64]", name, met.Data)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		record     func(ctx context.Context, m *Metrics)
		metric     string
		key, value string
		want       int64
	}{
		{
			name: "provider requests by status",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
				m.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
				m.RecordProviderRequest(ctx, "deepgram", "stt", "error")
			},
			metric: "lingobridge.provider.requests", key: "status", value: "ok",
			want: 2,
		},
		{
			name: "provider errors by provider",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordProviderError(ctx, "elevenlabs", "tts")
				m.RecordProviderError(ctx, "openai", "llm")
			},
			metric: "lingobridge.provider.errors", key: "provider", value: "elevenlabs",
			want: 1,
		},
		{
			name: "captures by outcome",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordCapture(ctx, "source_to_target", OutcomeTranslated, 2.1)
				m.RecordCapture(ctx, "source_to_target", OutcomeNoSpeech, 0.9)
				m.RecordCapture(ctx, "target_to_source", OutcomeTranslated, 3.0)
			},
			metric: "lingobridge.captures", key: "outcome", value: OutcomeTranslated,
			want: 2,
		},
		{
			name: "session errors by kind",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordSessionError(ctx, "translation")
				m.RecordSessionError(ctx, "translation")
				m.RecordSessionError(ctx, "recognition")
			},
			metric: "lingobridge.session.errors", key: "kind", value: "translation",
			want: 2,
		},
		{
			name: "active captures nets out",
			record: func(ctx context.Context, m *Metrics) {
				m.ActiveCaptures.Add(ctx, 1)
				m.ActiveCaptures.Add(ctx, -1)
				m.ActiveCaptures.Add(ctx, 1)
			},
			metric: "lingobridge.active_captures",
			want:   1,
		},
		{
			name:   "ready sessions",
			record: func(ctx context.Context, m *Metrics) { m.ReadySessions.Add(ctx, 2) },
			metric: "lingobridge.translation.ready_sessions",
			want:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rm := record(t, tt.record)
			if got := counterValue(t, rm, tt.metric, tt.key, tt.value); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestMetrics_Durations(t *testing.T) {
	t.Parallel()

	rm := record(t, func(ctx context.Context, m *Metrics) {
		m.RecordCapture(ctx, "source_to_target", OutcomeTranslated, 2.1)
		m.RecordCapture(ctx, "target_to_source", OutcomeFailed, 0.3)
		m.RecordTranslation(ctx, "en->zh", "ok", 0.8)
		m.SynthesisDuration.Record(ctx, 1.7)
	})

	want := map[string]uint64{
		"lingobridge.capture.duration":     2,
		"lingobridge.translation.duration": 1,
		"lingobridge.synthesis.duration":   1,
	}
	for name, n := range want {
		if got := sampleCount(t, rm, name); got != n {
			t.Errorf("%s samples = %d, want %d", name, got, n)
		}
	}
}

func TestMetrics_LatencyBuckets(t *testing.T) {
	t.Parallel()

	rm := record(t, func(ctx context.Context, m *Metrics) {
		m.RecordTranslation(ctx, "zh->en", "ok", 0.3)
	})
	hist := findMetric(rm, "lingobridge.translation.duration").Data.(metricdata.Histogram[float64])
	bounds := hist.DataPoints[0].Bounds
	if len(bounds) != len(latencyBuckets) {
		t.Fatalf("bounds = %v, want %v", bounds, latencyBuckets)
	}
	for i := range bounds {
		if bounds[i] != latencyBuckets[i] {
			t.Fatalf("bounds = %v, want %v", bounds, latencyBuckets)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
