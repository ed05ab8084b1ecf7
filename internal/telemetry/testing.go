package telemetry

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory. Components under test
// receive its Tracer or Meter explicitly; nothing is installed globally.
type TestTelemetry struct {
	*Telemetry

	SpanRecorder *tracetest.SpanRecorder
	MetricReader *MetricSnapshot
}

func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	snapshot := &MetricSnapshot{reader: sdkmetric.NewManualReader()}

	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			tracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(spans)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(snapshot.reader)),
		},
		SpanRecorder: spans,
		MetricReader: snapshot,
	}
}

func (t *TestTelemetry) span(name string) (trace.ReadOnlySpan, []string) {
	var names []string
	for _, s := range t.SpanRecorder.Ended() {
		if s.Name() == name {
			return s, nil
		}
		names = append(names, s.Name())
	}
	return nil, names
}

// AssertSpanExists fails unless an ended span called name was recorded.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if s, seen := t.span(name); s == nil {
		tb.Errorf("span %q not recorded; ended spans: %v", name, seen)
	}
}

// AssertSpanAttribute fails unless span carries key with the wanted value.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, spanName, key string, want any) {
	tb.Helper()
	s, _ := t.span(spanName)
	if s == nil {
		tb.Fatalf("span %q not recorded", spanName)
	}
	set := attribute.NewSet(s.Attributes()...)
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		tb.Errorf("span %q has no attribute %q", spanName, key)
		return
	}
	if got := v.AsInterface(); got != want {
		tb.Errorf("span %q attribute %q = %v, want %v", spanName, key, got, want)
	}
}

// MetricSnapshot holds the most recent manual collection.
type MetricSnapshot struct {
	reader *sdkmetric.ManualReader

	mu   sync.Mutex
	last metricdata.ResourceMetrics
}

// Collect replaces the snapshot with the current metric state.
func (m *MetricSnapshot) Collect(ctx context.Context) error {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return err
	}
	m.mu.Lock()
	m.last = rm
	m.mu.Unlock()
	return nil
}

// Int64Sum totals every data point of the named int64 counter.
func (m *MetricSnapshot) Int64Sum(name string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sm := range m.last.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != name {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				return 0, false
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

// Int64SumBy totals the named int64 counter grouped by the value of key.
func (m *MetricSnapshot) Int64SumBy(name, key string) map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int64{}
	for _, sm := range m.last.ScopeMetrics {
		for _, metric := range sm.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if metric.Name != name || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(key))
				out[v.Emit()] += dp.Value
			}
		}
	}
	return out
}

// HistogramCount returns how many observations the named float64 histogram holds.
func (m *MetricSnapshot) HistogramCount(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n uint64
	for _, sm := range m.last.ScopeMetrics {
		for _, metric := range sm.Metrics {
			h, ok := metric.Data.(metricdata.Histogram[float64])
			if metric.Name != name || !ok {
				continue
			}
			for _, dp := range h.DataPoints {
				n += dp.Count
			}
		}
	}
	return n
}
