package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry is a Telemetry whose spans and metrics stay in memory, so
// tests can hand its Tracer and MeterProvider to stages and the pipeline
// and then inspect what they emitted.
type TestTelemetry struct {
	*Telemetry

	exporter *tracetest.InMemoryExporter
	reader   *sdkmetric.ManualReader
}

// NewTestTelemetry returns enabled telemetry backed by in-memory exporters.
// Spans are exported synchronously when they end.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	exporter := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	t := &Telemetry{
		config:         cfg,
		tracerProvider: trace.NewTracerProvider(trace.WithSyncer(exporter)),
		meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
	t.healthy.Store(true)
	return &TestTelemetry{Telemetry: t, exporter: exporter, reader: reader}
}

// Spans returns every ended span in end order.
func (t *TestTelemetry) Spans() tracetest.SpanStubs {
	return t.exporter.GetSpans()
}

// SpansNamed returns the ended spans called name, in end order.
func (t *TestTelemetry) SpansNamed(name string) tracetest.SpanStubs {
	var out tracetest.SpanStubs
	for _, s := range t.exporter.GetSpans() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops recorded spans. Metric sums are cumulative and are not reset.
func (t *TestTelemetry) Reset() {
	t.exporter.Reset()
}

// Collect reads the current metric state.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.reader.Collect(ctx, &rm)
	return rm, err
}

// Int64Sum returns the value of counter name for the data point carrying
// attrs, or 0 when no such point exists.
func (t *TestTelemetry) Int64Sum(tb testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	tb.Helper()
	m := t.metric(tb, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		tb.Fatalf("metric %q is %T, not an int64 sum", name, m.Data)
	}
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

// HistogramCount returns how many values histogram name recorded for the
// data point carrying attrs.
func (t *TestTelemetry) HistogramCount(tb testing.TB, name string, attrs ...attribute.KeyValue) uint64 {
	tb.Helper()
	m := t.metric(tb, name)
	if m == nil {
		return 0
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		tb.Fatalf("metric %q is %T, not a float64 histogram", name, m.Data)
	}
	want := attribute.NewSet(attrs...)
	for _, dp := range hist.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Count
		}
	}
	return 0
}

func (t *TestTelemetry) metric(tb testing.TB, name string) *metricdata.Metrics {
	tb.Helper()
	rm, err := t.Collect(context.Background())
	if err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// SpanAttr returns the value of attribute key on s.
func SpanAttr(s tracetest.SpanStub, key string) (any, bool) {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value.AsInterface(), true
		}
	}
	return nil, false
}

// SpanFailed reports whether s ended with an error status.
func SpanFailed(s tracetest.SpanStub) bool {
	return s.Status.Code == codes.Error
}
