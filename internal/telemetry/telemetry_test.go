package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/sitegen/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestNew_DisabledTelemetry(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tel)

	// Should return no-op providers
	tracer := tel.Tracer("test")
	assert.NotNil(t, tracer)

	meter := tel.Meter("test")
	assert.NotNil(t, meter)

	// Should report as not enabled
	assert.False(t, tel.IsEnabled())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{
		Enabled:     true,
		Endpoint:    "",
		ServiceName: "",
	}

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_Health(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry = nil

	// All methods should be nil-safe
	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.Health()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})

	// Nil should report unhealthy
	health := tel.Health()
	assert.False(t, health.Healthy)
	assert.True(t, health.Degraded)
}

func TestTelemetry_Shutdown(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	// Shutdown should succeed for disabled telemetry
	err = tel.Shutdown(context.Background())
	require.NoError(t, err)

	// Health should be unhealthy after shutdown
	health := tel.Health()
	assert.False(t, health.Healthy)
}

func TestTelemetry_ShutdownWithTimeout(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false
	cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	// Shutdown with context timeout
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = tel.Shutdown(ctx)
	require.NoError(t, err)
}

func TestTelemetry_SetLoggerProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	// Should be nil initially
	assert.Nil(t, tel.LoggerProvider())

	// SetLoggerProvider on nil should not panic
	var nilTel *Telemetry
	assert.NotPanics(t, func() {
		nilTel.SetLoggerProvider(nil)
	})
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	tracer := tt.Tracer("sitegen.stage")

	for attempt := 1; attempt <= 2; attempt++ {
		_, span := tracer.Start(context.Background(), "stage.research",
			oteltrace.WithAttributes(attribute.Int("attempt", attempt), attribute.String("tier", "fast")))
		if attempt == 1 {
			span.SetStatus(codes.Error, "rate limited")
		}
		span.End()
	}
	_, other := tracer.Start(context.Background(), "stage.design")
	other.End()

	assert.Len(t, tt.Spans(), 3)
	research := tt.SpansNamed("stage.research")
	require.Len(t, research, 2)
	assert.True(t, SpanFailed(research[0]))
	assert.False(t, SpanFailed(research[1]))

	v, ok := SpanAttr(research[1], "attempt")
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
	v, ok = SpanAttr(research[1], "tier")
	require.True(t, ok)
	assert.Equal(t, "fast", v)
	_, ok = SpanAttr(research[1], "missing")
	assert.False(t, ok)

	assert.Empty(t, tt.SpansNamed("stage.content"))

	tt.Reset()
	assert.Empty(t, tt.Spans())
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()
	meter := tt.Meter("sitegen.pipeline")
	ctx := context.Background()

	counter, err := meter.Int64Counter("sitegen.pipeline.transitions")
	require.NoError(t, err)
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "running")))
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("status", "running")))
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "completed")))

	hist, err := meter.Float64Histogram("sitegen.pipeline.stage.duration")
	require.NoError(t, err)
	hist.Record(ctx, 0.5, metric.WithAttributes(attribute.String("stage", "input")))

	assert.Equal(t, int64(3), tt.Int64Sum(t, "sitegen.pipeline.transitions", attribute.String("status", "running")))
	assert.Equal(t, int64(1), tt.Int64Sum(t, "sitegen.pipeline.transitions", attribute.String("status", "completed")))
	assert.Equal(t, int64(0), tt.Int64Sum(t, "sitegen.pipeline.transitions", attribute.String("status", "failed")))
	assert.Equal(t, int64(0), tt.Int64Sum(t, "sitegen.unknown"))
	assert.Equal(t, uint64(1), tt.HistogramCount(t, "sitegen.pipeline.stage.duration", attribute.String("stage", "input")))

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, rm.ScopeMetrics)
}

func TestTelemetry_ForceFlush_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)

	err = tel.ForceFlush(context.Background())
	require.NoError(t, err)
}

func TestTelemetry_ShutdownWithProviders(t *testing.T) {
	tt := NewTestTelemetry()
	assert.True(t, tt.Health().Healthy)

	_, span := tt.Tracer("test").Start(context.Background(), "test-span")
	span.End()
	require.NoError(t, tt.ForceFlush(context.Background()))

	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
}

func TestNew_EnabledWithOverrides(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "localhost:4317"
	cfg.Insecure = true
	cfg.Metrics.Enabled = true

	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	tel, err := New(context.Background(), cfg, WithSpanExporter(spans), WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	_, span := tel.Tracer("sitegen.pipeline").Start(context.Background(), "stage.design")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.Len(t, spans.GetSpans(), 1)
	assert.Equal(t, "stage.design", spans.GetSpans()[0].Name)

	counter, err := tel.Meter("sitegen.pipeline").Int64Counter("sitegen.stage.runs")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, "sitegen.stage.runs", rm.ScopeMetrics[0].Metrics[0].Name)

	health := tel.Health()
	assert.True(t, health.Healthy)
	assert.False(t, health.Degraded)
	assert.Empty(t, health.Reason)
}
