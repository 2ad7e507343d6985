package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()

	res, err := newResource(cfg)
	require.NoError(t, err)
	require.NotNil(t, res)

	// Resource should contain service name attribute
	attrs := res.Attributes()
	var foundServiceName bool
	for _, attr := range attrs {
		if string(attr.Key) == "service.name" {
			assert.Equal(t, cfg.ServiceName, attr.Value.AsString())
			foundServiceName = true
		}
	}
	assert.True(t, foundServiceName, "service.name attribute not found")
}

func TestOptions(t *testing.T) {
	o := &options{}
	assert.Nil(t, o.spanExporter)
	assert.Nil(t, o.metricReader)

	exp := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	WithSpanExporter(exp)(o)
	WithMetricReader(reader)(o)
	assert.Same(t, exp, o.spanExporter)
	assert.Equal(t, reader, o.metricReader)
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel.example:4318", stripScheme("https://otel.example:4318"))
	assert.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	assert.Equal(t, "localhost:4317", stripScheme("localhost:4317"))
}
