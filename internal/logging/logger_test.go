package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		logger, err := NewLogger(NewDefaultConfig(), nil)
		require.NoError(t, err)
		assert.True(t, logger.Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Enabled(zapcore.DebugLevel))
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Format = "xml"
		_, err := NewLogger(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "format")
	})

	t.Run("rejects no outputs", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Output.Stdout = false
		_, err := NewLogger(cfg, nil)
		require.Error(t, err)
	})

	t.Run("stderr only", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Output.Stdout = false
		cfg.Output.Stderr = true
		logger, err := NewLogger(cfg, nil)
		require.NoError(t, err)
		assert.True(t, logger.Enabled(zapcore.WarnLevel))
	})

	t.Run("rejects bad redaction pattern", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Redaction.Patterns = []string{"("}
		_, err := NewLogger(cfg, nil)
		require.Error(t, err)
	})
}

func TestContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithRunID(context.Background(), "run-42")
	ctx = WithStage(ctx, "content")
	ctx = WithRequestID(ctx, "req_1")
	tl.Info(ctx, "stage completed", zap.Int("attempts", 2))

	tl.AssertLogged(t, zapcore.InfoLevel, "stage completed")
	tl.AssertField(t, "stage completed", "run.id", "run-42")
	tl.AssertField(t, "stage completed", "run.stage", "content")
	tl.AssertField(t, "stage completed", "request.id", "req_1")
	tl.AssertField(t, "stage completed", "attempts", int64(2))
}

func TestContextFieldsTrace(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Contains(t, keys, "trace_id")
	assert.Contains(t, keys, "span_id")
}

func TestWithRunIDIgnoresInvalid(t *testing.T) {
	ctx := WithRunID(context.Background(), "bad id with spaces")
	assert.Empty(t, RunIDFromContext(ctx))
	assert.Empty(t, StageFromContext(WithStage(context.Background(), "")))
}

func TestWithRequestIDPanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { WithRequestID(context.Background(), "") })
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}

func TestTraceLevel(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "raw provider response")
	tl.AssertLogged(t, TraceLevel, "raw provider response")

	lvl, err := LevelFromString("TRACE")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestNamedAndWith(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("pipeline").With(zap.String("component", "orchestrator"))
	child.Info(context.Background(), "ready")

	entries := tl.FilterMessage("ready").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline", entries[0].LoggerName)
	tl.AssertField(t, "ready", "component", "orchestrator")
}
