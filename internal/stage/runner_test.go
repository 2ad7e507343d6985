package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/sitegen/internal/logging"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/telemetry"
)

type fakeClock struct {
	slept []time.Duration
}

func (f *fakeClock) sleep(_ context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return nil
}

func researchOK() Output {
	return &ResearchOutput{Facts: memo.ResearchFacts{Keywords: memo.Keywords{Primary: []string{"dentist"}}}}
}

// failing returns fn that fails n times with err and then succeeds.
func failing(n int, err error, calls *int) Func {
	return func(ctx context.Context, req Request) (Output, error) {
		*calls++
		if *calls <= n {
			return nil, err
		}
		return researchOK(), nil
	}
}

func req() Request { return Request{RunID: "run-1", Stage: Research} }

func TestRunRetriesTransientFailures(t *testing.T) {
	for _, u := range []float64{0, 0.5, 0.999} {
		clock := &fakeClock{}
		r := NewRunner(WithSleeper(clock.sleep), WithJitter(func() float64 { return u }))

		calls := 0
		res, err := r.Run(context.Background(), failing(2, Retryablef("upstream 503"), &calls), req(), Config{MaxRetries: 3, TimeoutMs: 1000})
		require.NoError(t, err)

		assert.Equal(t, 3, calls)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, 2, res.Retries)
		require.Len(t, res.Backoffs, 2)
		assert.GreaterOrEqual(t, res.Backoffs[0], 800*time.Millisecond)
		assert.LessOrEqual(t, res.Backoffs[0], 1200*time.Millisecond)
		assert.GreaterOrEqual(t, res.Backoffs[1], 1600*time.Millisecond)
		assert.LessOrEqual(t, res.Backoffs[1], 2400*time.Millisecond)
		assert.Equal(t, res.Backoffs, clock.slept)
		assert.Equal(t, Research, res.Output.Stage())
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	clock := &fakeClock{}
	r := NewRunner(WithSleeper(clock.sleep))

	calls := 0
	_, err := r.Run(context.Background(), failing(10, Retryablef("rate limited"), &calls), req(), Config{MaxRetries: 2})
	require.Error(t, err)

	serr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, RetryableKind, serr.Kind)
	assert.Equal(t, 3, serr.Attempts)
	assert.Equal(t, Research, serr.Stage)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 3, calls)
	assert.Len(t, clock.slept, 2)
}

func TestRunNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"marked", NonRetryablef("bad request")},
		{"unclassified", errors.New("json: cannot unmarshal")},
		{"marked outermost wins", NonRetryable(Retryablef("inner"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{}
			calls := 0
			_, err := NewRunner(WithSleeper(clock.sleep)).Run(context.Background(), failing(5, tt.err, &calls), req(), Config{MaxRetries: 3})

			serr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, NonRetryableKind, serr.Kind)
			assert.Equal(t, 1, calls)
			assert.Empty(t, clock.slept)
		})
	}
}

func TestRunPerAttemptTimeoutIsTransient(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	fn := func(ctx context.Context, _ Request) (Output, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return researchOK(), nil
	}

	res, err := NewRunner(WithSleeper(clock.sleep)).Run(context.Background(), fn, req(), Config{MaxRetries: 1, TimeoutMs: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retries)
}

func TestRunParentCancellationIsFinal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fn := func(ctx context.Context, _ Request) (Output, error) {
		calls++
		cancel()
		return nil, Retryable(ctx.Err())
	}

	_, err := NewRunner().Run(ctx, fn, req(), Config{MaxRetries: 3})
	serr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, NonRetryableKind, serr.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRunValidatesOutput(t *testing.T) {
	tests := []struct {
		name string
		out  Output
	}{
		{"nil", nil},
		{"typed nil", (*ResearchOutput)(nil)},
		{"wrong stage", &DesignOutput{Facts: memo.DesignFacts{Palette: memo.Palette{Primary: "#112233"}}}},
		{"invalid", &ResearchOutput{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := func(context.Context, Request) (Output, error) { return tt.out, nil }
			_, err := NewRunner().Run(context.Background(), fn, req(), Config{MaxRetries: 3})
			serr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, NonRetryableKind, serr.Kind)
			assert.Equal(t, 1, serr.Attempts)
		})
	}
}

func TestRunRecoversPanics(t *testing.T) {
	fn := func(context.Context, Request) (Output, error) { panic("boom") }
	_, err := NewRunner().Run(context.Background(), fn, req(), Config{MaxRetries: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: boom")
}

func TestRunPassesTierAndAttempt(t *testing.T) {
	var seen []Request
	fn := func(_ context.Context, r Request) (Output, error) {
		seen = append(seen, r)
		if len(seen) == 1 {
			return nil, Retryablef("again")
		}
		return researchOK(), nil
	}
	clock := &fakeClock{}
	_, err := NewRunner(WithSleeper(clock.sleep)).Run(context.Background(), fn, req(), Config{MaxRetries: 1, Tier: TierQuality})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, TierQuality, seen[0].Tier)
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Equal(t, 2, seen[1].Attempt)
}

func TestRunTracesEachAttempt(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	clock := &fakeClock{}
	r := NewRunner(WithTracer(tt.Tracer("sitegen.stage")), WithSleeper(clock.sleep))

	calls := 0
	_, err := r.Run(context.Background(), failing(2, Retryablef("upstream 503"), &calls), req(), Config{MaxRetries: 2, Tier: TierQuality})
	require.NoError(t, err)

	spans := tt.SpansNamed("stage.research")
	require.Len(t, spans, 3)
	for i, span := range spans {
		attempt, ok := telemetry.SpanAttr(span, "attempt")
		require.True(t, ok)
		assert.Equal(t, int64(i+1), attempt)

		tier, ok := telemetry.SpanAttr(span, "tier")
		require.True(t, ok)
		assert.Equal(t, "quality", tier)

		runID, _ := telemetry.SpanAttr(span, "run.id")
		assert.Equal(t, "run-1", runID)
	}
	assert.True(t, telemetry.SpanFailed(spans[0]))
	assert.True(t, telemetry.SpanFailed(spans[1]))
	assert.False(t, telemetry.SpanFailed(spans[2]))
	require.NotEmpty(t, spans[0].Events, "the error is recorded on the span")

	t.Run("panics mark the span failed", func(t *testing.T) {
		tt.Reset()
		fn := func(context.Context, Request) (Output, error) { panic("boom") }
		_, err := r.Run(context.Background(), fn, Request{RunID: "run-2", Stage: Design}, Config{})
		require.Error(t, err)

		spans := tt.SpansNamed("stage.design")
		require.Len(t, spans, 1)
		assert.True(t, telemetry.SpanFailed(spans[0]))
		assert.Contains(t, spans[0].Status.Description, "panicked")
		tier, _ := telemetry.SpanAttr(spans[0], "tier")
		assert.Equal(t, "fast", tier)
	})
}

func TestRunLogsRetries(t *testing.T) {
	tl := logging.NewTestLogger()
	clock := &fakeClock{}
	calls := 0
	_, err := NewRunner(WithLogger(tl.Logger), WithSleeper(clock.sleep)).
		Run(context.Background(), failing(1, Retryablef("503"), &calls), req(), Config{MaxRetries: 1})
	require.NoError(t, err)
	tl.AssertLogged(t, zapcore.InfoLevel, "retrying stage")
	tl.AssertField(t, "retrying stage", "run.stage", "research")
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 800*time.Millisecond, Backoff(1, 0))
	assert.Equal(t, time.Second, Backoff(1, 0.5))
	assert.Equal(t, 2*time.Second, Backoff(2, 0.5))
	assert.Equal(t, 16*time.Second, Backoff(5, 0.5))
	assert.Equal(t, 30*time.Second, Backoff(6, 0.5))
	assert.Equal(t, 30*time.Second, Backoff(40, 0.999), "jitter never exceeds the cap")
	assert.Equal(t, 24*time.Second, Backoff(40, 0))
}

func TestConfigTimeout(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Config{TimeoutMs: 1500}.Timeout())
}
