package stage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sitegen/internal/logging"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
)

const (
	// BaseBackoff is the delay before the first retry.
	BaseBackoff = time.Second
	// MaxBackoff caps every delay, jitter included.
	MaxBackoff = 30 * time.Second
	// JitterFraction is the symmetric jitter applied to each delay.
	JitterFraction = 0.2
)

// Request is what a stage function sees for one attempt.
type Request struct {
	RunID   string
	Stage   Name
	Memo    memo.Memo
	Prior   Outputs
	Tier    ModelTier
	Attempt int // 1-based
}

// Func produces the output of one stage. Mark transient failures with
// Retryable; anything unmarked is treated as permanent.
type Func func(ctx context.Context, req Request) (Output, error)

// Funcs maps each stage to its implementation.
type Funcs map[Name]Func

// Config bounds one stage execution.
type Config struct {
	MaxRetries int       `json:"maxRetries"`
	TimeoutMs  int64     `json:"timeoutMs"`
	Tier       ModelTier `json:"tier"`
}

// Timeout returns the per-attempt deadline.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Result describes a successful stage execution.
type Result struct {
	Output   Output
	Attempts int
	Retries  int
	Backoffs []time.Duration
	Elapsed  time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Runner executes stage functions. It holds no run state and is safe for
// concurrent use.
type Runner struct {
	logger *logging.Logger
	tracer trace.Tracer
	sleep  Sleeper
	jitter func() float64 // uniform in [0, 1)
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithTracer sets the tracer used for per-attempt spans.
func WithTracer(t trace.Tracer) Option { return func(r *Runner) { r.tracer = t } }

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option { return func(r *Runner) { r.sleep = s } }

// WithJitter replaces the jitter source. f must return values in [0, 1).
func WithJitter(f func() float64) Option { return func(r *Runner) { r.jitter = f } }

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: logging.NewNop(),
		tracer: otel.Tracer("github.com/fyrsmithlabs/sitegen/internal/stage"),
		sleep:  sleepContext,
		jitter: rand.Float64,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backoff returns the delay before retry n (1-based) for a jitter sample u
// in [0, 1).
func Backoff(n int, u float64) time.Duration {
	if n < 1 {
		n = 1
	}
	d := MaxBackoff
	if n <= 6 {
		d = min(BaseBackoff<<(n-1), MaxBackoff)
	}
	factor := 1 - JitterFraction + 2*JitterFraction*u
	return min(time.Duration(float64(d)*factor), MaxBackoff)
}

// Run executes fn for req.Stage under cfg. It retries transient failures up
// to cfg.MaxRetries times and returns a *Error on failure.
func (r *Runner) Run(ctx context.Context, fn Func, req Request, cfg Config) (Result, error) {
	start := r.now()
	res := Result{}
	if req.Tier == "" {
		req.Tier = cfg.Tier
	}
	if req.Tier == "" {
		req.Tier = TierFast
	}
	ctx = logging.WithStage(logging.WithRunID(ctx, req.RunID), string(req.Stage))

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		req.Attempt = attempt

		out, err := r.attempt(ctx, fn, req, cfg)
		if err == nil {
			if err = checkOutput(out, req.Stage); err == nil {
				res.Output = out
				res.Elapsed = r.now().Sub(start)
				return res, nil
			}
		}

		if !r.transient(ctx, err) {
			r.logger.Warn(ctx, "stage failed", zap.Int("attempt", attempt), zap.Error(err))
			return res, &Error{Kind: NonRetryableKind, Stage: req.Stage, Attempts: attempt, Cause: err}
		}
		if res.Retries >= cfg.MaxRetries {
			r.logger.Warn(ctx, "stage retries exhausted", zap.Int("attempts", attempt), zap.Error(err))
			return res, &Error{Kind: RetryableKind, Stage: req.Stage, Attempts: attempt, Cause: err}
		}

		delay := Backoff(res.Retries+1, r.jitter())
		r.logger.Info(ctx, "retrying stage after transient error",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", cfg.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if serr := r.sleep(ctx, delay); serr != nil {
			return res, &Error{Kind: NonRetryableKind, Stage: req.Stage, Attempts: attempt, Cause: serr}
		}
		res.Retries++
		res.Backoffs = append(res.Backoffs, delay)
	}
}

func (r *Runner) attempt(ctx context.Context, fn Func, req Request, cfg Config) (out Output, err error) {
	ctx, span := r.tracer.Start(ctx, "stage."+string(req.Stage),
		trace.WithAttributes(
			attribute.String("run.id", req.RunID),
			attribute.String("stage", string(req.Stage)),
			attribute.Int("attempt", req.Attempt),
			attribute.String("tier", string(req.Tier)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if t := cfg.Timeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = NonRetryable(fmt.Errorf("stage %s panicked: %v", req.Stage, p))
		}
	}()
	return fn(ctx, req)
}

// transient decides whether a failed attempt may be retried. A done parent
// context always ends the run of attempts.
func (r *Runner) transient(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	var c *classified
	if errors.As(err, &c) {
		return c.retry
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

func checkOutput(out Output, want Name) error {
	if out == nil {
		return NonRetryablef("stage %s returned no output", want)
	}
	if out.Stage() != want {
		return NonRetryablef("stage %s returned %s output", want, out.Stage())
	}
	if err := out.Validate(); err != nil {
		return NonRetryable(err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
