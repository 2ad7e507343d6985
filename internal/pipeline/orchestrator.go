package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sitegen/internal/events"
	"github.com/fyrsmithlabs/sitegen/internal/logging"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
	"github.com/fyrsmithlabs/sitegen/internal/statestore"
)

const (
	defaultConflictRetries = 3
	defaultResumeLimit     = 4
)

// Orchestrator owns run state transitions. It holds no per-run locks;
// concurrent writers are serialised by the store's compare-and-swap.
type Orchestrator struct {
	store           statestore.Store
	runner          *stage.Runner
	funcs           stage.Funcs
	scorer          *quality.Scorer
	events          events.Publisher
	logger          *logging.Logger
	meterProvider   metric.MeterProvider
	metrics         *otelMetrics
	book            func() *quote.PriceBook
	stageCfg        stage.Config
	conflictRetries int
	resumeLimit     int
	now             func() time.Time
	newID           func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEvents sets the event publisher.
func WithEvents(p events.Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMeterProvider sets the otel meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Orchestrator) { o.meterProvider = mp }
}

// WithPriceBook sets the price book source used by Quote. The function is
// called per quote so hot reloads are picked up.
func WithPriceBook(f func() *quote.PriceBook) Option {
	return func(o *Orchestrator) { o.book = f }
}

// WithStageConfig sets retry budget, timeout and default tier for stages.
func WithStageConfig(c stage.Config) Option {
	return func(o *Orchestrator) { o.stageCfg = c }
}

// WithConflictRetries bounds how often Resume and Cancel reload after a
// lost compare-and-swap.
func WithConflictRetries(n int) Option {
	return func(o *Orchestrator) { o.conflictRetries = n }
}

// WithResumeLimit sets the default concurrency of ResumeAll.
func WithResumeLimit(n int) Option {
	return func(o *Orchestrator) { o.resumeLimit = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the uuid run ID generator.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// New creates an Orchestrator. funcs must implement every stage.
func New(store statestore.Store, runner *stage.Runner, funcs stage.Funcs, scorer *quality.Scorer, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if runner == nil {
		return nil, errors.New("pipeline: runner is required")
	}
	if scorer == nil {
		return nil, errors.New("pipeline: scorer is required")
	}
	for _, name := range stage.Order {
		if funcs[name] == nil {
			return nil, fmt.Errorf("pipeline: no implementation for stage %s", name)
		}
	}

	o := &Orchestrator{
		store:           store,
		runner:          runner,
		funcs:           funcs,
		scorer:          scorer,
		events:          events.Nop{},
		logger:          logging.NewNop(),
		book:            quote.DefaultPriceBook,
		stageCfg:        stage.Config{MaxRetries: 3, TimeoutMs: 120_000, Tier: stage.TierFast},
		conflictRetries: defaultConflictRetries,
		resumeLimit:     defaultResumeLimit,
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	m, err := newOtelMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}
	o.metrics = m
	return o, nil
}

// AdvanceOption tunes a single Advance call.
type AdvanceOption func(*advanceOptions)

type advanceOptions struct {
	force bool
	tier  stage.ModelTier
}

// WithForcedRerun reruns content that is awaiting revision on tier. An
// empty tier selects the quality tier.
func WithForcedRerun(tier stage.ModelTier) AdvanceOption {
	return func(a *advanceOptions) {
		a.force = true
		if tier == "" {
			tier = stage.TierQuality
		}
		a.tier = tier
	}
}

// WithTier overrides the model tier for this call.
func WithTier(tier stage.ModelTier) AdvanceOption {
	return func(a *advanceOptions) { a.tier = tier }
}

// Start validates facts, persists a new run positioned at the input stage
// and returns its ID.
func (o *Orchestrator) Start(ctx context.Context, facts memo.InputFacts) (string, error) {
	m, err := memo.Create(facts)
	if err != nil {
		return "", err
	}

	now := o.now().UTC()
	st := &State{
		RunID:           o.newID(),
		Status:          StatusPending,
		Memo:            m,
		MemoFingerprint: memo.Fingerprint(m),
		Outputs:         stage.Outputs{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	st.Status = StatusRunning
	st.CurrentStage = stage.Order[0]
	st.Revision = 1

	data, err := encodeState(st)
	if err != nil {
		return "", err
	}
	if err := o.store.Save(ctx, st.RunID, st.Fingerprint(), data); err != nil {
		return "", fmt.Errorf("save run %s: %w", st.RunID, err)
	}

	ctx = logging.WithRunID(ctx, st.RunID)
	o.metrics.recordTransition(ctx, st.Status)
	o.logger.Info(ctx, "run started",
		zap.String("company", facts.CompanyName),
		zap.Int("pages", len(facts.Pages)),
	)
	o.publish(ctx, events.RunStarted, st, nil)
	return st.RunID, nil
}

// Get returns the persisted state of a run.
func (o *Orchestrator) Get(ctx context.Context, runID string) (*State, error) {
	st, _, err := o.load(ctx, runID)
	return st, err
}

// Advance executes the current stage of a run and commits exactly one
// transition. Terminal runs are returned unchanged with a nil error.
func (o *Orchestrator) Advance(ctx context.Context, runID string, opts ...AdvanceOption) (*State, error) {
	var ao advanceOptions
	for _, opt := range opts {
		opt(&ao)
	}

	st, fp, err := o.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if st.Status.Terminal() {
		return st, nil
	}
	ctx = logging.WithStage(logging.WithRunID(ctx, runID), string(st.CurrentStage))

	if err := memo.Verify(st.Memo, st.MemoFingerprint); err != nil {
		o.logger.Error(ctx, "memo verification failed", zap.Error(err))
		return st, err
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}
	if st.CancelRequested {
		return o.cancelNow(ctx, st, fp)
	}
	if st.AwaitingRevision && !ao.force {
		return st, &QualityGateError{RunID: runID, Report: st.Quality}
	}

	name := st.CurrentStage
	fn, ok := o.funcs[name]
	if !ok {
		return st, fmt.Errorf("run %s: no implementation for stage %q", runID, name)
	}
	tier := o.tierFor(ao)

	o.publish(ctx, events.StageStarted, st, map[string]any{"tier": string(tier), "forced": ao.force})
	req := stage.Request{
		RunID: runID,
		Stage: name,
		Memo:  st.Memo,
		Prior: st.Outputs.Clone(),
		Tier:  tier,
	}
	cfg := o.stageCfg
	cfg.Tier = tier
	start := o.now()
	res, runErr := o.runner.Run(ctx, fn, req, cfg)
	if runErr != nil {
		if ctx.Err() != nil {
			// Caller went away; leave the run where it was so it can resume.
			return st, runErr
		}
		o.metrics.recordStage(ctx, string(name), "failed", o.now().Sub(start).Seconds(), res.Retries)
		return o.failStage(ctx, st, fp, name, runErr)
	}
	return o.apply(ctx, st, fp, name, tier, res)
}

func (o *Orchestrator) tierFor(ao advanceOptions) stage.ModelTier {
	if ao.tier != "" {
		return ao.tier
	}
	if o.stageCfg.Tier != "" {
		return o.stageCfg.Tier
	}
	return stage.TierFast
}

// apply folds a successful stage result into a new state and commits it.
func (o *Orchestrator) apply(ctx context.Context, st *State, fp string, name stage.Name, tier stage.ModelTier, res stage.Result) (*State, error) {
	next := st.Clone()

	if content, ok := res.Output.(*stage.ContentOutput); ok {
		report := o.scorer.Score(content.Pages)
		if content.Tier == "" {
			content.Tier = tier
		}
		content.Report = &report
		next.Quality = &report
		next.LastTier = content.Tier
		next.Outputs[name] = content
		QualityScores.Observe(report.Score)

		if !report.Passed {
			next.AwaitingRevision = true
			committed, err := o.commitStage(ctx, st, fp, next)
			if err != nil {
				return st, err
			}
			o.metrics.recordStage(ctx, string(name), "rejected", res.Elapsed.Seconds(), res.Retries)
			if committed.Status == StatusCancelled {
				o.publish(ctx, events.RunCancelled, committed, nil)
				return committed, nil
			}
			o.logger.Warn(ctx, "content rejected by quality gate",
				zap.Float64("score", report.Score),
				zap.Float64("threshold", report.Threshold),
				zap.Strings("issues", report.Issues),
			)
			o.publish(ctx, events.QualityRejected, committed, map[string]any{"score": report.Score})
			return committed, &QualityGateError{RunID: st.RunID, Report: &report}
		}
		next.AwaitingRevision = false
	}

	extend := func(namespace string, facts any) error {
		m, err := memo.Extend(next.Memo, namespace, facts)
		if err != nil {
			return err
		}
		next.Memo = m
		return nil
	}
	err := stage.Match(res.Output,
		func(*stage.InputOutput) error { return nil },
		func(r *stage.ResearchOutput) error { return extend(memo.NamespaceResearch, &r.Facts) },
		func(d *stage.DesignOutput) error { return extend(memo.NamespaceDesign, &d.Facts) },
		func(*stage.ContentOutput) error { return nil },
	)
	if err != nil {
		o.logger.Error(ctx, "stage output rejected by memo", zap.Error(err))
		o.metrics.recordStage(ctx, string(name), "failed", res.Elapsed.Seconds(), res.Retries)
		return o.failStage(ctx, st, fp, name, err)
	}

	next.Outputs[name] = res.Output
	next.CompletedStages = append(next.CompletedStages, name)
	next.MemoFingerprint = memo.Fingerprint(next.Memo)
	if following := name.Next(); following != "" {
		next.CurrentStage = following
	} else {
		next.CurrentStage = ""
		next.Status = StatusCompleted
	}

	committed, err := o.commitStage(ctx, st, fp, next)
	if err != nil {
		return st, err
	}
	o.metrics.recordStage(ctx, string(name), "completed", res.Elapsed.Seconds(), res.Retries)
	o.logger.Info(ctx, "stage completed",
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", res.Elapsed),
	)
	o.publish(ctx, events.StageCompleted, stageEvent(committed, name), map[string]any{"attempts": res.Attempts})
	switch committed.Status {
	case StatusCompleted:
		o.publish(ctx, events.RunCompleted, committed, nil)
	case StatusCancelled:
		o.publish(ctx, events.RunCancelled, committed, nil)
	}
	return committed, nil
}

// failStage marks the run failed. Completed outputs are kept.
func (o *Orchestrator) failStage(ctx context.Context, st *State, fp string, name stage.Name, cause error) (*State, error) {
	kind := "policy"
	switch {
	case memo.IsViolation(cause):
		kind = "memo_violation"
	default:
		if se, ok := stage.AsError(cause); ok {
			kind = se.Kind.String()
		}
	}

	next := st.Clone()
	next.Status = StatusFailed
	next.Failure = &Failure{Stage: name, Kind: kind, Reason: cause.Error(), At: o.now().UTC()}

	committed, err := o.commitStage(ctx, st, fp, next)
	if err != nil {
		return st, err
	}
	if committed.Status == StatusCancelled {
		o.publish(ctx, events.RunCancelled, committed, nil)
		return committed, cause
	}
	o.logger.Error(ctx, "run failed", zap.String("kind", kind), zap.Error(cause))
	o.publish(ctx, events.StageFailed, stageEvent(committed, name), map[string]any{"kind": kind, "reason": cause.Error()})
	o.publish(ctx, events.RunFailed, committed, nil)
	return committed, cause
}

// cancelNow honours a pending cancellation before any stage starts.
func (o *Orchestrator) cancelNow(ctx context.Context, st *State, fp string) (*State, error) {
	next := st.Clone()
	next.Status = StatusCancelled
	if err := o.commit(ctx, fp, next); err != nil {
		return st, err
	}
	o.logger.Info(ctx, "run cancelled")
	o.publish(ctx, events.RunCancelled, next, nil)
	return next, nil
}

// commitStage commits next over the state loaded with fingerprint fp. If
// the only write in between was a cancellation request, the stage result
// is kept and the run is cancelled instead.
func (o *Orchestrator) commitStage(ctx context.Context, st *State, fp string, next *State) (*State, error) {
	err := o.commit(ctx, fp, next)
	if err == nil || !IsConflict(err) {
		return next, err
	}

	latest, latestFP, lerr := o.load(ctx, st.RunID)
	if lerr != nil || !cancelledSince(st, latest) {
		return nil, err
	}

	merged := next.Clone()
	merged.Revision = latest.Revision
	merged.CancelRequested = true
	merged.AwaitingRevision = false
	merged.Status = StatusCancelled
	if cerr := o.commit(ctx, latestFP, merged); cerr != nil {
		return nil, cerr
	}
	o.logger.Info(ctx, "cancellation arrived during stage; output kept")
	return merged, nil
}

// cancelledSince reports whether latest differs from base only by a
// cancellation request.
func cancelledSince(base, latest *State) bool {
	return latest.CancelRequested && !base.CancelRequested &&
		latest.Revision == base.Revision+1 &&
		latest.Status == base.Status &&
		latest.CurrentStage == base.CurrentStage &&
		latest.AwaitingRevision == base.AwaitingRevision &&
		slices.Equal(latest.CompletedStages, base.CompletedStages) &&
		slices.Equal(latest.SkippedStages, base.SkippedStages)
}

// commit bumps the revision and swaps next in if the stored fingerprint is
// still expected.
func (o *Orchestrator) commit(ctx context.Context, expected string, next *State) error {
	next.Revision++
	next.UpdatedAt = o.now().UTC()
	data, err := encodeState(next)
	if err != nil {
		return err
	}
	err = o.store.CompareAndSwap(ctx, next.RunID, expected, next.Fingerprint(), data)
	switch {
	case err == nil:
		o.metrics.recordTransition(ctx, next.Status)
		return nil
	case errors.Is(err, statestore.ErrConflict):
		Conflicts.Inc()
		o.logger.Debug(ctx, "state commit lost a race", zap.Uint64("revision", next.Revision))
		return &ConflictError{RunID: next.RunID, Stage: next.CurrentStage}
	case errors.Is(err, statestore.ErrNotFound):
		return fmt.Errorf("run %s: %w", next.RunID, ErrNotFound)
	default:
		return fmt.Errorf("commit run %s: %w", next.RunID, err)
	}
}

func (o *Orchestrator) load(ctx context.Context, runID string) (*State, string, error) {
	rec, err := o.store.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			return nil, "", fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, "", fmt.Errorf("load run %s: %w", runID, err)
	}
	st, err := decodeState(rec.Data)
	if err != nil {
		return nil, "", fmt.Errorf("run %s: %w", runID, err)
	}
	return st, rec.Fingerprint, nil
}

// stageEvent returns a view of st whose CurrentStage names the stage the
// event is about.
func stageEvent(st *State, name stage.Name) *State {
	v := *st
	v.CurrentStage = name
	return &v
}

func (o *Orchestrator) publish(ctx context.Context, typ events.Type, st *State, attrs map[string]any) {
	e := events.Event{
		Type:     typ,
		RunID:    st.RunID,
		Stage:    string(st.CurrentStage),
		Revision: st.Revision,
		At:       o.now().UTC(),
		Attrs:    attrs,
	}
	if err := o.events.Publish(ctx, e); err != nil {
		o.logger.Warn(ctx, "failed to publish event", zap.String("type", string(typ)), zap.Error(err))
	}
}
