package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/sitegen/internal/events"
	"github.com/fyrsmithlabs/sitegen/internal/export"
	"github.com/fyrsmithlabs/sitegen/internal/logging"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// Resume advances a run until it is terminal. Lost races are retried a
// bounded number of times; a quality gate, a schema mismatch, a stage
// failure or context cancellation stop the loop. Options apply to the
// first Advance only.
func (o *Orchestrator) Resume(ctx context.Context, runID string, opts ...AdvanceOption) (*State, error) {
	conflicts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := o.Advance(ctx, runID, opts...)
		opts = nil
		switch {
		case err == nil:
			if st.Status.Terminal() {
				return st, nil
			}
		case IsConflict(err):
			conflicts++
			if conflicts > o.conflictRetries {
				return st, err
			}
			o.logger.Debug(logging.WithRunID(ctx, runID), "reloading after conflict", zap.Int("conflicts", conflicts))
		default:
			return st, err
		}
	}
}

// ResumeResult is the outcome of resuming one run.
type ResumeResult struct {
	RunID  string `json:"run_id"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// ResumeAll resumes every non-terminal run that is not waiting for a
// content revision, at most limit at a time. A limit below one uses the
// configured default. Per-run errors are reported in the results.
func (o *Orchestrator) ResumeAll(ctx context.Context, limit int) ([]ResumeResult, error) {
	ids, err := o.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var pending []string
	for _, id := range ids {
		st, _, err := o.load(ctx, id)
		if err != nil {
			o.logger.Warn(logging.WithRunID(ctx, id), "skipping unreadable run", zap.Error(err))
			continue
		}
		if st.Status.Terminal() || st.AwaitingRevision {
			continue
		}
		pending = append(pending, id)
	}

	if limit < 1 {
		limit = o.resumeLimit
	}
	results := make([]ResumeResult, len(pending))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range pending {
		g.Go(func() error {
			r := ResumeResult{RunID: id}
			st, err := o.Resume(ctx, id)
			if st != nil {
				r.Status = st.Status
			}
			r.Err = err
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Info(ctx, "resumed runs", zap.Int("candidates", len(ids)), zap.Int("resumed", len(pending)))
	return results, ctx.Err()
}

// Cancel requests cancellation. The run moves to cancelled before its next
// stage starts; a stage already in flight finishes first. Cancelling a
// terminal run is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) (*State, error) {
	var lastErr error
	for range o.conflictRetries + 1 {
		st, fp, err := o.load(ctx, runID)
		if err != nil {
			return nil, err
		}
		if st.Status.Terminal() || st.CancelRequested {
			return st, nil
		}
		next := st.Clone()
		next.CancelRequested = true
		if err := o.commit(ctx, fp, next); err != nil {
			if IsConflict(err) {
				lastErr = err
				continue
			}
			return st, err
		}
		o.logger.Info(logging.WithRunID(ctx, runID), "cancellation requested")
		return next, nil
	}
	return nil, lastErr
}

// Skip skips the current stage when it is skippable.
func (o *Orchestrator) Skip(ctx context.Context, runID string, name stage.Name) (*State, error) {
	st, fp, err := o.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if st.Status.Terminal() {
		return st, fmt.Errorf("%w: run %s is %s", ErrInvalidSkip, runID, st.Status)
	}
	if !name.Skippable() {
		return st, fmt.Errorf("%w: %s is required", ErrInvalidSkip, name)
	}
	if st.CurrentStage != name {
		return st, fmt.Errorf("%w: current stage is %s, not %s", ErrInvalidSkip, st.CurrentStage, name)
	}

	next := st.Clone()
	next.SkippedStages = append(next.SkippedStages, name)
	next.CurrentStage = name.Next()
	if err := o.commit(ctx, fp, next); err != nil {
		return st, err
	}
	ctx = logging.WithStage(logging.WithRunID(ctx, runID), string(name))
	o.logger.Info(ctx, "stage skipped")
	o.publish(ctx, events.StageSkipped, stageEvent(next, name), nil)
	return next, nil
}

// QuoteOptions are the commercial choices that are not part of the brief.
type QuoteOptions struct {
	Maintenance   bool
	Urgency       quote.Urgency
	IncludeDomain bool
	AddOns        []string
	IssuedAt      time.Time
}

// Quote prices a run from its input facts and the tier its content was
// generated on.
func (o *Orchestrator) Quote(ctx context.Context, runID string, opts QuoteOptions) (quote.Quote, error) {
	st, err := o.Get(ctx, runID)
	if err != nil {
		return quote.Quote{}, err
	}
	in := st.Memo.Input()
	if in == nil {
		return quote.Quote{}, fmt.Errorf("run %s: %w", runID, export.ErrNoInput)
	}

	tier := st.LastTier
	if tier == "" {
		tier = stage.TierFast
	}
	issued := opts.IssuedAt
	if issued.IsZero() {
		issued = st.CreatedAt
	}
	addOns := slices.Clone(in.Features)
	for _, a := range opts.AddOns {
		if !slices.Contains(addOns, a) {
			addOns = append(addOns, a)
		}
	}

	return quote.Generate(o.book(), quote.Request{
		ClientName:    in.CompanyName,
		PageCount:     len(in.Pages),
		AddOns:        addOns,
		Tier:          tier,
		Maintenance:   opts.Maintenance,
		Urgency:       opts.Urgency,
		IncludeDomain: opts.IncludeDomain,
		IssuedAt:      issued,
	})
}

// Export builds the deployment bundle of a run. Runs that have not
// completed export as drafts.
func (o *Orchestrator) Export(ctx context.Context, runID string) (export.Bundle, error) {
	st, err := o.Get(ctx, runID)
	if err != nil {
		return export.Bundle{}, err
	}
	src := export.Source{
		RunID:     st.RunID,
		Completed: st.Status == StatusCompleted,
		Input:     st.Memo.Input(),
		Design:    st.Memo.Design(),
		Quality:   st.Quality,
	}
	if c := st.Outputs.Content(); c != nil {
		src.Pages = c.Pages
	}
	b, err := export.BuildBundle(src)
	if err != nil {
		if errors.Is(err, export.ErrNoInput) {
			return export.Bundle{}, fmt.Errorf("run %s: %w", runID, err)
		}
		return export.Bundle{}, err
	}
	return b, nil
}

// IsSchemaMismatch reports whether err means a stored memo cannot be
// trusted any more.
func IsSchemaMismatch(err error) bool { return memo.IsSchemaMismatch(err) }
