package workflows

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// AdvanceActivityName is the registered name of Activities.Advance.
const AdvanceActivityName = "AdvanceActivity"

// Advancer is the part of the orchestrator the activities need.
type Advancer interface {
	Advance(ctx context.Context, runID string, opts ...pipeline.AdvanceOption) (*pipeline.State, error)
}

// AdvanceInput asks for one stage of a run.
type AdvanceInput struct {
	RunID string
	Force bool
	Tier  stage.ModelTier
}

// AdvanceResult summarises the run after one Advance.
type AdvanceResult struct {
	RunID            string
	Status           pipeline.Status
	CurrentStage     stage.Name
	CompletedStages  []stage.Name
	AwaitingRevision bool
	Revision         uint64
	Score            *float64
	Failure          string
}

// Terminal reports whether the run cannot advance any further.
func (r AdvanceResult) Terminal() bool { return r.Status.Terminal() }

func resultFrom(st *pipeline.State) AdvanceResult {
	r := AdvanceResult{
		RunID:            st.RunID,
		Status:           st.Status,
		CurrentStage:     st.CurrentStage,
		CompletedStages:  st.CompletedStages,
		AwaitingRevision: st.AwaitingRevision,
		Revision:         st.Revision,
	}
	if st.Quality != nil {
		score := st.Quality.Score
		r.Score = &score
	}
	if st.Failure != nil {
		r.Failure = st.Failure.Reason
	}
	return r
}

// Activities wraps the orchestrator for Temporal workers.
type Activities struct {
	orch Advancer
}

// NewActivities creates the activity set.
func NewActivities(orch Advancer) *Activities {
	return &Activities{orch: orch}
}

// Advance executes one stage of a run. A stage failure that was committed
// as a failed run is a successful activity; the result carries the failure.
func (a *Activities) Advance(ctx context.Context, in AdvanceInput) (*AdvanceResult, error) {
	start := time.Now()
	defer func() {
		activityDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("activity", AdvanceActivityName)))
	}()

	var opts []pipeline.AdvanceOption
	switch {
	case in.Force:
		opts = append(opts, pipeline.WithForcedRerun(in.Tier))
	case in.Tier != "":
		opts = append(opts, pipeline.WithTier(in.Tier))
	}

	st, err := a.orch.Advance(ctx, in.RunID, opts...)
	if err == nil {
		r := resultFrom(st)
		return &r, nil
	}
	if st != nil && st.Status.Terminal() {
		r := resultFrom(st)
		return &r, nil
	}

	var details any
	if st != nil {
		details = resultFrom(st)
	}
	err = classify(err, details)
	activityErrorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("activity", AdvanceActivityName),
		attribute.String("type", applicationErrorType(err)),
	))
	return nil, err
}
