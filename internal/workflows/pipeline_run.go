// Package workflows provides the Temporal workflow that drives a website
// generation run to completion.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// DefaultTaskQueue is used when the configuration leaves it empty.
const DefaultTaskQueue = "sitegen-pipeline"

// maxAdvances bounds one workflow execution. A run needs one advance per
// stage; the rest is room for forced reruns and cancellation.
const maxAdvances = 16

// PipelineRunInput selects the run to drive.
type PipelineRunInput struct {
	RunID string
	Force bool            // rerun content awaiting revision
	Tier  stage.ModelTier // tier for the forced rerun
}

// PipelineRunResult describes where the run stopped.
type PipelineRunResult struct {
	RunID            string
	Status           pipeline.Status
	CurrentStage     stage.Name
	CompletedStages  []stage.Name
	AwaitingRevision bool
	Advances         int
	Score            *float64
	Failure          string
	Errors           []string
}

func (r *PipelineRunResult) apply(step AdvanceResult) {
	r.Status = step.Status
	r.CurrentStage = step.CurrentStage
	r.CompletedStages = step.CompletedStages
	r.AwaitingRevision = step.AwaitingRevision
	r.Score = step.Score
	r.Failure = step.Failure
}

// PipelineRunWorkflow advances a run until it is terminal or its content is
// waiting for a revision.
//
// Each advance is one activity, so a worker crash resumes from the last
// committed stage. Lost compare-and-swap races are retried by the activity
// retry policy; quality-gate, schema-mismatch and not-found errors are not.
func PipelineRunWorkflow(ctx workflow.Context, in PipelineRunInput) (*PipelineRunResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting pipeline run", "run_id", in.RunID, "force", in.Force)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: nonRetryableTypes,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	result := &PipelineRunResult{RunID: in.RunID}
	force := in.Force
	for result.Advances < maxAdvances {
		var step AdvanceResult
		err := workflow.ExecuteActivity(ctx, AdvanceActivityName, AdvanceInput{
			RunID: in.RunID,
			Force: force,
			Tier:  in.Tier,
		}).Get(ctx, &step)
		force = false
		result.Advances++

		if err != nil {
			if applicationErrorType(err) == ErrTypeQualityGate {
				var appErr *temporal.ApplicationError
				if errors.As(err, &appErr) && appErr.HasDetails() {
					if derr := appErr.Details(&step); derr == nil {
						result.apply(step)
					}
				}
				result.AwaitingRevision = true
				logger.Info("Run awaiting content revision", "run_id", in.RunID)
				return result, nil
			}
			result.Errors = append(result.Errors, FormatErrorForResult("failed to advance run", err))
			return result, WrapActivityError("failed to advance run", err)
		}

		result.apply(step)
		logger.Info("Run advanced",
			"run_id", in.RunID,
			"status", string(step.Status),
			"current_stage", string(step.CurrentStage))
		if step.Terminal() || step.AwaitingRevision {
			return result, nil
		}
	}

	err := fmt.Errorf("run %s still running after %d advances", in.RunID, maxAdvances)
	result.Errors = append(result.Errors, err.Error())
	return result, err
}

// Register adds the workflow and activities to w.
func Register(w worker.Registry, acts *Activities) {
	w.RegisterWorkflow(PipelineRunWorkflow)
	w.RegisterActivityWithOptions(acts.Advance, activity.RegisterOptions{Name: AdvanceActivityName})
}

// Dispatcher starts PipelineRunWorkflow executions.
type Dispatcher struct {
	client    client.Client
	taskQueue string
}

// NewDispatcher creates a Dispatcher. An empty taskQueue uses
// DefaultTaskQueue.
func NewDispatcher(c client.Client, taskQueue string) *Dispatcher {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Dispatcher{client: c, taskQueue: taskQueue}
}

// WorkflowID is the execution ID used for a run. One execution per run can
// be open at a time.
func WorkflowID(runID string) string { return "sitegen-run-" + runID }

// Resume starts driving runID and returns the workflow execution ID.
func (d *Dispatcher) Resume(ctx context.Context, in PipelineRunInput) (string, error) {
	run, err := d.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(in.RunID),
		TaskQueue: d.taskQueue,
	}, PipelineRunWorkflow, in)
	if err != nil {
		return "", fmt.Errorf("start workflow for run %s: %w", in.RunID, err)
	}
	return run.GetID(), nil
}
