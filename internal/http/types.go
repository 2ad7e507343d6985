package http

import (
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/site"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StartRunResponse is the response body for POST /api/v1/runs.
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

// RunResponse wraps a run state with its progress.
type RunResponse struct {
	*pipeline.State
	Progress Progress `json:"progress"`
}

// Progress counts finished stages.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

func newRunResponse(st *pipeline.State) RunResponse {
	done, total := st.Progress()
	return RunResponse{State: st, Progress: Progress{Done: done, Total: total}}
}

// AdvanceRequest is the body of POST /api/v1/runs/:id/advance.
type AdvanceRequest struct {
	Force bool   `json:"force"`
	Tier  string `json:"tier"`
}

// ResumeResponse is returned when a resume was handed to a worker.
type ResumeResponse struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
}

// SkipRequest is the body of POST /api/v1/runs/:id/skip.
type SkipRequest struct {
	Stage string `json:"stage"`
}

// ScoreRequest is the body of POST /api/v1/quality/score.
type ScoreRequest struct {
	Pages    []site.PageContent `json:"pages"`
	MinScore *float64           `json:"min_score,omitempty"`
}

// ScoreResponse is the response of POST /api/v1/quality/score. MeetsMinimum
// is set only when the request carried a minimum.
type ScoreResponse struct {
	quality.Report
	MeetsMinimum *bool `json:"meets_minimum,omitempty"`
}
