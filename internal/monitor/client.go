package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the server does not know the resource.
var ErrNotFound = errors.New("not found")

// RunStatus is the subset of a run the dashboard renders.
type RunStatus struct {
	RunID            string    `json:"run_id"`
	Status           string    `json:"status"`
	CurrentStage     string    `json:"current_stage"`
	CompletedStages  []string  `json:"completed_stages"`
	SkippedStages    []string  `json:"skipped_stages"`
	AwaitingRevision bool      `json:"awaiting_revision"`
	CancelRequested  bool      `json:"cancel_requested"`
	LastTier         string    `json:"last_tier"`
	Quality          *Quality  `json:"quality"`
	Failure          *Failure  `json:"failure"`
	Progress         Progress  `json:"progress"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Quality is the last content score of a run.
type Quality struct {
	Score     float64  `json:"score"`
	Threshold float64  `json:"threshold"`
	Passed    bool     `json:"passed"`
	Issues    []string `json:"issues"`
}

// Failure describes why a run failed.
type Failure struct {
	Stage  string `json:"stage"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Progress counts finished stages.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Terminal reports whether the run will not change again.
func (r RunStatus) Terminal() bool {
	switch r.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// Client reads run status from the sitegen HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// GetRun fetches the status of one run.
func (c *Client) GetRun(ctx context.Context, runID string) (RunStatus, error) {
	var out RunStatus
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID), &out); err != nil {
		return RunStatus{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return out, nil
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("server reports status %q", out.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
