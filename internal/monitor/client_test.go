package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sitehttp "github.com/fyrsmithlabs/sitegen/internal/http"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/site"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
	"github.com/fyrsmithlabs/sitegen/internal/statestore"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.client)
}

func TestClient_GetRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/runs/run-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"run_id":           "run-1",
				"status":           "running",
				"current_stage":    "design",
				"completed_stages": []string{"input"},
				"skipped_stages":   []string{"research"},
				"progress":         map[string]int{"done": 2, "total": 4},
			})
		case "/api/v1/runs/broken":
			http.Error(w, `{"message":"internal error"}`, http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	r, err := client.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "design", r.CurrentStage)
	assert.Equal(t, []string{"research"}, r.SkippedStages)
	assert.Equal(t, Progress{Done: 2, Total: 4}, r.Progress)
	assert.False(t, r.Terminal())

	_, err = client.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.GetRun(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code 500")
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetRun(ctx, "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

// TestClient_AgainstServer polls a real API server backed by an in-memory
// orchestrator.
func TestClient_AgainstServer(t *testing.T) {
	cfg := quality.DefaultConfig()
	cfg.PassThreshold = 50
	scorer, err := quality.NewScorer(cfg)
	require.NoError(t, err)

	funcs := stage.Funcs{
		stage.Input: func(_ context.Context, req stage.Request) (stage.Output, error) {
			in := req.Memo.Input()
			return &stage.InputOutput{CompanyName: in.CompanyName, Industry: in.Industry, Pages: in.Pages}, nil
		},
		stage.Research: func(context.Context, stage.Request) (stage.Output, error) {
			return &stage.ResearchOutput{Facts: memo.ResearchFacts{Keywords: memo.Keywords{Primary: []string{"dentist"}}}}, nil
		},
		stage.Design: func(context.Context, stage.Request) (stage.Output, error) {
			return &stage.DesignOutput{Facts: memo.DesignFacts{Palette: memo.Palette{Primary: "#0a5c8c"}}}, nil
		},
		stage.Content: func(_ context.Context, req stage.Request) (stage.Output, error) {
			return &stage.ContentOutput{Tier: req.Tier, Pages: []site.PageContent{{
				ID: "home", Slug: "home", Type: "landing", Title: "Acme Dental",
				Sections: []site.Section{
					{ID: "s1", Type: "text", Body: "We fix teeth fast. You can book a slot today. Our team is kind."},
					{ID: "s2", Type: "cta", Body: "Call us now to book."},
				},
			}}}, nil
		},
	}
	orch, err := pipeline.New(statestore.NewMemory(), stage.NewRunner(), funcs, scorer)
	require.NoError(t, err)
	api, err := sitehttp.NewServer(orch, scorer, zap.NewNop(), nil)
	require.NoError(t, err)
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	ctx := context.Background()
	id, err := orch.Start(ctx, memo.InputFacts{
		CompanyName: "Acme Dental",
		Industry:    "dentistry",
		Pages:       []memo.PageSpec{{Slug: "home", Name: "Home", Type: "landing"}},
	})
	require.NoError(t, err)

	client := NewClient(server.URL)
	require.NoError(t, client.Health(ctx))

	r, err := client.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "input", r.CurrentStage)
	assert.Equal(t, Progress{Done: 0, Total: 4}, r.Progress)

	_, err = orch.Resume(ctx, id)
	require.NoError(t, err)

	r, err = client.GetRun(ctx, id)
	require.NoError(t, err)
	assert.True(t, r.Terminal())
	assert.Equal(t, "completed", r.Status)
	require.NotNil(t, r.Quality)
	assert.True(t, r.Quality.Passed)
	assert.Equal(t, "input ✓  research ✓  design ✓  content ✓", FormatStages(r))
}
