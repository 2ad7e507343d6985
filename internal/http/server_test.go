package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/sitegen/internal/export"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/site"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
	"github.com/fyrsmithlabs/sitegen/internal/statestore"
	"github.com/fyrsmithlabs/sitegen/internal/workflows"
)

func testPages(withCTA bool) []site.PageContent {
	p := site.PageContent{
		ID:    "home",
		Slug:  "home",
		Type:  "landing",
		Title: "Acme Dental",
		Sections: []site.Section{
			{ID: "s1", Type: "text", Body: "We fix teeth fast. You can book a slot today. Our team is kind."},
		},
	}
	if withCTA {
		p.Sections = append(p.Sections, site.Section{ID: "s2", Type: "cta", Body: "Call us now to book."})
	} else {
		p.Sections[0].Body = ""
	}
	return []site.PageContent{p}
}

type stubStages struct {
	contentOK   func(tier stage.ModelTier) bool
	failDesign  bool
	badResearch bool
}

func (s stubStages) funcs() stage.Funcs {
	return stage.Funcs{
		stage.Input: func(_ context.Context, req stage.Request) (stage.Output, error) {
			in := req.Memo.Input()
			return &stage.InputOutput{CompanyName: in.CompanyName, Industry: in.Industry, Pages: in.Pages}, nil
		},
		stage.Research: func(context.Context, stage.Request) (stage.Output, error) {
			keyword := "dentist"
			if s.badResearch {
				keyword = "dent\xffist"
			}
			return &stage.ResearchOutput{Facts: memo.ResearchFacts{Keywords: memo.Keywords{Primary: []string{keyword}}}}, nil
		},
		stage.Design: func(context.Context, stage.Request) (stage.Output, error) {
			if s.failDesign {
				return nil, stage.NonRetryablef("design rejected")
			}
			return &stage.DesignOutput{Facts: memo.DesignFacts{Palette: memo.Palette{Primary: "#0a5c8c"}}}, nil
		},
		stage.Content: func(_ context.Context, req stage.Request) (stage.Output, error) {
			ok := s.contentOK == nil || s.contentOK(req.Tier)
			return &stage.ContentOutput{Pages: testPages(ok), Tier: req.Tier}, nil
		},
	}
}

func testScorer(t *testing.T) *quality.Scorer {
	t.Helper()
	cfg := quality.DefaultConfig()
	cfg.PassThreshold = 50
	scorer, err := quality.NewScorer(cfg)
	require.NoError(t, err)
	return scorer
}

func setupTestServer(t *testing.T, stages stubStages, opts ...Option) (*Server, *pipeline.Orchestrator) {
	t.Helper()
	scorer := testScorer(t)
	runner := stage.NewRunner(stage.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	orch, err := pipeline.New(statestore.NewMemory(), runner, stages.funcs(), scorer)
	require.NoError(t, err)

	server, err := NewServer(orch, scorer, zap.NewNop(), nil, opts...)
	require.NoError(t, err)
	return server, orch
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func startRun(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/v1/runs", memo.InputFacts{
		CompanyID:   "acme-dental",
		CompanyName: "Acme Dental",
		Industry:    "dentistry",
		Domain:      "acme-dental.example",
		Pages:       []memo.PageSpec{{Slug: "home", Name: "Home", Type: "landing"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	return resp.RunID
}

type runBody struct {
	Status           pipeline.Status `json:"status"`
	CurrentStage     stage.Name      `json:"current_stage"`
	CompletedStages  []stage.Name    `json:"completed_stages"`
	SkippedStages    []stage.Name    `json:"skipped_stages"`
	AwaitingRevision bool            `json:"awaiting_revision"`
	CancelRequested  bool            `json:"cancel_requested"`
	Failure          *struct {
		Stage stage.Name `json:"stage"`
	} `json:"failure"`
	Progress Progress `json:"progress"`
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) runBody {
	t.Helper()
	var b runBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b), rec.Body.String())
	return b
}

func TestNewServer(t *testing.T) {
	scorer := testScorer(t)
	orch, err := pipeline.New(statestore.NewMemory(), stage.NewRunner(), stubStages{}.funcs(), scorer)
	require.NoError(t, err)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(orch, scorer, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(orch, scorer, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when pipeline is nil", func(t *testing.T) {
		_, err := NewServer(nil, scorer, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline cannot be nil")
	})

	t.Run("mounts the metrics handler", func(t *testing.T) {
		server, err := NewServer(orch, scorer, zap.NewNop(), &Config{MetricsPath: "/metrics"},
			WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("sitegen_up 1\n"))
			})))
		require.NoError(t, err)
		rec := do(t, server, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "sitegen_up")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, stubStages{})
	rec := do(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRunLifecycle(t *testing.T) {
	server, _ := setupTestServer(t, stubStages{})
	id := startRun(t, server)

	rec := do(t, server, http.MethodGet, "/api/v1/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decodeRun(t, rec)
	assert.Equal(t, pipeline.StatusRunning, run.Status)
	assert.Equal(t, stage.Input, run.CurrentStage)
	assert.Equal(t, Progress{Done: 0, Total: 4}, run.Progress)

	rec = do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, stage.Research, decodeRun(t, rec).CurrentStage)

	rec = do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/skip", SkipRequest{Stage: "research"})
	require.Equal(t, http.StatusOK, rec.Code)
	run = decodeRun(t, rec)
	assert.Equal(t, stage.Design, run.CurrentStage)
	assert.Equal(t, []stage.Name{stage.Research}, run.SkippedStages)

	rec = do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run = decodeRun(t, rec)
	assert.Equal(t, pipeline.StatusCompleted, run.Status)
	assert.Equal(t, Progress{Done: 4, Total: 4}, run.Progress)

	t.Run("export", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/v1/runs/"+id+"/export", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var b export.Bundle
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.Equal(t, export.StatusReady, b.Manifest.Status)
		assert.Equal(t, "acme-dental.example", b.Manifest.Domain.Primary)

		rec = do(t, server, http.MethodGet, "/api/v1/runs/"+id+"/export?format=yaml", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/yaml", rec.Header().Get(echo.HeaderContentType))
		var y export.Bundle
		require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &y))
		assert.Equal(t, b.Manifest, y.Manifest)
	})

	t.Run("quote", func(t *testing.T) {
		rec := do(t, server, http.MethodGet, "/api/v1/runs/"+id+"/quote", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var q quote.Quote
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
		assert.Equal(t, "Acme Dental", q.ClientName)
		assert.True(t, q.TotalPrice.Equal(q.BasePrice))

		rec = do(t, server, http.MethodGet, "/api/v1/runs/"+id+"/quote?format=text&urgency=rush", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Acme Dental")

		rec = do(t, server, http.MethodGet, "/api/v1/runs/"+id+"/quote?maintenance=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, server, http.MethodGet, "/api/v1/runs/"+id+"/quote?add_ons=teleportation", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cancel after completion is a no-op", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/cancel", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, pipeline.StatusCompleted, decodeRun(t, rec).Status)
	})
}

func TestErrorMapping(t *testing.T) {
	t.Run("invalid facts are 400", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{})
		rec := do(t, server, http.MethodPost, "/api/v1/runs", memo.InputFacts{CompanyName: "A"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "company_name")
	})

	t.Run("invalid json is 400", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte("invalid json")))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown run is 404", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{})
		rec := do(t, server, http.MethodGet, "/api/v1/runs/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid skip is 400", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{})
		id := startRun(t, server)
		rec := do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/skip", SkipRequest{Stage: "design"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/skip", SkipRequest{Stage: "deploy"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown tier is 400", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{})
		id := startRun(t, server)
		rec := do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/advance", AdvanceRequest{Tier: "premium"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("quality gate is 422 with the report", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{contentOK: func(tier stage.ModelTier) bool { return tier == stage.TierQuality }})
		id := startRun(t, server)

		rec := do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/resume", nil)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var body struct {
			Message string          `json:"message"`
			Report  *quality.Report `json:"report"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Message, "rerun with force")
		require.NotNil(t, body.Report)
		assert.False(t, body.Report.Passed)

		rec = do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/advance", AdvanceRequest{Force: true, Tier: "quality"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, pipeline.StatusCompleted, decodeRun(t, rec).Status)
	})

	t.Run("committed stage failure is reported as the run", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{failDesign: true})
		id := startRun(t, server)

		rec := do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/resume", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		run := decodeRun(t, rec)
		assert.Equal(t, pipeline.StatusFailed, run.Status)
		require.NotNil(t, run.Failure)
		assert.Equal(t, stage.Design, run.Failure.Stage)
	})

	t.Run("facts rejected by the memo fail the run", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{badResearch: true})
		id := startRun(t, server)

		rec := do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/resume", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		run := decodeRun(t, rec)
		assert.Equal(t, pipeline.StatusFailed, run.Status)
		require.NotNil(t, run.Failure)
		assert.Equal(t, stage.Research, run.Failure.Stage)
	})

	t.Run("conflict is 409 and schema mismatch is 500", func(t *testing.T) {
		server, _ := setupTestServer(t, stubStages{})
		assert.Equal(t, http.StatusConflict, statusOf(server.httpError(&pipeline.ConflictError{RunID: "r"})))
		assert.Equal(t, http.StatusInternalServerError, statusOf(server.httpError(&memo.SchemaMismatch{ExpectedSchema: 1})))
		assert.Equal(t, http.StatusInternalServerError, statusOf(server.httpError(errors.New("boom"))))
	})
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

type fakeDispatcher struct {
	inputs []workflows.PipelineRunInput
}

func (f *fakeDispatcher) Resume(_ context.Context, in workflows.PipelineRunInput) (string, error) {
	f.inputs = append(f.inputs, in)
	return workflows.WorkflowID(in.RunID), nil
}

func TestResumeWithDispatcher(t *testing.T) {
	d := &fakeDispatcher{}
	server, orch := setupTestServer(t, stubStages{}, WithDispatcher(d))
	id := startRun(t, server)

	rec := do(t, server, http.MethodPost, "/api/v1/runs/"+id+"/resume", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp ResumeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, workflows.WorkflowID(id), resp.WorkflowID)
	require.Len(t, d.inputs, 1)
	assert.Equal(t, id, d.inputs[0].RunID)

	st, err := orch.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, stage.Input, st.CurrentStage, "the request itself advances nothing")

	rec = do(t, server, http.MethodPost, "/api/v1/runs/missing/resume", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, d.inputs, 1)
}

func TestHandleQuote(t *testing.T) {
	server, _ := setupTestServer(t, stubStages{})

	rec := do(t, server, http.MethodPost, "/api/v1/quotes", quote.Request{ClientName: "Acme", PageCount: 3, Tier: stage.TierFast})
	require.Equal(t, http.StatusOK, rec.Code)
	var q quote.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.True(t, q.TotalPrice.Equal(q.BasePrice))
	assert.Contains(t, q.ID, "Q-")

	rec = do(t, server, http.MethodPost, "/api/v1/quotes", quote.Request{ClientName: "Acme", PageCount: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScore(t *testing.T) {
	server, _ := setupTestServer(t, stubStages{})

	rec := do(t, server, http.MethodPost, "/api/v1/quality/score", ScoreRequest{Pages: testPages(true)})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Passed)
	assert.Nil(t, resp.MeetsMinimum)

	minimum := 99.0
	rec = do(t, server, http.MethodPost, "/api/v1/quality/score", ScoreRequest{Pages: testPages(true), MinScore: &minimum})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = ScoreResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.MeetsMinimum)
	assert.False(t, *resp.MeetsMinimum)

	rec = do(t, server, http.MethodPost, "/api/v1/quality/score", ScoreRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
