package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/secrets"
	"github.com/fyrsmithlabs/sitegen/internal/site"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
	"github.com/fyrsmithlabs/sitegen/internal/statestore"
)

var goodBody = []sectionInput{
	{Type: "text", Body: "We fix teeth fast. You can book a slot today. Our team is kind."},
	{Type: "cta", Body: "Call us now to book."},
}

func fixtureFuncs(strict bool) stage.Funcs {
	return stage.Funcs{
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
			page := site.PageContent{ID: "home", Slug: "home", Type: "landing", Title: "Acme Dental"}
			if strict && req.Tier != stage.TierQuality {
				page.Sections = []site.Section{{ID: "s1", Type: "text"}}
			} else {
				page.Sections = toPages([]pageInput{{Slug: "home", Sections: goodBody}})[0].Sections
			}
			return &stage.ContentOutput{Pages: []site.PageContent{page}, Tier: req.Tier}, nil
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

// connect serves s over an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func newTestServer(t *testing.T, strict bool, opts ...Option) *mcp.ClientSession {
	t.Helper()
	scorer := testScorer(t)
	runner := stage.NewRunner(stage.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	orch, err := pipeline.New(statestore.NewMemory(), runner, fixtureFuncs(strict), scorer)
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) })}, opts...)
	s, err := NewServer(&Config{Name: "test-server", Version: "1.0.0", Logger: zap.NewNop()}, orch, scorer, opts...)
	require.NoError(t, err)
	return connect(t, s)
}

// call invokes a tool and decodes its structured output into out.
func call(t *testing.T, cs *mcp.ClientSession, name string, args any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		data, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}
	return res
}

func TestNewServer(t *testing.T) {
	scorer := testScorer(t)
	orch, err := pipeline.New(statestore.NewMemory(), stage.NewRunner(), fixtureFuncs(false), scorer)
	require.NoError(t, err)

	t.Run("nil config uses defaults", func(t *testing.T) {
		s, err := NewServer(nil, orch, scorer)
		require.NoError(t, err)
		require.NotNil(t, s.mcp)
		require.NotNil(t, s.metrics)
	})

	t.Run("missing pipeline", func(t *testing.T) {
		_, err := NewServer(DefaultConfig(), nil, scorer)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline is required")
	})

	t.Run("missing scorer", func(t *testing.T) {
		_, err := NewServer(DefaultConfig(), orch, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scorer is required")
	})
}

func TestListTools(t *testing.T) {
	cs := newTestServer(t, false)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var got []string
	for _, tool := range res.Tools {
		got = append(got, tool.Name)
	}
	assert.ElementsMatch(t, []string{"quote_generate", "quality_score", "pipeline_start", "pipeline_advance", "pipeline_status"}, got)
}

func TestQuoteGenerate(t *testing.T) {
	cs := newTestServer(t, false)

	var out quoteGenerateOutput
	res := call(t, cs, "quote_generate", quoteGenerateInput{ClientName: "Acme", PageCount: 3}, &out)
	require.False(t, res.IsError)
	assert.Contains(t, out.ID, "Q-")
	assert.Equal(t, "fast", out.Tier)
	assert.Equal(t, "normal", out.Urgency)
	assert.Equal(t, out.Subtotal, out.TotalPrice)
	assert.NotEmpty(t, out.Breakdown)
	assert.Equal(t, "2026-03-31T09:00:00Z", out.ValidUntil)

	var again quoteGenerateOutput
	call(t, cs, "quote_generate", quoteGenerateInput{ClientName: "Acme", PageCount: 3}, &again)
	assert.Equal(t, out.ID, again.ID, "identical requests yield the same quote ID")

	t.Run("invalid requests are tool errors", func(t *testing.T) {
		res := call(t, cs, "quote_generate", quoteGenerateInput{ClientName: "Acme", PageCount: 0}, nil)
		assert.True(t, res.IsError)

		res = call(t, cs, "quote_generate", quoteGenerateInput{ClientName: "Acme", PageCount: 1, Tier: "premium"}, nil)
		assert.True(t, res.IsError)
	})
}

func TestQualityScore(t *testing.T) {
	cs := newTestServer(t, false)

	var out qualityScoreOutput
	res := call(t, cs, "quality_score", qualityScoreInput{Pages: []pageInput{{Slug: "home", Sections: goodBody}}}, &out)
	require.False(t, res.IsError)
	assert.True(t, out.Passed)
	assert.Equal(t, 50.0, out.Threshold)
	assert.Nil(t, out.MeetsMinimum)

	minimum := 99.0
	out = qualityScoreOutput{}
	call(t, cs, "quality_score", qualityScoreInput{Pages: []pageInput{{Slug: "home", Sections: goodBody}}, MinScore: &minimum}, &out)
	require.NotNil(t, out.MeetsMinimum)
	assert.False(t, *out.MeetsMinimum)

	res = call(t, cs, "quality_score", qualityScoreInput{Pages: []pageInput{}}, nil)
	assert.True(t, res.IsError)
}

func TestPipelineTools(t *testing.T) {
	cs := newTestServer(t, true)

	var started pipelineStartOutput
	res := call(t, cs, "pipeline_start", pipelineStartInput{
		CompanyName: "Acme Dental",
		Industry:    "dentistry",
		Pages:       []pageSpecInput{{Slug: "home", Name: "Home", Type: "landing"}},
	}, &started)
	require.False(t, res.IsError)
	require.NotEmpty(t, started.RunID)

	var status runStatusOutput
	call(t, cs, "pipeline_status", runInput{RunID: started.RunID}, &status)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "input", status.CurrentStage)
	assert.Equal(t, 4, status.Total)

	for range 3 {
		status = runStatusOutput{}
		res = call(t, cs, "pipeline_advance", pipelineAdvanceInput{RunID: started.RunID}, &status)
		require.False(t, res.IsError)
	}
	assert.Equal(t, "content", status.CurrentStage)
	assert.Equal(t, []string{"input", "research", "design"}, status.CompletedStages)

	status = runStatusOutput{}
	res = call(t, cs, "pipeline_advance", pipelineAdvanceInput{RunID: started.RunID}, &status)
	require.False(t, res.IsError, "a quality gate is reported as status")
	assert.True(t, status.AwaitingRevision)
	require.NotNil(t, status.Score)

	status = runStatusOutput{}
	res = call(t, cs, "pipeline_advance", pipelineAdvanceInput{RunID: started.RunID, Force: true, Tier: "quality"}, &status)
	require.False(t, res.IsError)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 4, status.Done)
	assert.False(t, status.AwaitingRevision)

	t.Run("invalid facts", func(t *testing.T) {
		res := call(t, cs, "pipeline_start", pipelineStartInput{CompanyName: "Acme", Pages: []pageSpecInput{}}, nil)
		assert.True(t, res.IsError)
	})

	t.Run("unknown run", func(t *testing.T) {
		res := call(t, cs, "pipeline_status", runInput{RunID: "missing"}, nil)
		assert.True(t, res.IsError)
	})
}

func TestFailureReasonIsRedacted(t *testing.T) {
	scanner := secrets.NewScanner(secrets.WithDetector(func(content string) ([]secrets.Finding, error) {
		return []secrets.Finding{{RuleID: "generic-api-key", Match: "sk-123"}}, nil
	}))
	s := &Server{scanner: scanner, logger: zap.NewNop()}

	out := s.newStatusOutput(&pipeline.State{
		RunID:   "run-1",
		Status:  pipeline.StatusFailed,
		Failure: &pipeline.Failure{Stage: stage.Design, Reason: "provider rejected key sk-123"},
	})
	assert.Equal(t, "provider rejected key [REDACTED:generic-api-key]", out.Failure)
	assert.Equal(t, []string{}, out.CompletedStages)
}
