package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/site"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// instrument wraps a tool handler with invocation metrics.
func instrument[In, Out any](s *Server, name string, fn func(context.Context, In) (*mcp.CallToolResult, Out, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		res, out, err := fn(ctx, args)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Debug("tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerQuoteTools()
	s.registerQualityTools()
	s.registerPipelineTools()
}

// ===== QUOTE TOOLS =====

type quoteGenerateInput struct {
	ClientName    string   `json:"client_name" jsonschema:"Client or company name"`
	PageCount     int      `json:"page_count" jsonschema:"Number of pages, at least 1"`
	AddOns        []string `json:"add_ons,omitempty" jsonschema:"Add-on identifiers from the price book"`
	Tier          string   `json:"tier,omitempty" jsonschema:"Model tier: fast or quality (default: fast)"`
	Maintenance   bool     `json:"maintenance,omitempty" jsonschema:"Include a maintenance plan"`
	Urgency       string   `json:"urgency,omitempty" jsonschema:"normal, rush or express (default: normal)"`
	IncludeDomain bool     `json:"include_domain,omitempty" jsonschema:"Add domain registration when the package lacks it"`
}

type quoteLine struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Total       string `json:"total"`
}

type quoteGenerateOutput struct {
	ID            string      `json:"id" jsonschema:"Deterministic quote ID"`
	Package       string      `json:"package" jsonschema:"Selected package"`
	Tier          string      `json:"tier"`
	Urgency       string      `json:"urgency"`
	Breakdown     []quoteLine `json:"breakdown"`
	Subtotal      string      `json:"subtotal"`
	Discount      string      `json:"discount"`
	TotalPrice    string      `json:"total_price" jsonschema:"Total before tax"`
	GrandTotal    string      `json:"grand_total" jsonschema:"Total including tax"`
	Currency      string      `json:"currency"`
	ValidUntil    string      `json:"valid_until" jsonschema:"RFC 3339 expiry date"`
	EstimatedDays int         `json:"estimated_days"`
}

func newQuoteOutput(q quote.Quote) quoteGenerateOutput {
	out := quoteGenerateOutput{
		ID:            q.ID,
		Package:       q.Package.Name,
		Tier:          string(q.Tier),
		Urgency:       string(q.Urgency),
		Breakdown:     make([]quoteLine, 0, len(q.Breakdown)),
		Subtotal:      q.Subtotal.StringFixed(2),
		Discount:      q.Discount.StringFixed(2),
		TotalPrice:    q.TotalPrice.StringFixed(2),
		GrandTotal:    q.GrandTotal.StringFixed(2),
		Currency:      q.Currency,
		ValidUntil:    q.ValidUntil.Format(time.RFC3339),
		EstimatedDays: q.EstimatedDays,
	}
	for _, li := range q.Breakdown {
		out.Breakdown = append(out.Breakdown, quoteLine{
			ID:          li.ID,
			Description: li.Description,
			Quantity:    li.Quantity,
			Total:       li.Total.StringFixed(2),
		})
	}
	return out
}

func (s *Server) registerQuoteTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quote_generate",
		Description: "Price a website build from page count, add-ons, tier and urgency",
	}, instrument(s, "quote_generate", func(_ context.Context, args quoteGenerateInput) (*mcp.CallToolResult, quoteGenerateOutput, error) {
		tier, err := parseTier(args.Tier)
		if err != nil {
			return nil, quoteGenerateOutput{}, err
		}
		q, err := quote.Generate(s.book(), quote.Request{
			ClientName:    args.ClientName,
			PageCount:     args.PageCount,
			AddOns:        args.AddOns,
			Tier:          tier,
			Maintenance:   args.Maintenance,
			Urgency:       quote.Urgency(args.Urgency),
			IncludeDomain: args.IncludeDomain,
			IssuedAt:      s.now(),
		})
		if err != nil {
			return nil, quoteGenerateOutput{}, err
		}
		return textResult("%s", quote.FormatText(q)), newQuoteOutput(q), nil
	}))
}

// ===== QUALITY TOOLS =====

type sectionInput struct {
	Type  string `json:"type" jsonschema:"Section type, e.g. hero, text, cta"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

type pageInput struct {
	Slug     string         `json:"slug"`
	Title    string         `json:"title,omitempty"`
	Sections []sectionInput `json:"sections"`
	Keywords []string       `json:"keywords,omitempty" jsonschema:"Target keywords for density scoring"`
}

type qualityScoreInput struct {
	Pages    []pageInput `json:"pages" jsonschema:"Pages to score"`
	MinScore *float64    `json:"min_score,omitempty" jsonschema:"Optional minimum; sets meets_minimum"`
}

type qualityScoreOutput struct {
	Score             float64  `json:"score"`
	Passed            bool     `json:"passed"`
	Threshold         float64  `json:"threshold"`
	Readability       float64  `json:"readability"`
	KeywordDensity    float64  `json:"keyword_density"`
	CTAPresence       float64  `json:"cta_presence"`
	RepetitionPenalty float64  `json:"repetition_penalty"`
	Issues            []string `json:"issues"`
	MeetsMinimum      *bool    `json:"meets_minimum,omitempty"`
}

func toPages(in []pageInput) []site.PageContent {
	pages := make([]site.PageContent, 0, len(in))
	for i, p := range in {
		page := site.PageContent{
			ID:       fmt.Sprintf("page-%d", i+1),
			Slug:     p.Slug,
			Title:    p.Title,
			Keywords: p.Keywords,
		}
		for j, sec := range p.Sections {
			page.Sections = append(page.Sections, site.Section{
				ID:    fmt.Sprintf("%s-%d", p.Slug, j+1),
				Type:  sec.Type,
				Title: sec.Title,
				Body:  sec.Body,
			})
		}
		pages = append(pages, page)
	}
	return pages
}

func newScoreOutput(r quality.Report) qualityScoreOutput {
	issues := r.Issues
	if issues == nil {
		issues = []string{}
	}
	return qualityScoreOutput{
		Score:             r.Score,
		Passed:            r.Passed,
		Threshold:         r.Threshold,
		Readability:       r.Subscores.Readability,
		KeywordDensity:    r.Subscores.KeywordDensity,
		CTAPresence:       r.Subscores.CTAPresence,
		RepetitionPenalty: r.Subscores.RepetitionPenalty,
		Issues:            issues,
	}
}

func (s *Server) registerQualityTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quality_score",
		Description: "Score generated page content for readability, keyword density and calls to action",
	}, instrument(s, "quality_score", func(_ context.Context, args qualityScoreInput) (*mcp.CallToolResult, qualityScoreOutput, error) {
		if len(args.Pages) == 0 {
			return nil, qualityScoreOutput{}, errors.New("invalid input: pages is required")
		}
		pages := toPages(args.Pages)

		if args.MinScore != nil {
			ok, report := s.scorer.QuickCheck(pages, *args.MinScore)
			out := newScoreOutput(report)
			out.MeetsMinimum = &ok
			return textResult("Score %.1f, minimum %.1f met: %t", report.Score, *args.MinScore, ok), out, nil
		}
		report := s.scorer.Score(pages)
		return textResult("Score %.1f (threshold %.1f), passed: %t", report.Score, report.Threshold, report.Passed), newScoreOutput(report), nil
	}))
}

// ===== PIPELINE TOOLS =====

type pageSpecInput struct {
	Slug string `json:"slug"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

type pipelineStartInput struct {
	CompanyID      string          `json:"company_id,omitempty"`
	CompanyName    string          `json:"company_name" jsonschema:"Company name"`
	Industry       string          `json:"industry" jsonschema:"Industry or niche"`
	Pages          []pageSpecInput `json:"pages" jsonschema:"Pages to generate"`
	Services       []string        `json:"services,omitempty"`
	FocusKeywords  []string        `json:"focus_keywords,omitempty"`
	Domain         string          `json:"domain,omitempty"`
	Tone           string          `json:"tone,omitempty"`
	TargetAudience string          `json:"target_audience,omitempty"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	City           string          `json:"city,omitempty"`
	Features       []string        `json:"features,omitempty" jsonschema:"Requested add-on features"`
}

func (in pipelineStartInput) facts() memo.InputFacts {
	f := memo.InputFacts{
		CompanyID:      in.CompanyID,
		CompanyName:    in.CompanyName,
		Industry:       in.Industry,
		Services:       in.Services,
		FocusKeywords:  in.FocusKeywords,
		Domain:         in.Domain,
		Tone:           in.Tone,
		TargetAudience: in.TargetAudience,
		Features:       in.Features,
		Contact:        memo.Contact{Email: in.Email, Phone: in.Phone, City: in.City},
	}
	for _, p := range in.Pages {
		f.Pages = append(f.Pages, memo.PageSpec{Slug: p.Slug, Name: p.Name, Type: p.Type})
	}
	return f
}

type pipelineStartOutput struct {
	RunID string `json:"run_id" jsonschema:"Identifier of the new run"`
}

type runInput struct {
	RunID string `json:"run_id" jsonschema:"Run identifier"`
}

type pipelineAdvanceInput struct {
	RunID string `json:"run_id" jsonschema:"Run identifier"`
	Force bool   `json:"force,omitempty" jsonschema:"Rerun content that is awaiting revision"`
	Tier  string `json:"tier,omitempty" jsonschema:"Model tier for this stage: fast or quality"`
}

type runStatusOutput struct {
	RunID            string   `json:"run_id"`
	Status           string   `json:"status"`
	CurrentStage     string   `json:"current_stage,omitempty"`
	CompletedStages  []string `json:"completed_stages"`
	SkippedStages    []string `json:"skipped_stages"`
	AwaitingRevision bool     `json:"awaiting_revision"`
	Score            *float64 `json:"score,omitempty"`
	Failure          string   `json:"failure,omitempty"`
	Done             int      `json:"done"`
	Total            int      `json:"total"`
}

func names(in []stage.Name) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		out = append(out, string(n))
	}
	return out
}

func (s *Server) newStatusOutput(st *pipeline.State) runStatusOutput {
	done, total := st.Progress()
	out := runStatusOutput{
		RunID:            st.RunID,
		Status:           string(st.Status),
		CurrentStage:     string(st.CurrentStage),
		CompletedStages:  names(st.CompletedStages),
		SkippedStages:    names(st.SkippedStages),
		AwaitingRevision: st.AwaitingRevision,
		Done:             done,
		Total:            total,
	}
	if st.Quality != nil {
		score := st.Quality.Score
		out.Score = &score
	}
	if st.Failure != nil {
		out.Failure = s.redact(st.Failure.Reason)
	}
	return out
}

func (s *Server) registerPipelineTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pipeline_start",
		Description: "Start a website generation run from confirmed company facts",
	}, instrument(s, "pipeline_start", func(ctx context.Context, args pipelineStartInput) (*mcp.CallToolResult, pipelineStartOutput, error) {
		id, err := s.pipeline.Start(ctx, args.facts())
		if err != nil {
			return nil, pipelineStartOutput{}, err
		}
		return textResult("Run started: %s", id), pipelineStartOutput{RunID: id}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pipeline_advance",
		Description: "Run the next stage of a run; use force to rerun content awaiting revision",
	}, instrument(s, "pipeline_advance", func(ctx context.Context, args pipelineAdvanceInput) (*mcp.CallToolResult, runStatusOutput, error) {
		tier, err := parseTier(args.Tier)
		if err != nil {
			return nil, runStatusOutput{}, err
		}
		var opts []pipeline.AdvanceOption
		switch {
		case args.Force:
			opts = append(opts, pipeline.WithForcedRerun(tier))
		case tier != "":
			opts = append(opts, pipeline.WithTier(tier))
		}

		st, err := s.pipeline.Advance(ctx, args.RunID, opts...)
		var gate *pipeline.QualityGateError
		switch {
		case err == nil:
		case errors.As(err, &gate) && st != nil:
			out := s.newStatusOutput(st)
			return textResult("%s", err.Error()), out, nil
		case st != nil && st.Status == pipeline.StatusFailed:
			out := s.newStatusOutput(st)
			return textResult("Run %s failed at %s: %s", st.RunID, st.Failure.Stage, out.Failure), out, nil
		default:
			return nil, runStatusOutput{}, err
		}
		out := s.newStatusOutput(st)
		return textResult("Run %s is %s (%d/%d stages)", st.RunID, st.Status, out.Done, out.Total), out, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pipeline_status",
		Description: "Report the status and progress of a run",
	}, instrument(s, "pipeline_status", func(ctx context.Context, args runInput) (*mcp.CallToolResult, runStatusOutput, error) {
		st, err := s.pipeline.Get(ctx, args.RunID)
		if err != nil {
			return nil, runStatusOutput{}, err
		}
		out := s.newStatusOutput(st)
		return textResult("Run %s is %s (%d/%d stages)", st.RunID, st.Status, out.Done, out.Total), out, nil
	}))
}

func parseTier(s string) (stage.ModelTier, error) {
	if s == "" {
		return "", nil
	}
	return stage.ParseTier(s)
}
