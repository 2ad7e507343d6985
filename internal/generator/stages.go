package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/sitegen/internal/logging"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/secrets"
	"github.com/fyrsmithlabs/sitegen/internal/site"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// pageKeywords is how many memo keywords are attached to each page.
const pageKeywords = 3

// Stages adapts a Client into stage functions.
type Stages struct {
	client      Client
	scanner     *secrets.Scanner
	logger      *logging.Logger
	concurrency int
}

// StagesOption configures Stages.
type StagesOption func(*Stages)

// WithScanner sets the credential scanner used by the content guard.
func WithScanner(s *secrets.Scanner) StagesOption { return func(st *Stages) { st.scanner = s } }

// WithStagesLogger sets the logger.
func WithStagesLogger(l *logging.Logger) StagesOption { return func(st *Stages) { st.logger = l } }

// WithPageConcurrency bounds parallel page requests in the content stage.
func WithPageConcurrency(n int) StagesOption { return func(st *Stages) { st.concurrency = n } }

// NewStages wraps c.
func NewStages(c Client, opts ...StagesOption) *Stages {
	s := &Stages{client: c, logger: logging.NewNop(), concurrency: 3}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Funcs returns the stage functions keyed by stage.
func (s *Stages) Funcs() stage.Funcs {
	return stage.Funcs{
		stage.Input:    s.Input,
		stage.Research: s.Research,
		stage.Design:   s.Design,
		stage.Content:  s.Content,
	}
}

// Input normalises the brief without calling the model.
func (s *Stages) Input(ctx context.Context, req stage.Request) (stage.Output, error) {
	in := req.Memo.Input()
	if in == nil {
		return nil, stage.NonRetryablef("memo has no input facts")
	}
	if issues := memo.ValidateIntegrity(req.Memo, string(stage.Input)); memo.HasErrors(issues) {
		return nil, stage.NonRetryablef("input integrity: %s", issueMessages(issues))
	}
	return &stage.InputOutput{
		CompanyName: strings.TrimSpace(in.CompanyName),
		Industry:    strings.TrimSpace(in.Industry),
		Pages:       in.Pages,
		Keywords:    req.Memo.Keywords(),
	}, nil
}

// Research asks the model for keywords and competitor notes.
func (s *Stages) Research(ctx context.Context, req stage.Request) (stage.Output, error) {
	text, err := s.client.Complete(ctx, Prompt(TaskResearch, NewBrief(req.Memo)), req.Tier)
	if err != nil {
		return nil, err
	}
	var facts memo.ResearchFacts
	if err := extractJSON(text, &facts); err != nil {
		return nil, stage.NonRetryable(fmt.Errorf("parse research output: %w", err))
	}
	return &stage.ResearchOutput{Facts: facts}, nil
}

var hexColour = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Design asks the model for a palette and typography.
func (s *Stages) Design(ctx context.Context, req stage.Request) (stage.Output, error) {
	text, err := s.client.Complete(ctx, Prompt(TaskDesign, NewBrief(req.Memo)), req.Tier)
	if err != nil {
		return nil, err
	}
	var facts memo.DesignFacts
	if err := extractJSON(text, &facts); err != nil {
		return nil, stage.NonRetryable(fmt.Errorf("parse design output: %w", err))
	}
	for _, c := range facts.Palette.Colours() {
		if !hexColour.MatchString(c) {
			return nil, stage.NonRetryablef("design output: colour %q is not #rrggbb", c)
		}
	}
	return &stage.DesignOutput{Facts: facts}, nil
}

// Content writes every requested page, then runs the guard.
func (s *Stages) Content(ctx context.Context, req stage.Request) (stage.Output, error) {
	in := req.Memo.Input()
	if in == nil {
		return nil, stage.NonRetryablef("memo has no input facts")
	}
	if issues := memo.ValidateIntegrity(req.Memo, string(stage.Content)); memo.HasErrors(issues) {
		return nil, stage.NonRetryablef("content integrity: %s", issueMessages(issues))
	}

	base := NewBrief(req.Memo)
	keywords := req.Memo.Keywords()
	if len(keywords) > pageKeywords {
		keywords = keywords[:pageKeywords]
	}

	pages := make([]site.PageContent, len(in.Pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.concurrency))
	for i, spec := range in.Pages {
		g.Go(func() error {
			b := base
			b.Page = &spec
			text, err := s.client.Complete(gctx, Prompt(TaskContent, b), req.Tier)
			if err != nil {
				return err
			}
			var payload pagePayload
			if err := extractJSON(text, &payload); err != nil {
				return stage.NonRetryable(fmt.Errorf("parse page %s: %w", spec.Slug, err))
			}
			pages[i] = toPage(spec, payload, keywords)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := Guard(req.Memo, pages, s.scanner); err != nil {
		var pe *PolicyError
		if errors.As(err, &pe) {
			s.logger.Warn(ctx, "generated content rejected", zap.Strings("violations", pe.Violations))
		}
		return nil, stage.NonRetryable(err)
	}
	return &stage.ContentOutput{Pages: pages, Tier: req.Tier}, nil
}

func toPage(spec memo.PageSpec, p pagePayload, keywords []string) site.PageContent {
	page := site.PageContent{
		ID:              spec.Slug,
		Slug:            spec.Slug,
		Type:            spec.Type,
		Title:           p.Title,
		MetaTitle:       p.MetaTitle,
		MetaDescription: p.MetaDescription,
		Keywords:        append([]string(nil), keywords...),
	}
	for _, sec := range p.Sections {
		page.Sections = append(page.Sections, site.Section(sec))
		page.WordCount += len(strings.Fields(sec.Body))
	}
	return page
}

func issueMessages(issues []memo.Issue) string {
	var msgs []string
	for _, i := range issues {
		if i.Severity == memo.SeverityError {
			msgs = append(msgs, i.Message)
		}
	}
	return strings.Join(msgs, "; ")
}
