package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/secrets"
)

// Pipeline is the run surface the tools drive.
type Pipeline interface {
	Start(ctx context.Context, facts memo.InputFacts) (string, error)
	Get(ctx context.Context, runID string) (*pipeline.State, error)
	Advance(ctx context.Context, runID string, opts ...pipeline.AdvanceOption) (*pipeline.State, error)
}

// Server is an MCP server backed by the pipeline and the scorer.
type Server struct {
	mcp      *mcp.Server
	pipeline Pipeline
	scorer   *quality.Scorer
	book     func() *quote.PriceBook
	scanner  *secrets.Scanner
	metrics  *Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "sitegen")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sitegen",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// Option configures a Server.
type Option func(*Server)

// WithPriceBook sets the price book used by quote_generate.
func WithPriceBook(f func() *quote.PriceBook) Option { return func(s *Server) { s.book = f } }

// WithScanner redacts secrets from failure reasons.
func WithScanner(sc *secrets.Scanner) Option { return func(s *Server) { s.scanner = sc } }

// WithMetrics replaces the default tool metrics.
func WithMetrics(m *Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithClock sets the clock used to date quotes.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// NewServer creates a new MCP server.
func NewServer(cfg *Config, p Pipeline, scorer *quality.Scorer, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if p == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		pipeline: p,
		scorer:   scorer,
		book:     quote.DefaultPriceBook,
		now:      time.Now,
		logger:   cfg.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(cfg.Logger)
	}

	s.registerTools()
	return s, nil
}

// Run serves the tools on the stdio transport until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

func (s *Server) redact(text string) string {
	if s.scanner == nil || text == "" {
		return text
	}
	out, err := s.scanner.Redact(text)
	if err != nil {
		s.logger.Warn("redaction failed, withholding text", zap.Error(err))
		return "[withheld]"
	}
	return out
}
