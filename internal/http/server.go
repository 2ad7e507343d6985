// Package http provides the REST API for website generation runs.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sitegen/internal/export"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
	"github.com/fyrsmithlabs/sitegen/internal/workflows"
)

// Pipeline is the orchestrator surface the API serves.
type Pipeline interface {
	Start(ctx context.Context, facts memo.InputFacts) (string, error)
	Get(ctx context.Context, runID string) (*pipeline.State, error)
	Advance(ctx context.Context, runID string, opts ...pipeline.AdvanceOption) (*pipeline.State, error)
	Resume(ctx context.Context, runID string, opts ...pipeline.AdvanceOption) (*pipeline.State, error)
	Cancel(ctx context.Context, runID string) (*pipeline.State, error)
	Skip(ctx context.Context, runID string, name stage.Name) (*pipeline.State, error)
	Quote(ctx context.Context, runID string, opts pipeline.QuoteOptions) (quote.Quote, error)
	Export(ctx context.Context, runID string) (export.Bundle, error)
}

// Dispatcher hands a resume to a durable worker instead of running it in
// the request.
type Dispatcher interface {
	Resume(ctx context.Context, in workflows.PipelineRunInput) (string, error)
}

// Server provides HTTP endpoints for sitegen.
type Server struct {
	echo       *echo.Echo
	pipeline   Pipeline
	scorer     *quality.Scorer
	book       func() *quote.PriceBook
	dispatcher Dispatcher
	logger     *zap.Logger
	config     *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	MetricsPath string
}

// Option configures a Server.
type Option func(*Server)

// WithPriceBook sets the price book used by POST /api/v1/quotes.
func WithPriceBook(f func() *quote.PriceBook) Option {
	return func(s *Server) { s.book = f }
}

// WithDispatcher makes POST /resume start a durable workflow.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// WithMetrics records otel HTTP metrics for every request.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.echo.Use(m.MetricsMiddleware()) }
}

// WithMetricsHandler exposes h, usually the prometheus handler, at
// Config.MetricsPath.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		if s.config.MetricsPath != "" {
			s.echo.GET(s.config.MetricsPath, echo.WrapHandler(h))
		}
	}
}

// NewServer creates a new HTTP server.
func NewServer(p Pipeline, scorer *quality.Scorer, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("2M"))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: p,
		scorer:   scorer,
		book:     quote.DefaultPriceBook,
		logger:   logger,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.handleStartRun)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.POST("/runs/:id/advance", s.handleAdvance)
	v1.POST("/runs/:id/resume", s.handleResume)
	v1.POST("/runs/:id/cancel", s.handleCancel)
	v1.POST("/runs/:id/skip", s.handleSkip)
	v1.GET("/runs/:id/quote", s.handleRunQuote)
	v1.GET("/runs/:id/export", s.handleExport)
	v1.POST("/quotes", s.handleQuote)
	v1.POST("/quality/score", s.handleScore)
}

// Handler returns the root handler, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
