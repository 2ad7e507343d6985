// Sitegen is the website generation daemon.
//
// It serves the REST API for pipeline runs and, with -mcp, exposes the same
// pipeline as MCP tools over stdio.
//
// Configuration is loaded from ~/.config/sitegen/config.yaml and SITEGEN_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the API server with defaults
//	sitegen
//
//	# Use the anthropic provider and a redis state store
//	SITEGEN_GENERATOR_PROVIDER=anthropic SITEGEN_GENERATOR_API_KEY=... \
//	SITEGEN_STORE_BACKEND=redis sitegen
//
//	# Serve MCP tools over stdio
//	sitegen -mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/sitegen/internal/config"
	"github.com/fyrsmithlabs/sitegen/internal/events"
	"github.com/fyrsmithlabs/sitegen/internal/generator"
	sitehttp "github.com/fyrsmithlabs/sitegen/internal/http"
	"github.com/fyrsmithlabs/sitegen/internal/logging"
	"github.com/fyrsmithlabs/sitegen/internal/mcp"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/secrets"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
	"github.com/fyrsmithlabs/sitegen/internal/statestore"
	"github.com/fyrsmithlabs/sitegen/internal/telemetry"
	"github.com/fyrsmithlabs/sitegen/internal/workflows"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio instead of HTTP")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  sitegen [-config path] [-mcp]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  sitegen version                 Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *mcpMode); err != nil {
		log.Fatalf("sitegen: %v", err)
	}
}

func printVersion() {
	fmt.Printf("sitegen by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon and blocks until ctx is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Opens the state store and the optional NATS event stream
//  4. Builds the stages, the runner and the orchestrator
//  5. Serves HTTP (or MCP over stdio) and the optional Temporal worker
func run(ctx context.Context, configPath string, mcpMode bool) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := initLogger(cfg, tel, mcpMode)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	orch, scorer, err := initPipeline(cfg, deps, tel, logger)
	if err != nil {
		return err
	}

	logger.Info(ctx, "sitegen starting",
		zap.String("version", version),
		zap.String("store", cfg.Store.Backend),
		zap.String("provider", cfg.Generator.Provider),
		zap.Bool("events", deps.publisher != nil),
		zap.Bool("temporal", cfg.Temporal.Enabled))

	g, gctx := errgroup.WithContext(ctx)

	if deps.prices != nil {
		g.Go(func() error {
			if err := deps.prices.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("price book watcher: %w", err)
			}
			return nil
		})
	}

	if cfg.Pipeline.ResumeOnStart {
		g.Go(func() error {
			results, err := orch.ResumeAll(gctx, cfg.Pipeline.ResumeLimit)
			if err != nil {
				logger.Error(gctx, "resuming runs failed", zap.Error(err))
				return nil
			}
			for _, r := range results {
				if r.Err != nil {
					logger.Warn(gctx, "run not resumed", zap.String("run_id", r.RunID), zap.Error(r.Err))
				}
			}
			logger.Info(gctx, "resumed pending runs", zap.Int("count", len(results)))
			return nil
		})
	}

	if mcpMode {
		srv, err := mcp.NewServer(&mcp.Config{Name: "sitegen", Version: version, Logger: logger.Underlying()}, orch, scorer,
			mcp.WithPriceBook(deps.book),
			mcp.WithScanner(deps.scanner),
		)
		if err != nil {
			return fmt.Errorf("creating mcp server: %w", err)
		}
		g.Go(func() error { return srv.Run(gctx) })
		return g.Wait()
	}

	var dispatcher sitehttp.Dispatcher
	if deps.temporal != nil {
		w := worker.New(deps.temporal, cfg.Temporal.TaskQueue, worker.Options{})
		workflows.Register(w, workflows.NewActivities(orch))
		if err := w.Start(); err != nil {
			return fmt.Errorf("starting temporal worker: %w", err)
		}
		defer w.Stop()
		dispatcher = workflows.NewDispatcher(deps.temporal, cfg.Temporal.TaskQueue)
	}

	opts := []sitehttp.Option{
		sitehttp.WithPriceBook(deps.book),
		sitehttp.WithMetrics(sitehttp.NewHTTPMetrics(logger.Underlying())),
		sitehttp.WithMetricsHandler(promhttp.Handler()),
	}
	if dispatcher != nil {
		opts = append(opts, sitehttp.WithDispatcher(dispatcher))
	}
	srv, err := sitehttp.NewServer(orch, scorer, logger.Underlying(), &sitehttp.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		MetricsPath: cfg.Server.MetricsPath,
	}, opts...)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info(context.Background(), "sitegen stopped")
	return err
}

// initLogger builds the zap logger. In MCP mode stdout carries the protocol,
// so console records go to stderr.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry, mcpMode bool) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Output.OTEL = cfg.Telemetry.Enabled
	if mcpMode {
		lc.Output.Stdout = false
		lc.Output.Stderr = true
	}
	return logging.NewLogger(lc, tel.LoggerProvider())
}

// dependencies holds the infrastructure the orchestrator runs on.
type dependencies struct {
	store     statestore.Store
	natsConn  *nats.Conn
	publisher events.Publisher
	temporal  client.Client
	prices    *quote.Watcher
	book      func() *quote.PriceBook
	scanner   *secrets.Scanner
	client    generator.Client
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.temporal != nil {
		d.temporal.Close()
	}
	if d.prices != nil {
		_ = d.prices.Close()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *dependencies, err error) {
	d := &dependencies{book: quote.DefaultPriceBook, scanner: secrets.NewScanner()}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if d.store, err = statestore.Open(ctx, cfg); err != nil {
		return nil, fmt.Errorf("opening %s state store: %w", cfg.Store.Backend, err)
	}

	if cfg.NATS.Events {
		d.natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.Name("sitegen-events"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
		)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATS.URL, err)
		}
		d.publisher = events.NewNATSPublisher(d.natsConn, cfg.NATS.SubjectPrefix)
		logger.Info(ctx, "publishing run events", zap.String("url", cfg.NATS.URL))
	}

	if cfg.Quote.PriceBook != "" {
		if cfg.Quote.Watch {
			if d.prices, err = quote.NewWatcher(cfg.Quote.PriceBook, logger); err != nil {
				return nil, err
			}
			d.book = d.prices.Book
		} else {
			book, err := quote.LoadPriceBook(cfg.Quote.PriceBook)
			if err != nil {
				return nil, err
			}
			d.book = func() *quote.PriceBook { return book }
		}
	}

	if d.client, err = generator.New(cfg.Generator); err != nil {
		return nil, fmt.Errorf("creating %s generator: %w", cfg.Generator.Provider, err)
	}

	if cfg.Temporal.Enabled {
		d.temporal, err = client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to temporal at %s: %w", cfg.Temporal.HostPort, err)
		}
	}
	return d, nil
}

func initPipeline(cfg *config.Config, deps *dependencies, tel *telemetry.Telemetry, logger *logging.Logger) (*pipeline.Orchestrator, *quality.Scorer, error) {
	scorer, err := quality.NewScorer(cfg.Quality)
	if err != nil {
		return nil, nil, fmt.Errorf("creating quality scorer: %w", err)
	}

	stages := generator.NewStages(deps.client,
		generator.WithScanner(deps.scanner),
		generator.WithStagesLogger(logger),
	)
	runner := stage.NewRunner(
		stage.WithLogger(logger),
		stage.WithTracer(tel.Tracer("sitegen.stage")),
	)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithPriceBook(deps.book),
		pipeline.WithConflictRetries(cfg.Pipeline.ConflictRetries),
		pipeline.WithResumeLimit(cfg.Pipeline.ResumeLimit),
		pipeline.WithStageConfig(stage.Config{
			MaxRetries: cfg.Runner.MaxRetries,
			TimeoutMs:  cfg.Runner.Timeout.Duration().Milliseconds(),
			Tier:       stage.ModelTier(cfg.Runner.Tier),
		}),
	}
	if tel.IsEnabled() {
		opts = append(opts, pipeline.WithMeterProvider(tel.MeterProvider()))
	}
	if deps.publisher != nil {
		opts = append(opts, pipeline.WithEvents(deps.publisher))
	}

	orch, err := pipeline.New(deps.store, runner, stages.Funcs(), scorer, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	return orch, scorer, nil
}
