// Package config provides configuration loading for sitegen.
//
// Values come from built-in defaults, then an optional YAML file, then
// SITEGEN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/sitegen/internal/quality"
)

// Config holds the complete sitegen configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Redis     RedisConfig     `koanf:"redis"`
	SQLite    SQLiteConfig    `koanf:"sqlite"`
	NATS      NATSConfig      `koanf:"nats"`
	Generator GeneratorConfig `koanf:"generator"`
	Runner    RunnerConfig    `koanf:"runner"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Quality   quality.Config  `koanf:"quality"`
	Quote     QuoteConfig     `koanf:"quote"`
	Temporal  TemporalConfig  `koanf:"temporal"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MetricsPath     string   `koanf:"metrics_path"`
}

// StoreConfig selects the run state backend.
type StoreConfig struct {
	Backend string `koanf:"backend"` // memory, redis, sqlite or nats
}

// RedisConfig configures the Redis state backend.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  Secret `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// SQLiteConfig configures the SQLite state backend.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// NATSConfig configures the JetStream KV backend and the event publisher.
type NATSConfig struct {
	URL           string `koanf:"url"`
	Bucket        string `koanf:"bucket"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Events        bool   `koanf:"events"`
}

// GeneratorConfig configures the LLM provider behind the stages.
type GeneratorConfig struct {
	Provider          string   `koanf:"provider"` // anthropic, openai or static
	APIKey            Secret   `koanf:"api_key"`
	BaseURL           string   `koanf:"base_url"`
	FastModel         string   `koanf:"fast_model"`
	QualityModel      string   `koanf:"quality_model"`
	MaxTokens         int      `koanf:"max_tokens"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Burst             int      `koanf:"burst"`
	HTTPTimeout       Duration `koanf:"http_timeout"`
}

// RunnerConfig holds stage retry defaults.
type RunnerConfig struct {
	MaxRetries int      `koanf:"max_retries"`
	Timeout    Duration `koanf:"timeout"`
	Tier       string   `koanf:"tier"`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	ConflictRetries int  `koanf:"conflict_retries"`
	ResumeLimit     int  `koanf:"resume_limit"`
	ResumeOnStart   bool `koanf:"resume_on_start"`
}

// QuoteConfig points at an optional price book file.
type QuoteConfig struct {
	PriceBook string `koanf:"price_book"`
	Watch     bool   `koanf:"watch"`
}

// TemporalConfig enables the durable run worker.
type TemporalConfig struct {
	Enabled   bool   `koanf:"enabled"`
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// LoggingConfig is the subset of logging settings exposed to files and env.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig is the subset of telemetry settings exposed to files and env.
type TelemetryConfig struct {
	Enabled       bool    `koanf:"enabled"`
	Endpoint      string  `koanf:"endpoint"`
	ServiceName   string  `koanf:"service_name"`
	Protocol      string  `koanf:"protocol"`
	Insecure      bool    `koanf:"insecure"`
	TLSSkipVerify bool    `koanf:"tls_skip_verify"`
	SampleRate    float64 `koanf:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
			MetricsPath:     "/metrics",
		},
		Store:  StoreConfig{Backend: "memory"},
		Redis:  RedisConfig{Addr: "localhost:6379", KeyPrefix: "sitegen:run:"},
		SQLite: SQLiteConfig{Path: "sitegen.db"},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			Bucket:        "sitegen_runs",
			SubjectPrefix: "sitegen.runs",
		},
		Generator: GeneratorConfig{
			Provider:          "static",
			BaseURL:           "https://api.anthropic.com",
			FastModel:         "claude-haiku-4-5",
			QualityModel:      "claude-sonnet-4-5",
			MaxTokens:         4096,
			RequestsPerSecond: 2,
			Burst:             4,
			HTTPTimeout:       Duration(2 * time.Minute),
		},
		Runner: RunnerConfig{
			MaxRetries: 3,
			Timeout:    Duration(90 * time.Second),
			Tier:       "fast",
		},
		Pipeline: PipelineConfig{
			ConflictRetries: 3,
			ResumeLimit:     4,
		},
		Quality: quality.DefaultConfig(),
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "sitegen-runs",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "sitegen",
			Insecure:    true,
			SampleRate:  1.0,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis backend"))
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required for the sqlite backend"))
		}
	case "nats":
		if c.NATS.URL == "" || c.NATS.Bucket == "" {
			errs = append(errs, errors.New("nats.url and nats.bucket are required for the nats backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	switch c.Generator.Provider {
	case "static":
	case "anthropic", "openai":
		if !c.Generator.APIKey.IsSet() {
			errs = append(errs, fmt.Errorf("generator.api_key is required for provider %q", c.Generator.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown generator provider %q", c.Generator.Provider))
	}
	if c.Generator.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("generator.requests_per_second must be positive"))
	}

	if c.Runner.MaxRetries < 0 {
		errs = append(errs, errors.New("runner.max_retries cannot be negative"))
	}
	if c.Runner.Timeout.Duration() <= 0 {
		errs = append(errs, errors.New("runner.timeout must be positive"))
	}
	if c.Runner.Tier != "fast" && c.Runner.Tier != "quality" {
		errs = append(errs, fmt.Errorf("runner.tier must be fast or quality, got %q", c.Runner.Tier))
	}
	if c.Pipeline.ResumeLimit < 1 {
		errs = append(errs, errors.New("pipeline.resume_limit must be at least 1"))
	}

	if err := c.Quality.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("quality: %w", err))
	}

	if c.Temporal.Enabled && (c.Temporal.HostPort == "" || c.Temporal.TaskQueue == "") {
		errs = append(errs, errors.New("temporal.host_port and temporal.task_queue are required when temporal is enabled"))
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		errs = append(errs, errors.New("service name required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	cfg.Generator.Provider = strings.ToLower(strings.TrimSpace(cfg.Generator.Provider))
	cfg.Runner.Tier = strings.ToLower(strings.TrimSpace(cfg.Runner.Tier))
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "sitegen"
	}
}
