// internal/logging/config.go
package logging

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/sitegen/internal/config"
)

// Config holds logging configuration.
type Config struct {
	Level     zapcore.Level     `koanf:"level"`
	Format    string            `koanf:"format"`
	Output    OutputConfig      `koanf:"output"`
	Sampling  SamplingConfig    `koanf:"sampling"`
	Caller    bool              `koanf:"caller"`
	Fields    map[string]string `koanf:"fields"`
	Redaction RedactionConfig   `koanf:"redaction"`
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	Stderr bool `koanf:"stderr"` // used when stdout carries a protocol
	OTEL   bool `koanf:"otel"`
}

// SamplingConfig thins info and debug logs. Warnings and errors always pass.
type SamplingConfig struct {
	Enabled    bool            `koanf:"enabled"`
	Tick       config.Duration `koanf:"tick"`
	Initial    int             `koanf:"initial"`
	Thereafter int             `koanf:"thereafter"`
}

// RedactionConfig controls sensitive data redaction. Contact details of
// customers are treated like credentials.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Patterns []string `koanf:"patterns"`
}

// NewDefaultConfig returns config with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Caller: true,
		Fields: map[string]string{
			"service": "sitegen",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"api_key", "authorization", "token", "secret", "password",
				"email", "phone",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
				`sk-[A-Za-z0-9_-]{16,}`,
			},
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.Stderr && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout, stderr or otel)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick.Duration() <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if len(p) > 200 {
				return fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
			}
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q must have a non-empty key and value", k)
		}
	}
	return nil
}
