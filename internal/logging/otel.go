// internal/logging/otel.go
package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore tees the console outputs and the OTEL bridge, then applies sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 3)

	for _, out := range []struct {
		enabled bool
		file    *os.File
	}{{cfg.Output.Stdout, os.Stdout}, {cfg.Output.Stderr, os.Stderr}} {
		if !out.enabled {
			continue
		}
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(out.file), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		name := cfg.Fields["service"]
		if name == "" {
			name = "sitegen"
		}
		cores = append(cores, otelzap.NewCore(name, otelzap.WithLoggerProvider(otelProvider)))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := zapcore.NewTee(cores...)
	if !cfg.Sampling.Enabled {
		return core, nil
	}

	// Warnings and errors bypass the sampler.
	loud := &levelFilterCore{Core: core, min: zapcore.WarnLevel, max: zapcore.FatalLevel}
	quiet := &levelFilterCore{Core: core, min: TraceLevel, max: zapcore.InfoLevel}
	sampled := zapcore.NewSamplerWithOptions(quiet, cfg.Sampling.Tick.Duration(), cfg.Sampling.Initial, cfg.Sampling.Thereafter)
	return zapcore.NewTee(loud, sampled), nil
}

// levelFilterCore passes only levels within [min, max].
type levelFilterCore struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
