// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if stage := StageFromContext(ctx); stage != "" {
		fields = append(fields, zap.String("run.stage", stage))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type runCtxKey struct{}
type stageCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// WithRunID tags ctx with a pipeline run ID. Invalid IDs are ignored so a
// malformed client value can never break logging.
func WithRunID(ctx context.Context, runID string) context.Context {
	if validateID(runID, "runID") != nil {
		return ctx
	}
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext extracts the run ID from context.
func RunIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(runCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithStage tags ctx with the stage currently executing.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageCtxKey{}, stage)
}

// StageFromContext extracts the stage name from context.
func StageFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(stageCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
