// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with a Trace level below Debug, a stdout core teed
// with an otelzap bridge, sampling that never drops warnings or errors, and
// an encoder that redacts credentials and customer contact details.
//
// Every method takes a context so correlation fields are attached for free:
//
//	ctx = logging.WithRunID(ctx, run.ID)
//	ctx = logging.WithStage(ctx, "content")
//	logger.Info(ctx, "stage completed", zap.Int("attempts", 2))
//
// produces
//
//	{"level":"info","msg":"stage completed","trace_id":"...","run.id":"r-1","run.stage":"content","attempts":2}
//
// Configuration follows the usual precedence: NewDefaultConfig, then the
// logging section of config.yaml, then SITEGEN_LOGGING_* variables.
package logging
