// Package telemetry owns the OpenTelemetry tracer and meter providers of
// sitegen.
//
// Traces and metrics are exported over OTLP (grpc or http/protobuf) to a
// collector. Stage runs, quality scoring and MCP tool calls record onto the
// meter returned here.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("sitegen.pipeline")
//	ctx, span := tracer.Start(ctx, "stage.design")
//	defer span.End()
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  service_name: "sitegen"
//	  sample_rate: 1.0
//
// # Error Handling
//
// Telemetry failures do not stop the service. If a provider cannot be built
// the instance is marked degraded, Health reports the first cause, and the
// no-op global providers are used instead.
//
// # Testing
//
// TestTelemetry keeps spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	runner := stage.NewRunner(stage.WithTracer(tt.Tracer("sitegen.stage")))
//	// ... run a stage ...
//	spans := tt.SpansNamed("stage.research")
//	n := tt.Int64Sum(t, "sitegen.pipeline.transitions", attribute.String("status", "running"))
package telemetry
