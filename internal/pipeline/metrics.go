package pipeline

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/sitegen/internal/pipeline"

var (
	// StageDuration tracks stage execution time.
	// Labels: stage, outcome (completed, failed, rejected)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitegen",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of stage executions including retries",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "outcome"},
	)

	// StageRetries counts retries performed by the runner.
	StageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegen",
			Subsystem: "pipeline",
			Name:      "stage_retries_total",
			Help:      "Total number of stage retries after transient errors",
		},
		[]string{"stage"},
	)

	// Transitions counts committed run transitions by resulting status.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegen",
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "Total number of committed run state transitions",
		},
		[]string{"status"},
	)

	// QualityScores records content quality scores.
	QualityScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sitegen",
			Subsystem: "pipeline",
			Name:      "quality_score",
			Help:      "Composite quality score of generated content",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	// Conflicts counts lost compare-and-swap races.
	Conflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sitegen",
			Subsystem: "pipeline",
			Name:      "cas_conflicts_total",
			Help:      "Total number of state commits rejected by compare-and-swap",
		},
	)
)

// otelMetrics mirrors the stage histogram into OpenTelemetry.
type otelMetrics struct {
	stageDuration metric.Float64Histogram
	transitions   metric.Int64Counter
}

func newOtelMetrics(mp metric.MeterProvider) (*otelMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	m := &otelMetrics{}
	var err error
	m.stageDuration, err = meter.Float64Histogram(
		"sitegen.pipeline.stage.duration",
		metric.WithDescription("Duration of stage executions including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}
	m.transitions, err = meter.Int64Counter(
		"sitegen.pipeline.transitions",
		metric.WithDescription("Committed run state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}
	return m, nil
}

func (m *otelMetrics) recordStage(ctx context.Context, name, outcome string, seconds float64, retries int) {
	StageDuration.WithLabelValues(name, outcome).Observe(seconds)
	if retries > 0 {
		StageRetries.WithLabelValues(name).Add(float64(retries))
	}
	m.stageDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("stage", name),
		attribute.String("outcome", outcome),
	))
}

func (m *otelMetrics) recordTransition(ctx context.Context, status Status) {
	Transitions.WithLabelValues(string(status)).Inc()
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}
