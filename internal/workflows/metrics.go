package workflows

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/sitegen/internal/workflows"

var (
	activityDuration     metric.Float64Histogram
	activityErrorCounter metric.Int64Counter
)

// initMetrics initializes OpenTelemetry metrics for workflow activities.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error
	activityDuration, err = meter.Float64Histogram(
		"sitegen.workflows.activity.duration",
		metric.WithDescription("Duration of workflow activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"sitegen.workflows.activity.errors",
		metric.WithDescription("Number of activity execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}
}

func init() {
	initMetrics()
}
