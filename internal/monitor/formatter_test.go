package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatStages(t *testing.T) {
	tests := []struct {
		name     string
		run      RunStatus
		expected string
	}{
		{
			"fresh run",
			RunStatus{Status: "running", CurrentStage: "input"},
			"input ▶  research ·  design ·  content ·",
		},
		{
			"research skipped",
			RunStatus{Status: "running", CurrentStage: "content", CompletedStages: []string{"input", "design"}, SkippedStages: []string{"research"}},
			"input ✓  research –  design ✓  content ▶",
		},
		{
			"failed at design",
			RunStatus{Status: "failed", CurrentStage: "design", CompletedStages: []string{"input", "research"}, Failure: &Failure{Stage: "design"}},
			"input ✓  research ✓  design ✗  content ·",
		},
		{
			"cancelled mid-run",
			RunStatus{Status: "cancelled", CurrentStage: "design", CompletedStages: []string{"input"}},
			"input ✓  research ·  design ·  content ·",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatStages(tt.run))
		})
	}
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "n/a", FormatScore(nil))
	assert.Equal(t, "72.4/75", FormatScore(&Quality{Score: 72.44, Threshold: 75}))
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "running (awaiting revision)", FormatStatus(RunStatus{Status: "running", AwaitingRevision: true}))
	assert.Equal(t, "running (cancelling)", FormatStatus(RunStatus{Status: "running", CancelRequested: true}))
	assert.Equal(t, "completed", FormatStatus(RunStatus{Status: "completed", AwaitingRevision: true}))
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "12s ago", FormatAge(now.Add(-12*time.Second), now))
	assert.Equal(t, "5m ago", FormatAge(now.Add(-5*time.Minute), now))
	assert.Equal(t, "2h 15m ago", FormatAge(now.Add(-135*time.Minute), now))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"zero", 0, "0m"},
		{"minutes", 300, "5m"},
		{"hours_and_minutes", 8100, "2h 15m"},
		{"exact_hour", 3600, "1h 0m"},
		{"seconds_only", 59, "0m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.seconds))
		})
	}
}
