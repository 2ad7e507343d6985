package monitor

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// stageOrder is the order stages run in.
var stageOrder = []string{"input", "research", "design", "content"}

// Stage markers.
const (
	markDone    = "✓"
	markSkipped = "–"
	markCurrent = "▶"
	markPending = "·"
	markFailed  = "✗"
)

// StageMark returns the marker for one stage of a run.
func StageMark(r RunStatus, name string) string {
	switch {
	case slices.Contains(r.CompletedStages, name):
		return markDone
	case slices.Contains(r.SkippedStages, name):
		return markSkipped
	case r.Failure != nil && r.Failure.Stage == name:
		return markFailed
	case r.CurrentStage == name && !r.Terminal():
		return markCurrent
	default:
		return markPending
	}
}

// FormatStages renders "input ✓  research –  design ▶  content ·".
func FormatStages(r RunStatus) string {
	parts := make([]string, 0, len(stageOrder))
	for _, name := range stageOrder {
		parts = append(parts, name+" "+StageMark(r, name))
	}
	return strings.Join(parts, "  ")
}

// FormatScore formats a quality score against its threshold as "72.4/75".
func FormatScore(q *Quality) string {
	if q == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f/%.0f", q.Score, q.Threshold)
}

// FormatStatus returns the status label, noting a pending revision or
// cancellation.
func FormatStatus(r RunStatus) string {
	switch {
	case r.AwaitingRevision && !r.Terminal():
		return r.Status + " (awaiting revision)"
	case r.CancelRequested && !r.Terminal():
		return r.Status + " (cancelling)"
	default:
		return r.Status
	}
}

// FormatAge formats how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	return FormatDuration(int64(d.Seconds())) + " ago"
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
