package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/fyrsmithlabs/sitegen/internal/monitor"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	plain  = color.New()
)

func fprintf(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}

func statusColor(status string) *color.Color {
	switch status {
	case "ok", "completed":
		return green
	case "failed":
		return red
	case "cancelled", "pending":
		return yellow
	case "running":
		return cyan
	default:
		return plain
	}
}

// printRun writes a human readable summary of a run.
func printRun(w io.Writer, r monitor.RunStatus, now time.Time) {
	fprintf(w, "Run:      %s\n", r.RunID)
	fprintf(w, "Status:   %s %s\n", statusColor(r.Status).Sprint(r.Status), monitor.FormatStatus(r))
	fprintf(w, "Stages:   %s  (%d/%d)\n", monitor.FormatStages(r), r.Progress.Done, r.Progress.Total)
	if r.CurrentStage != "" && !r.Terminal() {
		fprintf(w, "Next:     %s\n", r.CurrentStage)
	}
	if r.Quality != nil {
		fprintf(w, "Quality:  %s\n", monitor.FormatScore(r.Quality))
		for _, issue := range r.Quality.Issues {
			fprintf(w, "  - %s\n", issue)
		}
	}
	if r.Failure != nil {
		red.Fprintf(w, "Failure:  %s (%s): %s\n", r.Failure.Stage, r.Failure.Kind, r.Failure.Reason)
	}
	if !r.UpdatedAt.IsZero() {
		fprintf(w, "Updated:  %s\n", monitor.FormatAge(r.UpdatedAt, now))
	}
}

// printGate explains a quality gate rejection.
func printGate(w io.Writer, runID string, e *apiError) {
	yellow.Fprintf(w, "⚠️  %s\n", e.Message)
	if e.Report != nil {
		fprintf(w, "Score: %.1f (threshold %.0f)\n", e.Report.Score, e.Report.Threshold)
		if len(e.Report.Issues) > 0 {
			fprintf(w, "Issues:\n  - %s\n", strings.Join(e.Report.Issues, "\n  - "))
		}
	}
	fprintf(w, "\nRevise the memo, or accept a rerun:\n  sitegenctl run advance %s --force --tier quality\n", runID)
}
