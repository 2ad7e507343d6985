package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const fetchTimeout = 5 * time.Second

// Source reads run status. *Client satisfies it.
type Source interface {
	GetRun(ctx context.Context, runID string) (RunStatus, error)
}

// Model represents the BubbleTea dashboard model
type Model struct {
	source     Source
	runIDs     []string
	interval   time.Duration
	exitOnDone bool
	now        func() time.Time
	lastUpdate time.Time
	runs       map[string]RunStatus
	errs       map[string]error
	quitting   bool

	progress progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)
)

// Option configures a Model.
type Option func(*Model)

// WithExitOnDone quits once every watched run is terminal.
func WithExitOnDone() Option { return func(m *Model) { m.exitOnDone = true } }

// WithClock sets the clock used for "updated ... ago".
func WithClock(now func() time.Time) Option { return func(m *Model) { m.now = now } }

// NewModel creates a dashboard watching runIDs.
func NewModel(source Source, runIDs []string, interval time.Duration, opts ...Option) Model {
	m := Model{
		source:   source,
		runIDs:   runIDs,
		interval: interval,
		now:      time.Now,
		runs:     make(map[string]RunStatus, len(runIDs)),
		errs:     make(map[string]error),
		progress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(30),
		),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// getStatusBadge returns a colored badge for a run.
func getStatusBadge(r RunStatus) string {
	switch {
	case r.Status == "completed":
		return healthyStyle.Render("✓ COMPLETED")
	case r.Status == "failed":
		return errorStyle.Render("✗ FAILED")
	case r.Status == "cancelled":
		return dimStyle.Render("■ CANCELLED")
	case r.AwaitingRevision:
		return warningStyle.Render("⚠ REVISION")
	default:
		return valueStyle.Render("▶ " + strings.ToUpper(r.Status))
	}
}

// Message types
type tickMsg time.Time

type runsMsg struct {
	runs map[string]RunStatus
	errs map[string]error
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchRuns(m.source, m.runIDs),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchRuns polls every watched run.
func fetchRuns(source Source, runIDs []string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		msg := runsMsg{runs: make(map[string]RunStatus, len(runIDs)), errs: make(map[string]error)}
		for _, id := range runIDs {
			r, err := source.GetRun(ctx, id)
			if err != nil {
				msg.errs[id] = err
				continue
			}
			msg.runs[id] = r
		}
		return msg
	}
}

func (m Model) allTerminal() bool {
	if len(m.runs) < len(m.runIDs) {
		return false
	}
	for _, r := range m.runs {
		if !r.Terminal() {
			return false
		}
	}
	return true
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchRuns(m.source, m.runIDs)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchRuns(m.source, m.runIDs),
		)

	case runsMsg:
		// A failed poll keeps the last known status of that run.
		for id, r := range msg.runs {
			m.runs[id] = r
			delete(m.errs, id)
		}
		for id, err := range msg.errs {
			m.errs[id] = err
		}
		m.lastUpdate = m.now()
		if m.exitOnDone && m.allTerminal() {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	return m, nil
}

// Runs returns the last known status of every watched run that was fetched.
func (m Model) Runs() []RunStatus {
	out := make([]RunStatus, 0, len(m.runs))
	for _, id := range m.runIDs {
		if r, ok := m.runs[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	b.WriteString(headerStyle.Render(" sitegen Monitor "))
	b.WriteString("   " + dimStyle.Render(fmt.Sprintf("%d run(s)  %s", len(m.runIDs), lastUpdateStr)) + "\n")

	for _, id := range m.runIDs {
		b.WriteString(m.renderRun(id))
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}

func (m Model) renderRun(id string) string {
	var b strings.Builder
	b.WriteString("\n" + sectionStyle.Render("┃ "+id) + "\n")

	r, ok := m.runs[id]
	if !ok {
		if err := m.errs[id]; err != nil {
			b.WriteString(errorStyle.Render("  ⚠ "+err.Error()) + "\n")
		} else {
			b.WriteString(dimStyle.Render("  loading...") + "\n")
		}
		return b.String()
	}

	b.WriteString(labelStyle.Render("  Status: ") + getStatusBadge(r) + "  " + dimStyle.Render(FormatStatus(r)) + "\n")
	b.WriteString(labelStyle.Render("  Stages: ") + valueStyle.Render(FormatStages(r)) + "\n")

	ratio := 0.0
	if r.Progress.Total > 0 {
		ratio = float64(r.Progress.Done) / float64(r.Progress.Total)
	}
	b.WriteString(labelStyle.Render("  Progress: ") + m.progress.ViewAs(ratio) +
		" " + dimStyle.Render(fmt.Sprintf("%d/%d", r.Progress.Done, r.Progress.Total)) + "\n")

	if r.Quality != nil {
		style := healthyStyle
		if !r.Quality.Passed {
			style = warningStyle
		}
		b.WriteString(labelStyle.Render("  Quality: ") + style.Render(FormatScore(r.Quality)))
		if r.LastTier != "" {
			b.WriteString(dimStyle.Render("  tier " + r.LastTier))
		}
		b.WriteString("\n")
	}
	if r.Failure != nil {
		b.WriteString(labelStyle.Render("  Failure: ") +
			errorStyle.Render(fmt.Sprintf("%s at %s: %s", r.Failure.Kind, r.Failure.Stage, r.Failure.Reason)) + "\n")
	}
	if err := m.errs[id]; err != nil {
		b.WriteString(dimStyle.Render("  last poll failed: "+err.Error()) + "\n")
	}
	b.WriteString(dimStyle.Render("  updated "+FormatAge(r.UpdatedAt, m.now())) + "\n")
	return b.String()
}

// Run starts the dashboard on the terminal and blocks until it quits.
func Run(source Source, runIDs []string, interval time.Duration, opts ...Option) (Model, error) {
	final, err := tea.NewProgram(NewModel(source, runIDs, interval, opts...), tea.WithAltScreen()).Run()
	if err != nil {
		return Model{}, fmt.Errorf("monitor: %w", err)
	}
	return final.(Model), nil
}
