package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	runs map[string]RunStatus
}

func (f *fakeSource) GetRun(_ context.Context, id string) (RunStatus, error) {
	r, ok := f.runs[id]
	if !ok {
		return RunStatus{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, nil
}

var fixedNow = time.Date(2024, 1, 1, 12, 34, 56, 0, time.UTC)

func newTestModel(src Source, ids ...string) Model {
	return NewModel(src, ids, 5*time.Second, WithClock(func() time.Time { return fixedNow }))
}

func TestNewModel(t *testing.T) {
	model := newTestModel(&fakeSource{}, "run-1")
	assert.Equal(t, []string{"run-1"}, model.runIDs)
	assert.Equal(t, 5*time.Second, model.interval)
	assert.False(t, model.quitting)
	assert.NotNil(t, model.Init())
}

func TestModel_Update_QuitKey(t *testing.T) {
	model := newTestModel(&fakeSource{}, "run-1")

	updatedModel, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	m := updatedModel.(Model)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
	assert.Empty(t, m.View())
}

func TestModel_Update_RefreshKey(t *testing.T) {
	src := &fakeSource{runs: map[string]RunStatus{"run-1": {RunID: "run-1", Status: "running"}}}
	model := newTestModel(src, "run-1")

	updatedModel, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.NotNil(t, cmd)
	assert.False(t, updatedModel.(Model).quitting)

	msg, ok := cmd().(runsMsg)
	require.True(t, ok)
	assert.Equal(t, "running", msg.runs["run-1"].Status)
}

func TestModel_Update_TickMsg(t *testing.T) {
	model := newTestModel(&fakeSource{}, "run-1")
	_, cmd := model.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)
}

func TestModel_Update_RunsMsg(t *testing.T) {
	src := &fakeSource{runs: map[string]RunStatus{
		"run-1": {RunID: "run-1", Status: "running", CurrentStage: "design", CompletedStages: []string{"input", "research"}, Progress: Progress{Done: 2, Total: 4}},
	}}
	model := newTestModel(src, "run-1", "run-2")

	updated, cmd := model.Update(fetchRuns(src, model.runIDs)())
	assert.Nil(t, cmd)
	m := updated.(Model)
	assert.Equal(t, fixedNow, m.lastUpdate)
	require.Len(t, m.Runs(), 1)
	assert.Equal(t, "design", m.Runs()[0].CurrentStage)
	assert.ErrorIs(t, m.errs["run-2"], ErrNotFound)

	t.Run("failed poll keeps last status", func(t *testing.T) {
		updated, _ := m.Update(runsMsg{runs: map[string]RunStatus{}, errs: map[string]error{"run-1": fmt.Errorf("connection refused")}})
		m := updated.(Model)
		assert.Equal(t, "design", m.runs["run-1"].CurrentStage)
		assert.Contains(t, m.View(), "last poll failed: connection refused")
	})
}

func TestModel_ExitOnDone(t *testing.T) {
	src := &fakeSource{runs: map[string]RunStatus{
		"run-1": {RunID: "run-1", Status: "completed"},
		"run-2": {RunID: "run-2", Status: "running"},
	}}
	model := NewModel(src, []string{"run-1", "run-2"}, time.Second, WithExitOnDone())

	updated, cmd := model.Update(fetchRuns(src, model.runIDs)())
	assert.Nil(t, cmd)
	assert.False(t, updated.(Model).quitting)

	src.runs["run-2"] = RunStatus{RunID: "run-2", Status: "failed", Failure: &Failure{Stage: "content", Kind: "policy", Reason: "secret found"}}
	updated, cmd = updated.Update(fetchRuns(src, model.runIDs)())
	assert.NotNil(t, cmd)
	assert.True(t, updated.(Model).quitting)
}

func TestModel_View(t *testing.T) {
	model := newTestModel(&fakeSource{}, "run-1", "run-2", "run-3")
	model.lastUpdate = fixedNow
	model.runs["run-1"] = RunStatus{
		RunID:            "run-1",
		Status:           "running",
		CurrentStage:     "content",
		CompletedStages:  []string{"input", "research", "design"},
		AwaitingRevision: true,
		LastTier:         "fast",
		Quality:          &Quality{Score: 61.2, Threshold: 75},
		Progress:         Progress{Done: 3, Total: 4},
		UpdatedAt:        fixedNow.Add(-2 * time.Minute),
	}
	model.runs["run-2"] = RunStatus{
		RunID:    "run-2",
		Status:   "failed",
		Failure:  &Failure{Stage: "design", Kind: "non_retryable", Reason: "model refused"},
		Progress: Progress{Done: 2, Total: 4},
	}

	view := model.View()

	assert.Contains(t, view, "sitegen Monitor")
	assert.Contains(t, view, "12:34:56")
	assert.Contains(t, view, "REVISION")
	assert.Contains(t, view, "61.2/75")
	assert.Contains(t, view, "tier fast")
	assert.Contains(t, view, "3/4")
	assert.Contains(t, view, "updated 2m ago")
	assert.Contains(t, view, "FAILED")
	assert.Contains(t, view, "non_retryable at design: model refused")
	assert.Contains(t, view, "loading...")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}
