package pipeline

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Failure records why a run failed.
type Failure struct {
	Stage  stage.Name `json:"stage"`
	Kind   string     `json:"kind"`
	Reason string     `json:"reason"`
	At     time.Time  `json:"at"`
}

// State is the persisted record of one run.
type State struct {
	RunID            string          `json:"run_id"`
	Status           Status          `json:"status"`
	CurrentStage     stage.Name      `json:"current_stage,omitempty"`
	CompletedStages  []stage.Name    `json:"completed_stages"`
	SkippedStages    []stage.Name    `json:"skipped_stages,omitempty"`
	Memo             memo.Memo       `json:"memo"`
	MemoFingerprint  string          `json:"memo_fingerprint"`
	Outputs          stage.Outputs   `json:"outputs"`
	Quality          *quality.Report `json:"quality,omitempty"`
	AwaitingRevision bool            `json:"awaiting_revision,omitempty"`
	LastTier         stage.ModelTier `json:"last_tier,omitempty"`
	Failure          *Failure        `json:"failure,omitempty"`
	CancelRequested  bool            `json:"cancel_requested,omitempty"`
	Revision         uint64          `json:"revision"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

var stateKey = [32]byte{
	's', 'i', 't', 'e', 'g', 'e', 'n', '.', 'p', 'i', 'p', 'e', 'l', 'i', 'n', 'e', '.',
	's', 't', 'a', 't', 'e',
}

// fingerprintView is the part of State the concurrency token covers.
type fingerprintView struct {
	RunID            string       `cbor:"run_id"`
	Revision         uint64       `cbor:"revision"`
	Status           Status       `cbor:"status"`
	CurrentStage     stage.Name   `cbor:"current_stage"`
	CompletedStages  []stage.Name `cbor:"completed_stages"`
	SkippedStages    []stage.Name `cbor:"skipped_stages"`
	MemoFingerprint  string       `cbor:"memo_fingerprint"`
	CancelRequested  bool         `cbor:"cancel_requested"`
	AwaitingRevision bool         `cbor:"awaiting_revision"`
}

// Fingerprint is the optimistic concurrency token for this state.
func (s *State) Fingerprint() string {
	sum, err := memo.CanonicalHash(stateKey, fingerprintView{
		RunID:            s.RunID,
		Revision:         s.Revision,
		Status:           s.Status,
		CurrentStage:     s.CurrentStage,
		CompletedStages:  s.CompletedStages,
		SkippedStages:    s.SkippedStages,
		MemoFingerprint:  s.MemoFingerprint,
		CancelRequested:  s.CancelRequested,
		AwaitingRevision: s.AwaitingRevision,
	})
	if err != nil {
		panic("pipeline: state fingerprint: " + err.Error())
	}
	return hex.EncodeToString(sum)
}

// Clone returns a copy that shares no mutable data with s.
func (s *State) Clone() *State {
	c := *s
	c.CompletedStages = slices.Clone(s.CompletedStages)
	c.SkippedStages = slices.Clone(s.SkippedStages)
	c.Outputs = s.Outputs.Clone()
	if s.Failure != nil {
		f := *s.Failure
		c.Failure = &f
	}
	return &c
}

// Done reports whether stage n completed or was skipped.
func (s *State) Done(n stage.Name) bool {
	return slices.Contains(s.CompletedStages, n) || slices.Contains(s.SkippedStages, n)
}

// Progress returns finished and total stage counts.
func (s *State) Progress() (done, total int) {
	return len(s.CompletedStages) + len(s.SkippedStages), len(stage.Order)
}

func encodeState(s *State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode run state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode run state: %w", err)
	}
	if s.Outputs == nil {
		s.Outputs = stage.Outputs{}
	}
	return &s, nil
}
