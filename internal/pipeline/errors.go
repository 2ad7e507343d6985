package pipeline

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
	"github.com/fyrsmithlabs/sitegen/internal/statestore"
)

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = statestore.ErrNotFound

// ErrInvalidSkip is returned when Skip names a stage that cannot be skipped
// right now.
var ErrInvalidSkip = errors.New("stage cannot be skipped")

// QualityGateError is returned when content failed the quality gate and is
// waiting for a forced rerun.
type QualityGateError struct {
	RunID  string
	Report *quality.Report
}

func (e *QualityGateError) Error() string {
	if e.Report == nil {
		return fmt.Sprintf("run %s: content awaiting revision", e.RunID)
	}
	return fmt.Sprintf("run %s: content scored %.1f, below %.1f; rerun with force", e.RunID, e.Report.Score, e.Report.Threshold)
}

// ConflictError is returned when another writer committed first.
type ConflictError struct {
	RunID string
	Stage stage.Name
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("run %s: concurrent update while applying %s", e.RunID, e.Stage)
}

func (e *ConflictError) Unwrap() error { return statestore.ErrConflict }

// IsQualityGate reports whether err is a QualityGateError.
func IsQualityGate(err error) bool {
	var q *QualityGateError
	return errors.As(err, &q)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
