package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/pipeline"
)

// Application error types surfaced by AdvanceActivity. Temporal does not
// retry these.
const (
	ErrTypeQualityGate    = "QualityGate"
	ErrTypeSchemaMismatch = "SchemaMismatch"
	ErrTypeNotFound       = "NotFound"
)

// nonRetryableTypes is the retry policy exclusion list for AdvanceActivity.
var nonRetryableTypes = []string{ErrTypeQualityGate, ErrTypeSchemaMismatch, ErrTypeNotFound}

// WrapActivityError wraps an activity error with operation context.
func WrapActivityError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}

// FormatErrorForResult formats an error for a result's Errors slice.
func FormatErrorForResult(operation string, err error) string {
	return fmt.Sprintf("%s: %v", operation, err)
}

// classify converts orchestrator errors into Temporal application errors.
// Errors that a retry could fix, such as lost races, pass through unchanged.
func classify(err error, details any) error {
	var gate *pipeline.QualityGateError
	switch {
	case errors.As(err, &gate):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeQualityGate, err, details)
	case memo.IsSchemaMismatch(err):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeSchemaMismatch, err)
	case errors.Is(err, pipeline.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	default:
		return err
	}
}

// applicationErrorType returns the Temporal application error type in
// err's chain, or "".
func applicationErrorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return ""
}
