package memo

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports missing or malformed facts.
type ValidationError struct {
	Fields []string // offending fields, e.g. "company_name"
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid facts: " + e.Reason
	}
	return fmt.Sprintf("invalid facts: %s (%s)", e.Reason, strings.Join(e.Fields, ", "))
}

// Violation is returned when a write-once namespace is written twice.
type Violation struct {
	Namespace string
}

func (e *Violation) Error() string {
	return fmt.Sprintf("memo violation: namespace %q is already set", e.Namespace)
}

// SchemaMismatch is returned when a persisted memo does not match what the
// running code expects. It is never retried.
type SchemaMismatch struct {
	ExpectedSchema int
	ActualSchema   int
	Expected       string // fingerprint recorded with the state
	Actual         string // fingerprint recomputed now
}

func (e *SchemaMismatch) Error() string {
	if e.ExpectedSchema != e.ActualSchema {
		return fmt.Sprintf("memo schema mismatch: persisted schema v%d, expected v%d", e.ActualSchema, e.ExpectedSchema)
	}
	return fmt.Sprintf("memo schema mismatch: fingerprint %s does not match recorded %s", short(e.Actual), short(e.Expected))
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsViolation reports whether err is a Violation.
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}

// IsSchemaMismatch reports whether err is a SchemaMismatch.
func IsSchemaMismatch(err error) bool {
	var v *SchemaMismatch
	return errors.As(err, &v)
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
