package stage

import (
	"errors"
	"fmt"
)

// Kind classifies a stage failure.
type Kind int

const (
	// NonRetryableKind failures fail the run immediately.
	NonRetryableKind Kind = iota
	// RetryableKind failures exhausted their retry budget.
	RetryableKind
)

func (k Kind) String() string {
	if k == RetryableKind {
		return "retryable"
	}
	return "non_retryable"
}

// Error is returned by Runner.Run when a stage does not produce an output.
type Error struct {
	Kind     Kind
	Stage    Name
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	if e.Kind == RetryableKind {
		return fmt.Sprintf("stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// classified marks a collaborator error as transient or permanent.
type classified struct {
	err   error
	retry bool
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Retryable marks err as transient. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, retry: true}
}

// NonRetryable marks err as permanent. Nil stays nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, retry: false}
}

// Retryablef is Retryable(fmt.Errorf(format, args...)).
func Retryablef(format string, args ...any) error {
	return Retryable(fmt.Errorf(format, args...))
}

// NonRetryablef is NonRetryable(fmt.Errorf(format, args...)).
func NonRetryablef(format string, args ...any) error {
	return NonRetryable(fmt.Errorf(format, args...))
}

// IsRetryable reports whether err carries a Retryable mark. The outermost
// mark wins.
func IsRetryable(err error) bool {
	var c *classified
	return errors.As(err, &c) && c.retry
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
