// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrPlaybookNotFound indicates a playbook was not found by the given identifier.
	ErrPlaybookNotFound = errors.New("playbook not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrDraftNotFound indicates a draft was not found by the given identifier.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrDuplicateExecutionRecord indicates an audit row for the same request
	// was already written by another caller. The action is already processed
	// or pending; this is not a failure.
	ErrDuplicateExecutionRecord = errors.New("execution record already exists")

	// ErrRunStatusConflict indicates an atomic status update lost the race:
	// the run was not in the expected status.
	ErrRunStatusConflict = errors.New("run is not in the expected status")
)

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string // Operation being performed (e.g., "GetByID", "UpdateStatus")
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// RecordError wraps audit record errors with additional context.
type RecordError struct {
	Op        string
	RequestID string
	KeyHash   string
	Err       error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for record %s (key %s): %v", e.Op, e.RequestID, e.KeyHash, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsPlaybookNotFound checks if an error indicates a playbook was not found.
func IsPlaybookNotFound(err error) bool {
	return errors.Is(err, ErrPlaybookNotFound)
}

// IsDraftNotFound checks if an error indicates a draft was not found.
func IsDraftNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound)
}

// IsDuplicateExecutionRecord checks if an error indicates a duplicate audit row.
func IsDuplicateExecutionRecord(err error) bool {
	return errors.Is(err, ErrDuplicateExecutionRecord)
}

// IsRunStatusConflict checks if an error indicates a lost status-update race.
func IsRunStatusConflict(err error) bool {
	return errors.Is(err, ErrRunStatusConflict)
}
