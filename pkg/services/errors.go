// Package services provides the business operations behind the HTTP API and
// standardized error types for them.
package services

import (
	"errors"
	"fmt"

	"github.com/quorumlabs/warden/pkg/engine"
	"github.com/quorumlabs/warden/pkg/patch"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrTriggeredByRequired  = errors.New("triggered_by is required")
	ErrActorRequired        = errors.New("actor identity is required")
	ErrInvalidRunStatus     = errors.New("invalid run status")
	ErrPlaybookNameRequired = errors.New("playbook name is required")
	ErrStepsRequired        = errors.New("playbook must have at least one step")
	ErrDuplicateStepID      = errors.New("playbook step IDs must be unique")
	ErrActionTypeRequired   = errors.New("action type is required")
	ErrRequestIDRequired    = errors.New("request_id is required")
	ErrDraftIDRequired      = errors.New("draft ID is required")
	ErrEmptyPatch           = errors.New("patch has no operations")

	// Business Logic Conflicts (409 Conflict).
	ErrDraftHashMismatch = errors.New("draft content hash does not match")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	var patchErr *patch.Error
	if errors.As(err, &patchErr) {
		return true
	}

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTriggeredByRequired) ||
		errors.Is(err, ErrActorRequired) ||
		errors.Is(err, ErrInvalidRunStatus) ||
		errors.Is(err, ErrPlaybookNameRequired) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrDuplicateStepID) ||
		errors.Is(err, ErrActionTypeRequired) ||
		errors.Is(err, ErrRequestIDRequired) ||
		errors.Is(err, ErrDraftIDRequired) ||
		errors.Is(err, ErrEmptyPatch) ||
		errors.Is(err, engine.ErrPlaybookHasNoSteps) ||
		errors.Is(err, engine.ErrMissingActor)
}

// IsConflictError checks if an error is a state conflict that should return
// HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDraftHashMismatch) ||
		errors.Is(err, engine.ErrRunNotRunning) ||
		errors.Is(err, engine.ErrRunNotPaused) ||
		errors.Is(err, engine.ErrRunTerminal) ||
		errors.Is(err, persistence.ErrRunStatusConflict)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, persistence.ErrPlaybookNotFound) ||
		errors.Is(err, persistence.ErrRunNotFound) ||
		errors.Is(err, persistence.ErrDraftNotFound)
}
