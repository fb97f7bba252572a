package models

import "time"

// RetryPolicy bounds how a failing step is retried before the step is marked
// failed.
type RetryPolicy struct {
	MaxAttempts         int     `json:"max_attempts"          validate:"min=1"`
	InitialDelaySeconds float64 `json:"initial_delay_seconds" validate:"min=0"`
	BackoffMultiplier   float64 `json:"backoff_multiplier"    validate:"min=1"`
}

// DefaultRetryPolicy runs a step once with no retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, InitialDelaySeconds: 0, BackoffMultiplier: 1}
}

// StepTransition declares the issue lifecycle move a step effects, validated
// against the loaded state machine before the step may run.
type StepTransition struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to"   validate:"required"`
}

// PlaybookStep is one ordered step of a playbook definition.
type PlaybookStep struct {
	ID            string         `json:"id"             validate:"required"`
	UID           string         `json:"uid"            validate:"required,lowercase,alphanum"`
	Name          string         `json:"name"           validate:"required"`
	ActionType    string         `json:"action_type"    validate:"required"`
	Configuration map[string]any `json:"configuration"`

	// Conditional gates the step against accumulated run variables; a false
	// result marks the step skipped, not failed.
	Conditional ConditionalExpression `json:"conditional,omitempty"`

	Retry           *RetryPolicy `json:"retry,omitempty"`
	ContinueOnError bool         `json:"continue_on_error"`

	// TargetType/TargetField identify what the delegated action mutates, for
	// policy evaluation and audit.
	TargetType  string `json:"target_type,omitempty"`
	TargetField string `json:"target_field,omitempty"`

	// Governed marks steps whose action must pass policy evaluation before
	// executing. Ungoverned steps (pure reads, logging) skip the gate.
	Governed bool `json:"governed"`

	// Transition is the lifecycle move this step effects, if any. The engine
	// checks it for structural validity and met preconditions before the
	// policy gate; an invalid or unmet transition fails the step.
	Transition *StepTransition `json:"transition,omitempty"`
}

// EffectiveRetry returns the step's retry policy, or the default when unset.
// MaxAttempts below one is clamped to one: a policy stored without passing
// service validation must not turn into unbounded retries.
func (s *PlaybookStep) EffectiveRetry() RetryPolicy {
	retry := DefaultRetryPolicy()
	if s.Retry != nil {
		retry = *s.Retry
	}

	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	return retry
}

// Playbook is a named multi-step automated procedure.
type Playbook struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Steps       []*PlaybookStep `json:"steps"       validate:"required,min=1,dive"`
	Variables   map[string]any  `json:"variables,omitempty"`

	// TimeoutSeconds bounds total wall-clock execution of a run; zero means
	// no run-level timeout.
	TimeoutSeconds int `json:"timeout_seconds" validate:"min=0"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Timeout returns the run-level timeout as a duration, zero when unbounded.
func (p *Playbook) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}
