package models

import "time"

// DecisionOutcome is the recorded outcome of one evaluated action attempt.
type DecisionOutcome string

const (
	DecisionAllowed DecisionOutcome = "allowed"
	DecisionDenied  DecisionOutcome = "denied"
)

// EnforcementSnapshot captures the counters a policy decision was computed
// from, for audit.
type EnforcementSnapshot struct {
	WindowCount     int        `json:"window_count"`
	WindowSeconds   int        `json:"window_seconds,omitempty"`
	CooldownSeconds int        `json:"cooldown_seconds,omitempty"`
	LastExecutionAt *time.Time `json:"last_execution_at,omitempty"`
}

// ExecutionRecord is one immutable audit row per evaluated or attempted
// action. Rows are append-only and never mutated after insert.
type ExecutionRecord struct {
	ID                 string              `json:"id"`
	RequestID          string              `json:"request_id"`
	ActionType         string              `json:"action_type"`
	TargetType         string              `json:"target_type"`
	TargetID           string              `json:"target_id"`
	Decision           DecisionOutcome     `json:"decision"`
	Reason             string              `json:"reason,omitempty"`
	IdempotencyKeyHash string              `json:"idempotency_key_hash"`
	PolicyName         string              `json:"policy_name,omitempty"`
	Enforcement        EnforcementSnapshot `json:"enforcement"`
	CreatedAt          time.Time           `json:"created_at"`
}
