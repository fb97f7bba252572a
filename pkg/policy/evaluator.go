// Package policy implements the deterministic, fail-closed gate that decides
// whether a proposed automated action may execute. Evaluation is
// side-effect-free: it never writes an audit row; the caller decides whether
// to record the attempt.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// Stable machine-readable reason codes carried on every decision.
const (
	ReasonAllowed               = "allowed"
	ReasonNoPolicyDefined       = "no_policy_defined"
	ReasonEnvironmentNotAllowed = "environment_not_permitted"
	ReasonApprovalRequired      = "approval_required"
	ReasonRateWindowExhausted   = "rate_window_exhausted"
	ReasonCooldownActive        = "cooldown_active"
)

// Environments treated as low-risk defaults when a request carries no
// explicit environment.
var lowRiskEnvironments = []string{"staging", "development"}

// Request is one proposed automated action to evaluate.
type Request struct {
	RequestID           string         `json:"request_id"`
	ActionType          string         `json:"action_type"          validate:"required"`
	TargetType          string         `json:"target_type"          validate:"required"`
	TargetID            string         `json:"target_identifier"    validate:"required"`
	DeploymentEnv       string         `json:"deployment_env,omitempty"`
	Actor               string         `json:"actor,omitempty"`
	ActionContext       map[string]any `json:"action_context"`
	HasApproval         bool           `json:"has_approval,omitempty"`
	ApprovalFingerprint string         `json:"approval_fingerprint,omitempty"`
}

// Decision is the outcome of one evaluation. Denials are first-class values
// with machine-readable reasons, not errors.
type Decision struct {
	Decision           models.DecisionOutcome     `json:"decision"`
	Allow              bool                       `json:"allow"`
	Reason             string                     `json:"reason"`
	NextAllowedAt      *time.Time                 `json:"next_allowed_at"`
	RequiresApproval   bool                       `json:"requires_approval"`
	IdempotencyKey     string                     `json:"idempotency_key,omitempty"`
	IdempotencyKeyHash string                     `json:"idempotency_key_hash,omitempty"`
	PolicyName         string                     `json:"policy_name,omitempty"`
	Enforcement        models.EnforcementSnapshot `json:"enforcement_data"`
}

// Evaluator decides allow/deny for proposed actions against the loaded
// policy set and the audit trail.
type Evaluator struct {
	logger   *slog.Logger
	policies *Set
	records  persistence.ExecutionRecordRepository
	now      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the evaluator's clock. Wall-clock reads are used only
// for window and cooldown arithmetic.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// NewEvaluator creates a policy evaluator over the loaded policy set and the
// audit trail.
func NewEvaluator(
	logger *slog.Logger,
	policies *Set,
	records persistence.ExecutionRecordRepository,
	opts ...Option,
) *Evaluator {
	evaluator := &Evaluator{
		logger:   logger,
		policies: policies,
		records:  records,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(evaluator)
	}

	return evaluator
}

func denied(reason string) Decision {
	return Decision{
		Decision: models.DecisionDenied,
		Allow:    false,
		Reason:   reason,
	}
}

// Evaluate runs all policy checks for the request. Every branch is
// deterministic given the same inputs and audit history.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Decision, error) {
	policy, ok := e.policies.ByActionType(req.ActionType)
	if !ok {
		// Fail-closed: an action with no policy is never implicitly allowed.
		return denied(ReasonNoPolicyDefined), nil
	}

	if !e.environmentAllowed(policy, req.DeploymentEnv) {
		decision := denied(ReasonEnvironmentNotAllowed)
		decision.PolicyName = policy.Name

		return decision, nil
	}

	if policy.RequiresApproval && !req.HasApproval {
		// Blocked until human approval, not time-bound: no nextAllowedAt.
		decision := denied(ReasonApprovalRequired)
		decision.PolicyName = policy.Name
		decision.RequiresApproval = true

		return decision, nil
	}

	key, err := DeriveIdempotencyKey(req.ActionType, policy.KeyFields, req.ActionContext)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to derive idempotency key: %w", err)
	}

	keyHash := HashIdempotencyKey(key)

	decision := Decision{
		Decision:           models.DecisionAllowed,
		Allow:              true,
		Reason:             ReasonAllowed,
		PolicyName:         policy.Name,
		IdempotencyKey:     key,
		IdempotencyKeyHash: keyHash,
	}

	now := e.now().UTC()

	if policy.HasRateWindow() {
		windowDenied, err := e.checkRateWindow(ctx, policy, keyHash, now, &decision)
		if err != nil {
			return Decision{}, err
		}

		if windowDenied {
			return decision, nil
		}
	}

	if policy.CooldownSeconds != nil {
		cooldownDenied, err := e.checkCooldown(ctx, policy, keyHash, now, &decision)
		if err != nil {
			return Decision{}, err
		}

		if cooldownDenied {
			return decision, nil
		}
	}

	return decision, nil
}

func (e *Evaluator) environmentAllowed(policy *models.PolicyAction, env string) bool {
	if env == "" {
		// No environment given: allow only when the policy permits one of the
		// designated low-risk defaults.
		for _, candidate := range lowRiskEnvironments {
			for _, allowed := range policy.AllowedEnvironments {
				if candidate == allowed {
					return true
				}
			}
		}

		return false
	}

	for _, allowed := range policy.AllowedEnvironments {
		if env == allowed {
			return true
		}
	}

	return false
}

func (e *Evaluator) checkRateWindow(
	ctx context.Context,
	policy *models.PolicyAction,
	keyHash string,
	now time.Time,
	decision *Decision,
) (bool, error) {
	window := time.Duration(*policy.WindowSeconds) * time.Second
	since := now.Add(-window)

	count, err := e.records.CountAllowedInWindow(ctx, policy.ActionType, keyHash, since)
	if err != nil {
		return false, fmt.Errorf("failed to count executions in window: %w", err)
	}

	decision.Enforcement.WindowCount = count
	decision.Enforcement.WindowSeconds = *policy.WindowSeconds

	if count < *policy.MaxRunsPerWindow {
		return false, nil
	}

	oldest, err := e.records.OldestAllowedInWindow(ctx, policy.ActionType, keyHash, since)
	if err != nil {
		return false, fmt.Errorf("failed to find window start: %w", err)
	}

	decision.Decision = models.DecisionDenied
	decision.Allow = false
	decision.Reason = ReasonRateWindowExhausted

	if oldest != nil {
		next := oldest.Add(window)
		decision.NextAllowedAt = &next
	}

	return true, nil
}

func (e *Evaluator) checkCooldown(
	ctx context.Context,
	policy *models.PolicyAction,
	keyHash string,
	now time.Time,
	decision *Decision,
) (bool, error) {
	last, err := e.records.LastAllowedAt(ctx, policy.ActionType, keyHash)
	if err != nil {
		return false, fmt.Errorf("failed to find last execution: %w", err)
	}

	decision.Enforcement.CooldownSeconds = *policy.CooldownSeconds
	decision.Enforcement.LastExecutionAt = last

	if last == nil {
		return false, nil
	}

	next := last.Add(time.Duration(*policy.CooldownSeconds) * time.Second)
	if !next.After(now) {
		return false, nil
	}

	decision.Decision = models.DecisionDenied
	decision.Allow = false
	decision.Reason = ReasonCooldownActive
	decision.NextAllowedAt = &next

	return true, nil
}
