package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
	"github.com/quorumlabs/warden/pkg/policy"
)

// Policy provides policy evaluation with audit recording, and audit trail
// queries.
type Policy struct {
	evaluator   *policy.Evaluator
	persistence persistence.Persistence
}

// NewPolicy creates a new policy service.
func NewPolicy(evaluator *policy.Evaluator, persistence persistence.Persistence) *Policy {
	return &Policy{
		evaluator:   evaluator,
		persistence: persistence,
	}
}

// Evaluate runs the policy decision for a request and appends it to the
// audit trail. A request ID that was already recorded returns the fresh
// decision without a second audit row; the trail stays append-only with one
// row per request.
func (p *Policy) Evaluate(ctx context.Context, req policy.Request) (policy.Decision, error) {
	if req.RequestID == "" {
		return policy.Decision{}, ErrRequestIDRequired
	}

	if req.ActionType == "" {
		return policy.Decision{}, ErrActionTypeRequired
	}

	decision, err := p.evaluator.Evaluate(ctx, req)
	if err != nil {
		return policy.Decision{}, fmt.Errorf("policy evaluation failed: %w", err)
	}

	record := &models.ExecutionRecord{
		ID:                 uuid.New().String(),
		RequestID:          req.RequestID,
		ActionType:         req.ActionType,
		TargetType:         req.TargetType,
		TargetID:           req.TargetID,
		Decision:           decision.Decision,
		Reason:             decision.Reason,
		IdempotencyKeyHash: decision.IdempotencyKeyHash,
		PolicyName:         decision.PolicyName,
		Enforcement:        decision.Enforcement,
		CreatedAt:          time.Now().UTC(),
	}

	err = p.persistence.ExecutionRecordRepository().Insert(ctx, record)
	if err != nil && !persistence.IsDuplicateExecutionRecord(err) {
		// A decision that cannot be recorded must not be acted on.
		return policy.Decision{}, fmt.Errorf("failed to record policy decision: %w", err)
	}

	return decision, nil
}

// AuditByKeyHash returns the audit rows for an idempotency key hash, newest
// first.
func (p *Policy) AuditByKeyHash(ctx context.Context, keyHash string) ([]*models.ExecutionRecord, error) {
	if keyHash == "" {
		return nil, fmt.Errorf("%w: key hash is required", ErrInvalidRequest)
	}

	return p.persistence.ExecutionRecordRepository().ListByKeyHash(ctx, keyHash)
}
