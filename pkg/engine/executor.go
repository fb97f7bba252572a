package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quorumlabs/warden/pkg/events"
	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/otelhelper"
	"github.com/quorumlabs/warden/pkg/persistence"
	"github.com/quorumlabs/warden/pkg/policy"
)

// pausedByPolicyGate marks runs the engine paused itself while waiting for
// human approval of a governed step.
const pausedByPolicyGate = "policy-gate"

// executeSteps drives the run's pending steps strictly sequentially. It
// returns the run in its resulting status; execution failures surface in the
// run status, not as errors. Errors are reserved for infrastructure
// failures (persistence unavailable).
func (e *Engine) executeSteps(
	ctx context.Context,
	playbook *models.Playbook,
	run *models.Run,
	resumed bool,
) (*models.Run, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.PlaybookIDKey, playbook.ID),
	)
	defer span.End()

	logger := e.logger.With("module", "engine", "run_id", run.ID, "playbook_id", playbook.ID)
	runRepo := e.persistence.RunRepository()

	var deadline time.Time
	if playbook.Timeout() > 0 {
		deadline = run.StartedAt.Add(playbook.Timeout())
	}

	// The identity that resumed a paused run doubles as the approval for
	// governed steps blocked on it.
	hasApproval := resumed && run.ResumedBy != ""

	for _, step := range playbook.Steps {
		result := findStepResult(run, step.ID)
		if result == nil {
			return nil, fmt.Errorf("run %s has no result slot for step %s", run.ID, step.ID)
		}

		if result.Status != models.StepStatusPending {
			continue
		}

		// Re-read the persisted status before scheduling each step so an
		// out-of-band pause or cancel takes effect cooperatively.
		current, err := runRepo.GetByID(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload run %s: %w", run.ID, err)
		}

		if current.Status != models.RunStatusRunning {
			logger.InfoContext(ctx, "Run is no longer running, stopping step scheduling",
				"status", string(current.Status))

			return current, nil
		}

		if !deadline.IsZero() && e.now().UTC().After(deadline) {
			logger.WarnContext(ctx, "Run exceeded its timeout", "timeout", playbook.Timeout().String())

			return e.failRun(ctx, run, ErrRunTimeout.Error())
		}

		stepLogger := logger.With("step_id", step.ID, "step_uid", step.UID, "action_type", step.ActionType)

		skip, err := e.shouldSkip(step, run.Variables)
		if err != nil {
			stepLogger.ErrorContext(ctx, "Failed to evaluate step conditional", "error", err)

			if finished, ferr := e.finishStep(ctx, run, step, result, models.StepStatusFailed, nil, err); ferr != nil {
				return nil, ferr
			} else if finished != nil {
				return finished, nil
			}

			continue
		}

		if skip {
			stepLogger.InfoContext(ctx, "Step conditional evaluated to false, skipping")

			now := e.now().UTC()
			result.Status = models.StepStatusSkipped
			result.FinishedAt = &now

			if err := runRepo.SaveStep(ctx, run.ID, result); err != nil {
				return nil, fmt.Errorf("failed to persist skipped step %s: %w", step.ID, err)
			}

			e.publishStepFinished(ctx, run, result)

			continue
		}

		if step.Transition != nil {
			if err := e.checkStepTransition(ctx, step, run, stepLogger); err != nil {
				stepLogger.WarnContext(ctx, "Step transition rejected", "error", err)

				if finished, ferr := e.finishStep(ctx, run, step, result, models.StepStatusFailed, nil, err); ferr != nil {
					return nil, ferr
				} else if finished != nil {
					return finished, nil
				}

				continue
			}
		}

		if step.Governed {
			outcome, err := e.gateStep(ctx, run, step, hasApproval, stepLogger)
			if err != nil {
				return nil, err
			}

			switch outcome {
			case gateAllowed:
			case gatePaused:
				return runRepo.GetByID(ctx, run.ID)
			case gateDenied:
				denialErr := fmt.Errorf("action %q denied by policy", step.ActionType)

				if finished, ferr := e.finishStep(ctx, run, step, result, models.StepStatusFailed, nil, denialErr); ferr != nil {
					return nil, ferr
				} else if finished != nil {
					return finished, nil
				}

				continue
			}
		}

		startedAt := e.now().UTC()
		result.Status = models.StepStatusRunning
		result.StartedAt = &startedAt

		if err := runRepo.SaveStep(ctx, run.ID, result); err != nil {
			return nil, fmt.Errorf("failed to persist running step %s: %w", step.ID, err)
		}

		output, actionErr := e.runAction(ctx, step, run, result, deadline, stepLogger)

		status := models.StepStatusSucceeded
		if actionErr != nil {
			status = models.StepStatusFailed
		}

		if finished, ferr := e.finishStep(ctx, run, step, result, status, output, actionErr); ferr != nil {
			return nil, ferr
		} else if finished != nil {
			return finished, nil
		}
	}

	return e.completeRun(ctx, run)
}

// checkStepTransition validates the lifecycle move a step declares before
// the step may run. A missing state machine, a structurally invalid move,
// or unmet preconditions all block the step: absence of explicit permission
// is denial.
func (e *Engine) checkStepTransition(
	ctx context.Context,
	step *models.PlaybookStep,
	run *models.Run,
	logger *slog.Logger,
) error {
	move := step.Transition

	if e.stateMachine == nil {
		return fmt.Errorf("step %s declares transition %s to %s but no state machine is loaded",
			step.UID, move.From, move.To)
	}

	if !e.stateMachine.IsTransitionAllowed(move.From, move.To) {
		return fmt.Errorf("transition from %s to %s is not allowed", move.From, move.To)
	}

	// Hold moves and other structurally valid pairs may carry no transition
	// definition; those have no preconditions to check.
	transition, ok := e.stateMachine.GetTransition(move.From, move.To)
	if ok {
		check := e.stateMachine.CheckPreconditions(transition, evidenceFromVariables(run.Variables))
		if !check.Met {
			return fmt.Errorf("transition from %s to %s has unmet preconditions: %v",
				move.From, move.To, check.Missing)
		}
	}

	logger.InfoContext(ctx, "Step transition validated", "from", move.From, "to", move.To)

	return nil
}

// evidenceFromVariables treats boolean run variables as observed evidence.
// Steps publish evidence by writing boolean variables named after evidence
// kinds; non-boolean variables are never evidence.
func evidenceFromVariables(vars map[string]any) models.EvidenceSet {
	evidence := make(models.EvidenceSet, len(vars))

	for name, value := range vars {
		if truth, ok := value.(bool); ok {
			evidence[models.EvidenceKind(name)] = truth
		}
	}

	return evidence
}

// gateOutcome is the result of the policy gate for one governed step.
type gateOutcome int

const (
	gateAllowed gateOutcome = iota
	gateDenied
	gatePaused
)

// gateStep evaluates and records the policy decision for a governed step.
// A denial that only needs human approval pauses the run instead of failing
// it; the run resumes once an approving actor calls ResumeRun.
func (e *Engine) gateStep(
	ctx context.Context,
	run *models.Run,
	step *models.PlaybookStep,
	hasApproval bool,
	logger *slog.Logger,
) (gateOutcome, error) {
	req := e.policyRequest(run, step, hasApproval)

	decision, err := e.evaluator.Evaluate(ctx, req)
	if err != nil {
		return gateDenied, fmt.Errorf("policy evaluation failed for step %s: %w", step.ID, err)
	}

	if err := e.recordDecision(ctx, req, decision); err != nil {
		// A failed audit write must never be interpreted as "allowed".
		return gateDenied, fmt.Errorf("failed to record policy decision for step %s: %w", step.ID, err)
	}

	if decision.Allow {
		return gateAllowed, nil
	}

	e.publish(ctx, run, events.ActionDenied{
		BaseEvent:          e.baseEvent(events.ActionDeniedEvent, run),
		ActionType:         step.ActionType,
		Reason:             decision.Reason,
		IdempotencyKeyHash: decision.IdempotencyKeyHash,
		PolicyName:         decision.PolicyName,
	})

	if decision.RequiresApproval {
		logger.InfoContext(ctx, "Step requires human approval, pausing run", "policy", decision.PolicyName)

		err := e.persistence.RunRepository().UpdateStatus(ctx, run.ID, models.RunStatusRunning, persistence.RunUpdate{
			Status:      models.RunStatusPaused,
			PausedBy:    pausedByPolicyGate,
			PauseReason: fmt.Sprintf("approval required for action %q", step.ActionType),
		})
		if err != nil {
			return gateDenied, fmt.Errorf("failed to pause run %s for approval: %w", run.ID, err)
		}

		e.publish(ctx, run, events.RunPaused{
			BaseEvent: e.baseEvent(events.RunPausedEvent, run),
			PausedBy:  pausedByPolicyGate,
			Reason:    decision.Reason,
		})

		return gatePaused, nil
	}

	logger.WarnContext(ctx, "Step denied by policy",
		"reason", decision.Reason, "policy", decision.PolicyName)

	return gateDenied, nil
}

func (e *Engine) policyRequest(run *models.Run, step *models.PlaybookStep, hasApproval bool) policy.Request {
	actionContext := make(map[string]any, len(step.Configuration))
	for k, v := range step.Configuration {
		actionContext[k] = v
	}

	targetID, _ := step.Configuration["target_id"].(string)
	if targetID == "" {
		targetID = run.ID
	}

	req := policy.Request{
		RequestID:     run.ID + ":" + step.ID,
		ActionType:    step.ActionType,
		TargetType:    step.TargetType,
		TargetID:      targetID,
		DeploymentEnv: run.Environment,
		Actor:         run.TriggeredBy,
		ActionContext: actionContext,
	}

	if hasApproval {
		req.HasApproval = true
		req.ApprovalFingerprint = run.ResumedBy
	}

	return req
}

func (e *Engine) recordDecision(ctx context.Context, req policy.Request, decision policy.Decision) error {
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
		CreatedAt:          e.now().UTC(),
	}

	err := e.persistence.ExecutionRecordRepository().Insert(ctx, record)
	if err != nil {
		if persistence.IsDuplicateExecutionRecord(err) {
			// First writer won; this decision is already on the audit trail.
			return nil
		}

		return err
	}

	return nil
}

func (e *Engine) shouldSkip(step *models.PlaybookStep, vars map[string]any) (bool, error) {
	if step.Conditional.IsZero() {
		return false, nil
	}

	interpreter := models.GetConditional(step.Conditional)
	if interpreter == nil {
		return false, fmt.Errorf("unsupported conditional language %q", step.Conditional.Language)
	}

	shouldRun, err := interpreter.Evaluate(step.Conditional.Expression, vars)
	if err != nil {
		return false, err
	}

	return !shouldRun, nil
}

// runAction invokes the step's delegated action with the step's retry
// policy. No lock is held across the external call; persistence writes
// bracket it.
func (e *Engine) runAction(
	ctx context.Context,
	step *models.PlaybookStep,
	run *models.Run,
	result *models.StepResult,
	deadline time.Time,
	logger *slog.Logger,
) (map[string]any, error) {
	action, err := e.registry.CreateAction(step.ActionType, step.Configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create action: %w", err)
	}

	actionCtx := ctx

	if !deadline.IsZero() {
		var cancel context.CancelFunc

		actionCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	ectx := models.ExecutionContext{
		RunID:       run.ID,
		PlaybookID:  run.PlaybookID,
		Environment: run.Environment,
		TriggeredBy: run.TriggeredBy,
		Variables:   run.Variables,
		StepOutputs: collectOutputs(run),
	}

	retry := step.EffectiveRetry()

	policyBackoff := backoff.NewExponentialBackOff()
	policyBackoff.InitialInterval = time.Duration(retry.InitialDelaySeconds * float64(time.Second))
	policyBackoff.Multiplier = retry.BackoffMultiplier
	policyBackoff.RandomizationFactor = 0

	var output map[string]any

	operation := func() error {
		result.Attempts++

		out, execErr := action.Execute(actionCtx, ectx, e.logger)
		if execErr != nil {
			logger.WarnContext(ctx, "Step action attempt failed",
				"attempt", result.Attempts, "error", execErr)

			return execErr
		}

		output = out

		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policyBackoff, uint64(retry.MaxAttempts-1)), actionCtx))
	if err != nil {
		return nil, err
	}

	return output, nil
}

// finishStep durably records the step outcome. On failure it also decides
// the run's fate: a non-nil run return means the run reached a terminal
// status and the loop must stop.
func (e *Engine) finishStep(
	ctx context.Context,
	run *models.Run,
	step *models.PlaybookStep,
	result *models.StepResult,
	status models.StepStatus,
	output map[string]any,
	stepErr error,
) (*models.Run, error) {
	now := e.now().UTC()
	result.Status = status
	result.Output = output
	result.FinishedAt = &now

	if stepErr != nil {
		result.Error = stepErr.Error()
	}

	if err := e.persistence.RunRepository().SaveStep(ctx, run.ID, result); err != nil {
		return nil, fmt.Errorf("failed to persist step %s: %w", step.ID, err)
	}

	e.publishStepFinished(ctx, run, result)

	if status == models.StepStatusSucceeded {
		if vars, ok := output["variables"].(map[string]any); ok && len(vars) > 0 {
			if run.Variables == nil {
				run.Variables = make(map[string]any, len(vars))
			}

			for k, v := range vars {
				run.Variables[k] = v
			}

			if err := e.persistence.RunRepository().SaveVariables(ctx, run.ID, run.Variables); err != nil {
				return nil, fmt.Errorf("failed to persist run variables: %w", err)
			}
		}

		return nil, nil
	}

	if status == models.StepStatusFailed && !step.ContinueOnError {
		failed, err := e.failRun(ctx, run, fmt.Sprintf("step %s failed: %v", step.UID, stepErr))
		if err != nil {
			return nil, err
		}

		return failed, nil
	}

	return nil, nil
}

func (e *Engine) completeRun(ctx context.Context, run *models.Run) (*models.Run, error) {
	now := e.now().UTC()

	err := e.persistence.RunRepository().UpdateStatus(ctx, run.ID, models.RunStatusRunning, persistence.RunUpdate{
		Status:      models.RunStatusCompleted,
		CompletedAt: &now,
	})
	if err != nil {
		if persistence.IsRunStatusConflict(err) {
			// An out-of-band pause or cancel landed after the last step.
			return e.persistence.RunRepository().GetByID(ctx, run.ID)
		}

		return nil, fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}

	final, err := e.persistence.RunRepository().GetByID(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, final, events.RunCompleted{
		BaseEvent: e.baseEvent(events.RunCompletedEvent, final),
		Summary:   final.Summary(),
		Duration:  now.Sub(final.StartedAt),
	})

	return final, nil
}

func (e *Engine) failRun(ctx context.Context, run *models.Run, message string) (*models.Run, error) {
	now := e.now().UTC()

	otelhelper.RecordFailure(ctx, message, attribute.String(otelhelper.RunIDKey, run.ID))

	err := e.persistence.RunRepository().UpdateStatus(ctx, run.ID, models.RunStatusRunning, persistence.RunUpdate{
		Status:       models.RunStatusFailed,
		ErrorMessage: message,
		CompletedAt:  &now,
	})
	if err != nil && !persistence.IsRunStatusConflict(err) {
		return nil, fmt.Errorf("failed to mark run %s failed: %w", run.ID, err)
	}

	final, err := e.persistence.RunRepository().GetByID(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, final, events.RunFailed{
		BaseEvent: e.baseEvent(events.RunFailedEvent, final),
		Error:     message,
		Duration:  now.Sub(final.StartedAt),
	})

	return final, nil
}

func (e *Engine) publishStepFinished(ctx context.Context, run *models.Run, result *models.StepResult) {
	e.publish(ctx, run, events.StepFinished{
		BaseEvent: e.baseEvent(events.StepFinishedEvent, run),
		StepID:    result.StepID,
		Status:    result.Status,
		Attempts:  result.Attempts,
		Error:     result.Error,
	})
}

func findStepResult(run *models.Run, stepID string) *models.StepResult {
	for _, result := range run.Steps {
		if result.StepID == stepID {
			return result
		}
	}

	return nil
}

func collectOutputs(run *models.Run) map[string]map[string]any {
	outputs := make(map[string]map[string]any)

	for _, result := range run.Steps {
		if result.Status == models.StepStatusSucceeded && result.Output != nil {
			outputs[result.UID] = result.Output
		}
	}

	return outputs
}
