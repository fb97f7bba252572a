// Package engine drives resumable multi-step playbook runs. Steps execute
// strictly sequentially within a run; every status change is durably written
// before the engine proceeds, so a crash mid-run leaves a consistent,
// resumable record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/quorumlabs/warden/pkg/eventbus"
	"github.com/quorumlabs/warden/pkg/events"
	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
	"github.com/quorumlabs/warden/pkg/policy"
	"github.com/quorumlabs/warden/pkg/registry"
	"github.com/quorumlabs/warden/pkg/statemachine"
)

var (
	// ErrPlaybookHasNoSteps indicates a playbook that cannot produce a run.
	ErrPlaybookHasNoSteps = errors.New("playbook has no steps")

	// ErrRunNotRunning indicates a pause request against a run that is not
	// currently running. Pausing a non-running run is an error, not a no-op.
	ErrRunNotRunning = errors.New("run is not running")

	// ErrRunNotPaused indicates a resume request against a run that is not
	// paused. Double resumes are rejected, never silently accepted.
	ErrRunNotPaused = errors.New("run is not paused")

	// ErrRunTerminal indicates a lifecycle request against a completed,
	// failed, or cancelled run. Cancelled runs are never resumable.
	ErrRunTerminal = errors.New("run is in a terminal status")

	// ErrMissingActor indicates a pause/resume request without the required
	// actor identity.
	ErrMissingActor = errors.New("actor identity is required")

	// ErrRunTimeout indicates the run exceeded its playbook's wall-clock
	// timeout.
	ErrRunTimeout = errors.New("run timeout exceeded")
)

// Engine orchestrates playbook runs. Before a step with a declared lifecycle
// transition may run, the engine checks the transition against the state
// machine; before a governed step executes, it consults the policy
// evaluator. External effects are delegated to registered actions.
type Engine struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	evaluator    *policy.Evaluator
	stateMachine *statemachine.Spec
	eventBus     eventbus.EventPublisher
	tracer       trace.Tracer
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's clock for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTracer overrides the default tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithStateMachine provides the lifecycle state machine the engine validates
// step transitions against. Without one, any step declaring a transition
// fails closed.
func WithStateMachine(spec *statemachine.Spec) Option {
	return func(e *Engine) {
		e.stateMachine = spec
	}
}

func NewEngine(
	logger *slog.Logger,
	persist persistence.Persistence,
	reg *registry.Registry,
	evaluator *policy.Evaluator,
	eventBus eventbus.EventPublisher,
	opts ...Option,
) *Engine {
	engine := &Engine{
		logger:      logger,
		persistence: persist,
		registry:    reg,
		evaluator:   evaluator,
		eventBus:    eventBus,
		tracer:      otel.Tracer("warden/engine"),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// StartOptions parameterize one run of a playbook.
type StartOptions struct {
	Environment string
	TriggeredBy string         `validate:"required"`
	Variables   map[string]any
}

// StartRun creates and executes a run of the playbook. Execution is
// synchronous and request-driven: the call returns when the run reaches a
// terminal status or pauses.
func (e *Engine) StartRun(ctx context.Context, playbookID string, opts StartOptions) (*models.Run, error) {
	playbook, err := e.persistence.PlaybookRepository().GetByID(ctx, playbookID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playbook %s: %w", playbookID, err)
	}

	if len(playbook.Steps) == 0 {
		return nil, fmt.Errorf("playbook %s: %w", playbookID, ErrPlaybookHasNoSteps)
	}

	now := e.now().UTC()

	variables := make(map[string]any, len(playbook.Variables)+len(opts.Variables))
	for k, v := range playbook.Variables {
		variables[k] = v
	}

	for k, v := range opts.Variables {
		variables[k] = v
	}

	run := &models.Run{
		ID:          uuid.New().String(),
		PlaybookID:  playbook.ID,
		Status:      models.RunStatusPending,
		Environment: opts.Environment,
		TriggeredBy: opts.TriggeredBy,
		Variables:   variables,
		Steps:       make([]*models.StepResult, 0, len(playbook.Steps)),
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, step := range playbook.Steps {
		run.Steps = append(run.Steps, &models.StepResult{
			StepID: step.ID,
			UID:    step.UID,
			Name:   step.Name,
			Status: models.StepStatusPending,
		})
	}

	runRepo := e.persistence.RunRepository()

	if err := runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	if err := runRepo.UpdateStatus(ctx, run.ID, models.RunStatusPending, persistence.RunUpdate{
		Status: models.RunStatusRunning,
	}); err != nil {
		return nil, fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}

	run.Status = models.RunStatusRunning

	e.publish(ctx, run, events.RunStarted{
		BaseEvent:   e.baseEvent(events.RunStartedEvent, run),
		TriggeredBy: run.TriggeredBy,
		Environment: run.Environment,
	})

	return e.executeSteps(ctx, playbook, run, false)
}

// PauseRun requests a cooperative pause of a running run. In-flight external
// calls are not preempted; only future steps stop scheduling.
func (e *Engine) PauseRun(ctx context.Context, runID, pausedBy, reason string) (*models.Run, error) {
	if pausedBy == "" {
		return nil, fmt.Errorf("pause run %s: %w", runID, ErrMissingActor)
	}

	run, err := e.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunStatusRunning {
		return nil, fmt.Errorf("cannot pause run %s in status %q: %w", runID, run.Status, ErrRunNotRunning)
	}

	err = e.persistence.RunRepository().UpdateStatus(ctx, runID, models.RunStatusRunning, persistence.RunUpdate{
		Status:      models.RunStatusPaused,
		PausedBy:    pausedBy,
		PauseReason: reason,
	})
	if err != nil {
		if persistence.IsRunStatusConflict(err) {
			return nil, fmt.Errorf("cannot pause run %s: %w", runID, ErrRunNotRunning)
		}

		return nil, fmt.Errorf("failed to pause run %s: %w", runID, err)
	}

	run, err = e.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, run, events.RunPaused{
		BaseEvent: e.baseEvent(events.RunPausedEvent, run),
		PausedBy:  pausedBy,
		Reason:    reason,
	})

	return run, nil
}

// ResumeRun moves a paused run back to running and continues executing its
// remaining steps. The resuming actor's identity doubles as the human
// approval for governed steps that were blocked on it.
func (e *Engine) ResumeRun(ctx context.Context, runID, resumedBy string) (*models.Run, error) {
	if resumedBy == "" {
		return nil, fmt.Errorf("resume run %s: %w", runID, ErrMissingActor)
	}

	run, err := e.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunStatusPaused {
		if run.Status.IsTerminal() {
			return nil, fmt.Errorf("cannot resume run %s in status %q: %w", runID, run.Status, ErrRunTerminal)
		}

		return nil, fmt.Errorf("cannot resume run %s in status %q: %w", runID, run.Status, ErrRunNotPaused)
	}

	err = e.persistence.RunRepository().UpdateStatus(ctx, runID, models.RunStatusPaused, persistence.RunUpdate{
		Status:    models.RunStatusRunning,
		ResumedBy: resumedBy,
	})
	if err != nil {
		if persistence.IsRunStatusConflict(err) {
			return nil, fmt.Errorf("cannot resume run %s: %w", runID, ErrRunNotPaused)
		}

		return nil, fmt.Errorf("failed to resume run %s: %w", runID, err)
	}

	run, err = e.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, run, events.RunResumed{
		BaseEvent: e.baseEvent(events.RunResumedEvent, run),
		ResumedBy: resumedBy,
	})

	playbook, err := e.persistence.PlaybookRepository().GetByID(ctx, run.PlaybookID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playbook %s: %w", run.PlaybookID, err)
	}

	return e.executeSteps(ctx, playbook, run, true)
}

// CancelRun stops scheduling further steps. Already-recorded step results
// are never retroactively altered, and a cancelled run cannot be resumed.
func (e *Engine) CancelRun(ctx context.Context, runID, cancelledBy string) (*models.Run, error) {
	run, err := e.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot cancel run %s in status %q: %w", runID, run.Status, ErrRunTerminal)
	}

	now := e.now().UTC()

	err = e.persistence.RunRepository().UpdateStatus(ctx, runID, run.Status, persistence.RunUpdate{
		Status:      models.RunStatusCancelled,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel run %s: %w", runID, err)
	}

	run, err = e.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, run, events.RunCancelled{
		BaseEvent:   e.baseEvent(events.RunCancelledEvent, run),
		CancelledBy: cancelledBy,
	})

	return run, nil
}

// GetRun returns the current state of a run.
func (e *Engine) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	return e.persistence.RunRepository().GetByID(ctx, runID)
}

func (e *Engine) baseEvent(eventType events.EventType, run *models.Run) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  e.now().UTC(),
		RunID:      run.ID,
		PlaybookID: run.PlaybookID,
	}
}

func (e *Engine) publish(ctx context.Context, run *models.Run, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, run.ID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish run event",
			"run_id", run.ID, "event_type", string(event.GetType()), "error", err)
	}
}
