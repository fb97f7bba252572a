package services

import (
	"context"
	"fmt"

	"github.com/quorumlabs/warden/pkg/engine"
	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// Run provides run lifecycle operations on top of the execution engine.
type Run struct {
	engine      *engine.Engine
	persistence persistence.Persistence
}

// NewRun creates a new run service.
func NewRun(eng *engine.Engine, persistence persistence.Persistence) *Run {
	return &Run{
		engine:      eng,
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (r *Run) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := r.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// StartRunRequest parameterizes one run of a playbook.
type StartRunRequest struct {
	PlaybookID  string         `json:"playbook_id"`
	Environment string         `json:"environment"`
	TriggeredBy string         `json:"triggered_by"`
	Variables   map[string]any `json:"variables"`
}

// Start creates and executes a run. The call returns when the run reaches a
// terminal status or pauses.
func (r *Run) Start(ctx context.Context, req StartRunRequest) (*models.Run, error) {
	if req.TriggeredBy == "" {
		return nil, ErrTriggeredByRequired
	}

	return r.engine.StartRun(ctx, req.PlaybookID, engine.StartOptions{
		Environment: req.Environment,
		TriggeredBy: req.TriggeredBy,
		Variables:   req.Variables,
	})
}

// Pause requests a cooperative pause of a running run.
func (r *Run) Pause(ctx context.Context, runID, pausedBy, reason string) (*models.Run, error) {
	if pausedBy == "" {
		return nil, ErrActorRequired
	}

	return r.engine.PauseRun(ctx, runID, pausedBy, reason)
}

// Resume moves a paused run back to running and continues execution.
func (r *Run) Resume(ctx context.Context, runID, resumedBy string) (*models.Run, error) {
	if resumedBy == "" {
		return nil, ErrActorRequired
	}

	return r.engine.ResumeRun(ctx, runID, resumedBy)
}

// Cancel stops scheduling further steps of a run.
func (r *Run) Cancel(ctx context.Context, runID, cancelledBy string) (*models.Run, error) {
	return r.engine.CancelRun(ctx, runID, cancelledBy)
}

// FetchByID returns the current state of a run.
func (r *Run) FetchByID(ctx context.Context, runID string) (*models.Run, error) {
	return r.engine.GetRun(ctx, runID)
}

// ListRunsRequest contains options for listing runs.
type ListRunsRequest struct {
	PlaybookID string
	Status     string

	Limit  int
	Offset int
}

// ListRunsResponse contains the result of listing runs.
type ListRunsResponse struct {
	Runs        []*models.Run `json:"runs"`
	TotalCount  int64         `json:"total_count"`
	HasNextPage bool          `json:"has_next_page"`
}

// List retrieves runs with filtering and pagination, newest first.
func (r *Run) List(ctx context.Context, req ListRunsRequest) (*ListRunsResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	opts := persistence.ListRunsOptions{
		PlaybookID: req.PlaybookID,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}

	if req.Status != "" {
		status := models.RunStatus(req.Status)

		switch status {
		case models.RunStatusPending, models.RunStatusRunning, models.RunStatusPaused,
			models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidRunStatus, req.Status)
		}

		opts.Status = &status
	}

	result, err := r.persistence.RunRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return &ListRunsResponse{
		Runs:        result.Runs,
		TotalCount:  result.TotalCount,
		HasNextPage: int64(req.Offset+len(result.Runs)) < result.TotalCount,
	}, nil
}
