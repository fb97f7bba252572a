// Package persistence provides the data storage abstraction consumed by the
// execution engine and the policy evaluator.
package persistence

import (
	"context"
	"time"

	"github.com/quorumlabs/warden/pkg/models"
)

type Persistence interface {
	PlaybookRepository() PlaybookRepository
	RunRepository() RunRepository
	ExecutionRecordRepository() ExecutionRecordRepository
	DraftRepository() DraftRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type PlaybookRepository interface {
	Save(ctx context.Context, playbook *models.Playbook) error
	GetByID(ctx context.Context, id string) (*models.Playbook, error)
	List(ctx context.Context) ([]*models.Playbook, error)
	Delete(ctx context.Context, id string) error
}

// RunUpdate carries the fields an atomic run status change may set alongside
// the new status.
type RunUpdate struct {
	Status       models.RunStatus
	PausedBy     string
	PauseReason  string
	ResumedBy    string
	ErrorMessage string
	CompletedAt  *time.Time
}

// ListRunsOptions filters and pages run listings.
type ListRunsOptions struct {
	PlaybookID string
	Status     *models.RunStatus
	Limit      int
	Offset     int
}

// ListRunsResult is one page of runs.
type ListRunsResult struct {
	Runs       []*models.Run
	TotalCount int64
}

type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, opts ListRunsOptions) (*ListRunsResult, error)

	// UpdateStatus atomically moves a run from the expected status to the
	// update's status. It returns ErrRunStatusConflict when the run is no
	// longer in the expected status, which is what keeps concurrent
	// pause/resume/cancel requests from both winning.
	UpdateStatus(ctx context.Context, runID string, expected models.RunStatus, update RunUpdate) error

	// SaveStep durably upserts one step result of a run. The engine calls
	// this before advancing, so a crash mid-run always leaves the last
	// recorded state consistent and resumable.
	SaveStep(ctx context.Context, runID string, step *models.StepResult) error

	// SaveVariables replaces the run's variable map after a step publishes
	// new values for downstream steps.
	SaveVariables(ctx context.Context, runID string, vars map[string]any) error
}

type ExecutionRecordRepository interface {
	// Insert appends an audit row with insert-if-absent semantics keyed by
	// request ID. A duplicate arrival returns ErrDuplicateExecutionRecord;
	// the first writer wins and the loser must treat the action as already
	// processed, not as an error.
	Insert(ctx context.Context, record *models.ExecutionRecord) error

	// CountAllowedInWindow counts prior allowed executions for the
	// idempotency key hash since the window start.
	CountAllowedInWindow(ctx context.Context, actionType, keyHash string, since time.Time) (int, error)

	// OldestAllowedInWindow returns the creation time of the earliest
	// allowed execution inside the window, used to compute nextAllowedAt.
	OldestAllowedInWindow(ctx context.Context, actionType, keyHash string, since time.Time) (*time.Time, error)

	// LastAllowedAt returns the creation time of the most recent allowed
	// execution for the key hash, or nil when none exists.
	LastAllowedAt(ctx context.Context, actionType, keyHash string) (*time.Time, error)

	ListByKeyHash(ctx context.Context, keyHash string) ([]*models.ExecutionRecord, error)
}

type DraftRepository interface {
	Save(ctx context.Context, draft *models.Draft) error
	GetByID(ctx context.Context, id string) (*models.Draft, error)
}
