package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// RunRepository handles run-related database operations. Status changes go
// through a conditional UPDATE so concurrent pause/resume/cancel requests
// cannot both win.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Create inserts a run together with its step slots in one transaction.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	now := time.Now().UTC()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	variablesJSON, err := json.Marshal(run.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	runQuery := `
		INSERT INTO runs (id, playbook_id, status, environment, triggered_by, variables,
			paused_by, pause_reason, resumed_by, error_message,
			started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.ExecContext(ctx, runQuery,
		run.ID,
		run.PlaybookID,
		run.Status,
		run.Environment,
		run.TriggeredBy,
		variablesJSON,
		run.PausedBy,
		run.PauseReason,
		run.ResumedBy,
		run.ErrorMessage,
		run.StartedAt,
		run.CompletedAt,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stepQuery := `
		INSERT INTO run_steps (run_id, step_id, uid, name, status, attempts, output, error, started_at, finished_at, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for position, step := range run.Steps {
		var outputJSON []byte

		if step.Output != nil {
			outputJSON, err = json.Marshal(step.Output)
			if err != nil {
				return fmt.Errorf("failed to marshal step output: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, stepQuery,
			run.ID,
			step.StepID,
			step.UID,
			step.Name,
			step.Status,
			step.Attempts,
			outputJSON,
			step.Error,
			step.StartedAt,
			step.FinishedAt,
			position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %s for run %s: %w", step.StepID, run.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}

	return nil
}

// GetByID retrieves a run with its step results.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT
			id
		  , playbook_id
		  , status
		  , environment
		  , triggered_by
		  , variables
		  , paused_by
		  , pause_reason
		  , resumed_by
		  , error_message
		  , started_at
		  , completed_at
		  , created_at
		  , updated_at
		FROM runs
		WHERE id = $1
	`

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run %s: %w", id, err)
	}

	if err := r.loadSteps(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

// List returns paginated and filtered runs, newest first. Step results are
// loaded for each returned run.
func (r *RunRepository) List(ctx context.Context, opts persistence.ListRunsOptions) (*persistence.ListRunsResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	where := "WHERE 1=1"
	args := make([]any, 0, 4)

	if opts.PlaybookID != "" {
		args = append(args, opts.PlaybookID)
		where += fmt.Sprintf(" AND playbook_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var totalCount int64

	countQuery := "SELECT COUNT(*) FROM runs " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(`
		SELECT
			id
		  , playbook_id
		  , status
		  , environment
		  , triggered_by
		  , variables
		  , paused_by
		  , pause_reason
		  , resumed_by
		  , error_message
		  , started_at
		  , completed_at
		  , created_at
		  , updated_at
		FROM runs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	for _, run := range runs {
		if err := r.loadSteps(ctx, run); err != nil {
			return nil, err
		}
	}

	return &persistence.ListRunsResult{Runs: runs, TotalCount: totalCount}, nil
}

// UpdateStatus atomically moves a run from the expected status to the
// update's status.
func (r *RunRepository) UpdateStatus(ctx context.Context, runID string, expected models.RunStatus, update persistence.RunUpdate) error {
	query := `
		UPDATE runs SET
			status = $3,
			paused_by = CASE WHEN $4 <> '' THEN $4 ELSE paused_by END,
			pause_reason = CASE WHEN $5 <> '' THEN $5 ELSE pause_reason END,
			resumed_by = CASE WHEN $6 <> '' THEN $6 ELSE resumed_by END,
			error_message = CASE WHEN $7 <> '' THEN $7 ELSE error_message END,
			completed_at = COALESCE($8, completed_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		runID,
		expected,
		update.Status,
		update.PausedBy,
		update.PauseReason,
		update.ResumedBy,
		update.ErrorMessage,
		update.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %s status: %w", runID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool

		err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM runs WHERE id = $1)", runID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check run %s: %w", runID, err)
		}

		if !exists {
			return persistence.NewRunError("UpdateStatus", runID, persistence.ErrRunNotFound)
		}

		return persistence.NewRunError("UpdateStatus", runID, persistence.ErrRunStatusConflict)
	}

	return nil
}

// SaveStep durably upserts one step result of a run.
func (r *RunRepository) SaveStep(ctx context.Context, runID string, step *models.StepResult) error {
	var outputJSON []byte

	if step.Output != nil {
		data, err := json.Marshal(step.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal step output: %w", err)
		}

		outputJSON = data
	}

	query := `
		INSERT INTO run_steps (run_id, step_id, uid, name, status, attempts, output, error, started_at, finished_at, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM run_steps WHERE run_id = $1))
		ON CONFLICT (run_id, step_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err := r.db.ExecContext(ctx, query,
		runID,
		step.StepID,
		step.UID,
		step.Name,
		step.Status,
		step.Attempts,
		outputJSON,
		step.Error,
		step.StartedAt,
		step.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save step %s for run %s: %w", step.StepID, runID, err)
	}

	_, err = r.db.ExecContext(ctx, "UPDATE runs SET updated_at = NOW() WHERE id = $1", runID)
	if err != nil {
		return fmt.Errorf("failed to touch run %s: %w", runID, err)
	}

	return nil
}

// SaveVariables replaces the run's variable map.
func (r *RunRepository) SaveVariables(ctx context.Context, runID string, vars map[string]any) error {
	variablesJSON, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE runs SET variables = $2, updated_at = NOW() WHERE id = $1", runID, variablesJSON)
	if err != nil {
		return fmt.Errorf("failed to save variables for run %s: %w", runID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewRunError("SaveVariables", runID, persistence.ErrRunNotFound)
	}

	return nil
}

func (r *RunRepository) scanRun(row rowScanner) (*models.Run, error) {
	var (
		run           models.Run
		variablesJSON []byte
		environment   sql.NullString
		pausedBy      sql.NullString
		pauseReason   sql.NullString
		resumedBy     sql.NullString
		errorMessage  sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.PlaybookID,
		&run.Status,
		&environment,
		&run.TriggeredBy,
		&variablesJSON,
		&pausedBy,
		&pauseReason,
		&resumedBy,
		&errorMessage,
		&run.StartedAt,
		&run.CompletedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Environment = environment.String
	run.PausedBy = pausedBy.String
	run.PauseReason = pauseReason.String
	run.ResumedBy = resumedBy.String
	run.ErrorMessage = errorMessage.String

	if len(variablesJSON) > 0 {
		if err := json.Unmarshal(variablesJSON, &run.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	return &run, nil
}

func (r *RunRepository) loadSteps(ctx context.Context, run *models.Run) error {
	query := `
		SELECT
			step_id
		  , uid
		  , name
		  , status
		  , attempts
		  , output
		  , error
		  , started_at
		  , finished_at
		FROM run_steps
		WHERE run_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps for run %s: %w", run.ID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	run.Steps = make([]*models.StepResult, 0)

	for rows.Next() {
		var (
			step       models.StepResult
			outputJSON []byte
			stepError  sql.NullString
		)

		err := rows.Scan(
			&step.StepID,
			&step.UID,
			&step.Name,
			&step.Status,
			&step.Attempts,
			&outputJSON,
			&stepError,
			&step.StartedAt,
			&step.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step for run %s: %w", run.ID, err)
		}

		step.Error = stepError.String

		if len(outputJSON) > 0 {
			if err := json.Unmarshal(outputJSON, &step.Output); err != nil {
				return fmt.Errorf("failed to unmarshal step output: %w", err)
			}
		}

		run.Steps = append(run.Steps, &step)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating steps for run %s: %w", run.ID, err)
	}

	return nil
}
