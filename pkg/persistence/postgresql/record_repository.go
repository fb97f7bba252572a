package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// ExecutionRecordRepository handles audit record database operations. The
// table is append-only; the unique request_id constraint carries the
// insert-if-absent guarantee.
type ExecutionRecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRecordRepository creates a new execution record repository.
func NewExecutionRecordRepository(db *sql.DB, logger *slog.Logger) *ExecutionRecordRepository {
	return &ExecutionRecordRepository{db: db, logger: logger}
}

// Insert appends an audit row. The first writer for a request ID wins;
// later arrivals get ErrDuplicateExecutionRecord.
func (r *ExecutionRecordRepository) Insert(ctx context.Context, record *models.ExecutionRecord) error {
	enforcementJSON, err := json.Marshal(record.Enforcement)
	if err != nil {
		return fmt.Errorf("failed to marshal enforcement snapshot: %w", err)
	}

	query := `
		INSERT INTO execution_records (id, request_id, action_type, target_type, target_id,
			decision, reason, idempotency_key_hash, policy_name, enforcement, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (request_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.RequestID,
		record.ActionType,
		record.TargetType,
		record.TargetID,
		record.Decision,
		record.Reason,
		record.IdempotencyKeyHash,
		record.PolicyName,
		enforcementJSON,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution record %s: %w", record.RequestID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &persistence.RecordError{
			Op:        "Insert",
			RequestID: record.RequestID,
			KeyHash:   record.IdempotencyKeyHash,
			Err:       persistence.ErrDuplicateExecutionRecord,
		}
	}

	return nil
}

// CountAllowedInWindow counts prior allowed executions for the idempotency
// key hash since the window start.
func (r *ExecutionRecordRepository) CountAllowedInWindow(ctx context.Context, actionType, keyHash string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM execution_records
		WHERE action_type = $1 AND idempotency_key_hash = $2 AND decision = 'allowed' AND created_at >= $3
	`

	var count int

	err := r.db.QueryRowContext(ctx, query, actionType, keyHash, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions in window: %w", err)
	}

	return count, nil
}

// OldestAllowedInWindow returns the creation time of the earliest allowed
// execution inside the window, or nil when none exists.
func (r *ExecutionRecordRepository) OldestAllowedInWindow(ctx context.Context, actionType, keyHash string, since time.Time) (*time.Time, error) {
	query := `
		SELECT MIN(created_at)
		FROM execution_records
		WHERE action_type = $1 AND idempotency_key_hash = $2 AND decision = 'allowed' AND created_at >= $3
	`

	var oldest sql.NullTime

	err := r.db.QueryRowContext(ctx, query, actionType, keyHash, since).Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("failed to query oldest execution in window: %w", err)
	}

	if !oldest.Valid {
		return nil, nil
	}

	return &oldest.Time, nil
}

// LastAllowedAt returns the creation time of the most recent allowed
// execution for the key hash, or nil when none exists.
func (r *ExecutionRecordRepository) LastAllowedAt(ctx context.Context, actionType, keyHash string) (*time.Time, error) {
	query := `
		SELECT MAX(created_at)
		FROM execution_records
		WHERE action_type = $1 AND idempotency_key_hash = $2 AND decision = 'allowed'
	`

	var last sql.NullTime

	err := r.db.QueryRowContext(ctx, query, actionType, keyHash).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to query last execution: %w", err)
	}

	if !last.Valid {
		return nil, nil
	}

	return &last.Time, nil
}

// ListByKeyHash returns all audit rows for the idempotency key hash, newest
// first.
func (r *ExecutionRecordRepository) ListByKeyHash(ctx context.Context, keyHash string) ([]*models.ExecutionRecord, error) {
	query := `
		SELECT
			id
		  , request_id
		  , action_type
		  , target_type
		  , target_id
		  , decision
		  , reason
		  , idempotency_key_hash
		  , policy_name
		  , enforcement
		  , created_at
		FROM execution_records
		WHERE idempotency_key_hash = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, keyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		var (
			record          models.ExecutionRecord
			targetType      sql.NullString
			targetID        sql.NullString
			keyHashValue    sql.NullString
			policyName      sql.NullString
			enforcementJSON []byte
		)

		err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.ActionType,
			&targetType,
			&targetID,
			&record.Decision,
			&record.Reason,
			&keyHashValue,
			&policyName,
			&enforcementJSON,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}

		record.TargetType = targetType.String
		record.TargetID = targetID.String
		record.IdempotencyKeyHash = keyHashValue.String
		record.PolicyName = policyName.String

		if len(enforcementJSON) > 0 {
			if err := json.Unmarshal(enforcementJSON, &record.Enforcement); err != nil {
				return nil, fmt.Errorf("failed to unmarshal enforcement snapshot: %w", err)
			}
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution records: %w", err)
	}

	return records, nil
}
