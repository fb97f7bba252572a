package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// ExecutionRecordRepository handles audit record file operations. Records
// are append-only; the file name carries the request ID so O_EXCL gives the
// insert-if-absent guarantee.
type ExecutionRecordRepository struct {
	root string
}

// NewExecutionRecordRepository creates a new execution record repository.
func NewExecutionRecordRepository(root string) *ExecutionRecordRepository {
	return &ExecutionRecordRepository{root: root}
}

func (er *ExecutionRecordRepository) dir() string {
	return path.Join(er.root, "execution_records")
}

// Insert appends an audit row. The first writer for a request ID wins;
// later arrivals get ErrDuplicateExecutionRecord.
func (er *ExecutionRecordRepository) Insert(_ context.Context, record *models.ExecutionRecord) error {
	err := os.MkdirAll(er.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create execution records directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution record %s: %w", record.ID, err)
	}

	filePath := filepath.Clean(path.Join(er.dir(), sanitizeID(record.RequestID)+".json"))

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return &persistence.RecordError{
				Op:        "Insert",
				RequestID: record.RequestID,
				KeyHash:   record.IdempotencyKeyHash,
				Err:       persistence.ErrDuplicateExecutionRecord,
			}
		}

		return fmt.Errorf("failed to create execution record %s: %w", record.RequestID, err)
	}

	defer func() {
		_ = file.Close()
	}()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write execution record %s: %w", record.RequestID, err)
	}

	return nil
}

func (er *ExecutionRecordRepository) all() ([]*models.ExecutionRecord, error) {
	root := os.DirFS(er.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution record files: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		body, err := os.ReadFile(filepath.Clean(path.Join(er.dir(), file)))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, fmt.Errorf("failed to read execution record %s: %w", file, err)
		}

		var record models.ExecutionRecord

		if err := json.Unmarshal(body, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution record %s: %w", file, err)
		}

		records = append(records, &record)
	}

	return records, nil
}

// CountAllowedInWindow counts prior allowed executions for the idempotency
// key hash since the window start.
func (er *ExecutionRecordRepository) CountAllowedInWindow(_ context.Context, actionType, keyHash string, since time.Time) (int, error) {
	records, err := er.all()
	if err != nil {
		return 0, err
	}

	count := 0

	for _, record := range records {
		if record.ActionType == actionType &&
			record.IdempotencyKeyHash == keyHash &&
			record.Decision == models.DecisionAllowed &&
			!record.CreatedAt.Before(since) {
			count++
		}
	}

	return count, nil
}

// OldestAllowedInWindow returns the creation time of the earliest allowed
// execution inside the window, or nil when none exists.
func (er *ExecutionRecordRepository) OldestAllowedInWindow(_ context.Context, actionType, keyHash string, since time.Time) (*time.Time, error) {
	records, err := er.all()
	if err != nil {
		return nil, err
	}

	var oldest *time.Time

	for _, record := range records {
		if record.ActionType != actionType ||
			record.IdempotencyKeyHash != keyHash ||
			record.Decision != models.DecisionAllowed ||
			record.CreatedAt.Before(since) {
			continue
		}

		if oldest == nil || record.CreatedAt.Before(*oldest) {
			createdAt := record.CreatedAt
			oldest = &createdAt
		}
	}

	return oldest, nil
}

// LastAllowedAt returns the creation time of the most recent allowed
// execution for the key hash, or nil when none exists.
func (er *ExecutionRecordRepository) LastAllowedAt(_ context.Context, actionType, keyHash string) (*time.Time, error) {
	records, err := er.all()
	if err != nil {
		return nil, err
	}

	var last *time.Time

	for _, record := range records {
		if record.ActionType != actionType ||
			record.IdempotencyKeyHash != keyHash ||
			record.Decision != models.DecisionAllowed {
			continue
		}

		if last == nil || record.CreatedAt.After(*last) {
			createdAt := record.CreatedAt
			last = &createdAt
		}
	}

	return last, nil
}

// ListByKeyHash returns all audit rows for the idempotency key hash, newest
// first.
func (er *ExecutionRecordRepository) ListByKeyHash(_ context.Context, keyHash string) ([]*models.ExecutionRecord, error) {
	records, err := er.all()
	if err != nil {
		return nil, err
	}

	matches := make([]*models.ExecutionRecord, 0)

	for _, record := range records {
		if record.IdempotencyKeyHash == keyHash {
			matches = append(matches, record)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	return matches, nil
}
