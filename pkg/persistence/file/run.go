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
	"sync"
	"time"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// RunRepository handles run-related file operations. A mutex serializes
// read-modify-write cycles so UpdateStatus keeps its compare-and-set
// guarantee within a single process.
type RunRepository struct {
	root string
	mu   sync.Mutex
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) dir() string {
	return path.Join(rr.root, "runs")
}

func (rr *RunRepository) filePath(runID string) string {
	return filepath.Clean(path.Join(rr.dir(), sanitizeID(runID)+".json"))
}

func (rr *RunRepository) read(runID string) (*models.Run, error) {
	body, err := os.ReadFile(rr.filePath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("GetByID", runID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to fetch run %s: %w", runID, err)
	}

	var run models.Run

	err = json.Unmarshal(body, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}

	return &run, nil
}

func (rr *RunRepository) write(run *models.Run) error {
	err := os.MkdirAll(rr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	run.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	return os.WriteFile(rr.filePath(run.ID), data, 0600)
}

// Create writes a new run to the file system.
func (rr *RunRepository) Create(_ context.Context, run *models.Run) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.write(run)
}

// GetByID retrieves a run by its ID.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.read(id)
}

// List returns paginated and filtered runs, newest first.
func (rr *RunRepository) List(ctx context.Context, opts persistence.ListRunsOptions) (*persistence.ListRunsResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	root := os.DirFS(rr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	filtered := make([]*models.Run, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		run, err := rr.read(file[:len(file)-5])
		if err != nil {
			if persistence.IsRunNotFound(err) {
				continue
			}

			return nil, err
		}

		if opts.PlaybookID != "" && run.PlaybookID != opts.PlaybookID {
			continue
		}

		if opts.Status != nil && run.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, run)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	totalCount := int64(len(filtered))

	startIdx := opts.Offset
	if startIdx >= len(filtered) {
		return &persistence.ListRunsResult{
			Runs:       make([]*models.Run, 0),
			TotalCount: totalCount,
		}, nil
	}

	endIdx := opts.Offset + opts.Limit
	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.ListRunsResult{
		Runs:       filtered[startIdx:endIdx],
		TotalCount: totalCount,
	}, nil
}

// UpdateStatus atomically moves a run from the expected status to the
// update's status.
func (rr *RunRepository) UpdateStatus(_ context.Context, runID string, expected models.RunStatus, update persistence.RunUpdate) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	run, err := rr.read(runID)
	if err != nil {
		return err
	}

	if run.Status != expected {
		return persistence.NewRunError("UpdateStatus", runID, persistence.ErrRunStatusConflict)
	}

	run.Status = update.Status

	if update.PausedBy != "" {
		run.PausedBy = update.PausedBy
	}

	if update.PauseReason != "" {
		run.PauseReason = update.PauseReason
	}

	if update.ResumedBy != "" {
		run.ResumedBy = update.ResumedBy
	}

	if update.ErrorMessage != "" {
		run.ErrorMessage = update.ErrorMessage
	}

	if update.CompletedAt != nil {
		run.CompletedAt = update.CompletedAt
	}

	return rr.write(run)
}

// SaveStep durably upserts one step result of a run.
func (rr *RunRepository) SaveStep(_ context.Context, runID string, step *models.StepResult) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	run, err := rr.read(runID)
	if err != nil {
		return err
	}

	for i, existing := range run.Steps {
		if existing.StepID == step.StepID {
			run.Steps[i] = step

			return rr.write(run)
		}
	}

	run.Steps = append(run.Steps, step)

	return rr.write(run)
}

// SaveVariables replaces the run's variable map.
func (rr *RunRepository) SaveVariables(_ context.Context, runID string, vars map[string]any) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	run, err := rr.read(runID)
	if err != nil {
		return err
	}

	run.Variables = vars

	return rr.write(run)
}
