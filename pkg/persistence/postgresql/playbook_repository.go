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

// PlaybookRepository handles playbook-related database operations.
type PlaybookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPlaybookRepository creates a new playbook repository.
func NewPlaybookRepository(db *sql.DB, logger *slog.Logger) *PlaybookRepository {
	return &PlaybookRepository{db: db, logger: logger}
}

// Save upserts a playbook.
func (r *PlaybookRepository) Save(ctx context.Context, playbook *models.Playbook) error {
	now := time.Now().UTC()

	if playbook.CreatedAt.IsZero() {
		playbook.CreatedAt = now
	}

	playbook.UpdatedAt = now

	stepsJSON, err := json.Marshal(playbook.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	variablesJSON, err := json.Marshal(playbook.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	metadataJSON, err := json.Marshal(playbook.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO playbooks (id, name, description, steps, variables, timeout_seconds, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			steps = EXCLUDED.steps,
			variables = EXCLUDED.variables,
			timeout_seconds = EXCLUDED.timeout_seconds,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		playbook.ID,
		playbook.Name,
		playbook.Description,
		stepsJSON,
		variablesJSON,
		playbook.TimeoutSeconds,
		metadataJSON,
		playbook.CreatedAt,
		playbook.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save playbook %s: %w", playbook.ID, err)
	}

	return nil
}

// GetByID retrieves a playbook by its ID.
func (r *PlaybookRepository) GetByID(ctx context.Context, id string) (*models.Playbook, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , steps
		  , variables
		  , timeout_seconds
		  , metadata
		  , created_at
		  , updated_at
		FROM playbooks
		WHERE id = $1
	`

	playbook, err := r.scanPlaybook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrPlaybookNotFound
		}

		return nil, fmt.Errorf("failed to scan playbook %s: %w", id, err)
	}

	return playbook, nil
}

// List returns all playbooks ordered by name.
func (r *PlaybookRepository) List(ctx context.Context) ([]*models.Playbook, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , steps
		  , variables
		  , timeout_seconds
		  , metadata
		  , created_at
		  , updated_at
		FROM playbooks
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query playbooks: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	playbooks := make([]*models.Playbook, 0)

	for rows.Next() {
		playbook, err := r.scanPlaybook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playbook: %w", err)
		}

		playbooks = append(playbooks, playbook)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playbooks: %w", err)
	}

	return playbooks, nil
}

// Delete removes a playbook. Deleting an absent playbook is a no-op.
func (r *PlaybookRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM playbooks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete playbook %s: %w", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PlaybookRepository) scanPlaybook(row rowScanner) (*models.Playbook, error) {
	var (
		playbook      models.Playbook
		stepsJSON     []byte
		variablesJSON []byte
		metadataJSON  []byte
	)

	err := row.Scan(
		&playbook.ID,
		&playbook.Name,
		&playbook.Description,
		&stepsJSON,
		&variablesJSON,
		&playbook.TimeoutSeconds,
		&metadataJSON,
		&playbook.CreatedAt,
		&playbook.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &playbook.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	if len(variablesJSON) > 0 {
		if err := json.Unmarshal(variablesJSON, &playbook.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &playbook.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &playbook, nil
}
