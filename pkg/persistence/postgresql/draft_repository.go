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

// DraftRepository handles draft database operations.
type DraftRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(db *sql.DB, logger *slog.Logger) *DraftRepository {
	return &DraftRepository{db: db, logger: logger}
}

// Save upserts a draft.
func (r *DraftRepository) Save(ctx context.Context, draft *models.Draft) error {
	now := time.Now().UTC()

	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}

	draft.UpdatedAt = now

	labelsJSON, err := json.Marshal(draft.Labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	dependsOnJSON, err := json.Marshal(draft.DependsOn)
	if err != nil {
		return fmt.Errorf("failed to marshal depends_on: %w", err)
	}

	criteriaJSON, err := json.Marshal(draft.AcceptanceCriteria)
	if err != nil {
		return fmt.Errorf("failed to marshal acceptance criteria: %w", err)
	}

	query := `
		INSERT INTO drafts (id, issue_id, title, summary, body, priority, assignee,
			labels, depends_on, acceptance_criteria, content_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			issue_id = EXCLUDED.issue_id,
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			body = EXCLUDED.body,
			priority = EXCLUDED.priority,
			assignee = EXCLUDED.assignee,
			labels = EXCLUDED.labels,
			depends_on = EXCLUDED.depends_on,
			acceptance_criteria = EXCLUDED.acceptance_criteria,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		draft.ID,
		draft.IssueID,
		draft.Title,
		draft.Summary,
		draft.Body,
		draft.Priority,
		draft.Assignee,
		labelsJSON,
		dependsOnJSON,
		criteriaJSON,
		draft.ContentHash,
		draft.CreatedAt,
		draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft %s: %w", draft.ID, err)
	}

	return nil
}

// GetByID retrieves a draft by its ID.
func (r *DraftRepository) GetByID(ctx context.Context, id string) (*models.Draft, error) {
	query := `
		SELECT
			id
		  , issue_id
		  , title
		  , summary
		  , body
		  , priority
		  , assignee
		  , labels
		  , depends_on
		  , acceptance_criteria
		  , content_hash
		  , created_at
		  , updated_at
		FROM drafts
		WHERE id = $1
	`

	var (
		draft         models.Draft
		issueID       sql.NullString
		assignee      sql.NullString
		contentHash   sql.NullString
		labelsJSON    []byte
		dependsOnJSON []byte
		criteriaJSON  []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&draft.ID,
		&issueID,
		&draft.Title,
		&draft.Summary,
		&draft.Body,
		&draft.Priority,
		&assignee,
		&labelsJSON,
		&dependsOnJSON,
		&criteriaJSON,
		&contentHash,
		&draft.CreatedAt,
		&draft.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDraftNotFound
		}

		return nil, fmt.Errorf("failed to scan draft %s: %w", id, err)
	}

	draft.IssueID = issueID.String
	draft.Assignee = assignee.String
	draft.ContentHash = contentHash.String

	if len(labelsJSON) > 0 {
		if err := json.Unmarshal(labelsJSON, &draft.Labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
		}
	}

	if len(dependsOnJSON) > 0 {
		if err := json.Unmarshal(dependsOnJSON, &draft.DependsOn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal depends_on: %w", err)
		}
	}

	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &draft.AcceptanceCriteria); err != nil {
			return nil, fmt.Errorf("failed to unmarshal acceptance criteria: %w", err)
		}
	}

	return &draft, nil
}
