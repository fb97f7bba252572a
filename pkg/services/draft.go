package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quorumlabs/warden/pkg/canonical"
	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/patch"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// Draft provides draft storage and whitelist-based patch application.
type Draft struct {
	persistence persistence.Persistence
}

// NewDraft creates a new draft service.
func NewDraft(persistence persistence.Persistence) *Draft {
	return &Draft{persistence: persistence}
}

// Create stores a new draft and stamps its content hash.
func (d *Draft) Create(ctx context.Context, draft *models.Draft) (*models.Draft, error) {
	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}

	hash, err := patch.ContentHash(draft)
	if err != nil {
		return nil, fmt.Errorf("failed to hash draft: %w", err)
	}

	draft.ContentHash = hash

	if err := d.persistence.DraftRepository().Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	return draft, nil
}

// FetchByID returns a draft by its ID.
func (d *Draft) FetchByID(ctx context.Context, id string) (*models.Draft, error) {
	if id == "" {
		return nil, ErrDraftIDRequired
	}

	return d.persistence.DraftRepository().GetByID(ctx, id)
}

// ApplyPatch applies a whitelist-checked patch to a stored draft and
// persists the result. When expectedHash is non-empty it must match the
// stored draft's content hash, which rejects patches computed against a
// stale copy.
func (d *Draft) ApplyPatch(ctx context.Context, draftID string, p patch.Patch, expectedHash string) (*patch.Result, error) {
	if draftID == "" {
		return nil, ErrDraftIDRequired
	}

	if len(p) == 0 {
		return nil, ErrEmptyPatch
	}

	draft, err := d.persistence.DraftRepository().GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}

	if expectedHash != "" && draft.ContentHash != expectedHash {
		return nil, fmt.Errorf("draft %s: %w", draftID, ErrDraftHashMismatch)
	}

	result, err := patch.Apply(draft, p)
	if err != nil {
		return nil, err
	}

	if err := d.persistence.DraftRepository().Save(ctx, result.Draft); err != nil {
		return nil, fmt.Errorf("failed to save patched draft: %w", err)
	}

	return result, nil
}

// PatchHash returns the canonical hash of a patch document without applying
// it, so callers can correlate audit entries.
func (d *Draft) PatchHash(p patch.Patch) (string, error) {
	if len(p) == 0 {
		return "", ErrEmptyPatch
	}

	return canonical.Hash(map[string]any(p))
}
