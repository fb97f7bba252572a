package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
)

// DraftRepository handles draft file operations.
type DraftRepository struct {
	root string
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(root string) *DraftRepository {
	return &DraftRepository{root: root}
}

func (dr *DraftRepository) dir() string {
	return path.Join(dr.root, "drafts")
}

// Save writes a draft to the file system.
func (dr *DraftRepository) Save(_ context.Context, draft *models.Draft) error {
	err := os.MkdirAll(dr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create drafts directory: %w", err)
	}

	now := time.Now().UTC()
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}

	draft.UpdatedAt = now

	data, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal draft %s: %w", draft.ID, err)
	}

	filePath := path.Join(dr.dir(), sanitizeID(draft.ID)+".json")

	return os.WriteFile(filePath, data, 0600)
}

// GetByID retrieves a draft by its ID.
func (dr *DraftRepository) GetByID(_ context.Context, id string) (*models.Draft, error) {
	filePath := filepath.Clean(path.Join(dr.dir(), sanitizeID(id)+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrDraftNotFound
		}

		return nil, fmt.Errorf("failed to fetch draft %s: %w", id, err)
	}

	var draft models.Draft

	err = json.Unmarshal(body, &draft)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft %s: %w", id, err)
	}

	return &draft, nil
}
