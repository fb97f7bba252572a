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

// PlaybookRepository handles playbook-related file operations.
type PlaybookRepository struct {
	root string
}

// NewPlaybookRepository creates a new playbook repository.
func NewPlaybookRepository(root string) *PlaybookRepository {
	return &PlaybookRepository{root: root}
}

func (pr *PlaybookRepository) dir() string {
	return path.Join(pr.root, "playbooks")
}

// Save writes a playbook to the file system.
func (pr *PlaybookRepository) Save(_ context.Context, playbook *models.Playbook) error {
	err := os.MkdirAll(pr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create playbooks directory: %w", err)
	}

	now := time.Now().UTC()
	if playbook.CreatedAt.IsZero() {
		playbook.CreatedAt = now
	}

	playbook.UpdatedAt = now

	data, err := json.MarshalIndent(playbook, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal playbook %s: %w", playbook.ID, err)
	}

	filePath := path.Join(pr.dir(), sanitizeID(playbook.ID)+".json")

	return os.WriteFile(filePath, data, 0600)
}

// GetByID retrieves a playbook by its ID.
func (pr *PlaybookRepository) GetByID(_ context.Context, id string) (*models.Playbook, error) {
	filePath := filepath.Clean(path.Join(pr.dir(), sanitizeID(id)+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrPlaybookNotFound
		}

		return nil, fmt.Errorf("failed to fetch playbook %s: %w", id, err)
	}

	var playbook models.Playbook

	err = json.Unmarshal(body, &playbook)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal playbook %s: %w", id, err)
	}

	return &playbook, nil
}

// List returns all playbooks sorted by name.
func (pr *PlaybookRepository) List(ctx context.Context) ([]*models.Playbook, error) {
	root := os.DirFS(pr.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list playbook files: %w", err)
	}

	playbooks := make([]*models.Playbook, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := file[:len(file)-5]

		playbook, err := pr.GetByID(ctx, id)
		if err != nil {
			if persistence.IsPlaybookNotFound(err) {
				continue
			}

			return nil, err
		}

		playbooks = append(playbooks, playbook)
	}

	sort.Slice(playbooks, func(i, j int) bool {
		return playbooks[i].Name < playbooks[j].Name
	})

	return playbooks, nil
}

// Delete removes a playbook by its ID. Deleting an absent playbook is a
// no-op.
func (pr *PlaybookRepository) Delete(_ context.Context, id string) error {
	filePath := path.Join(pr.dir(), sanitizeID(id)+".json")

	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete playbook %s: %w", id, err)
	}

	return nil
}
