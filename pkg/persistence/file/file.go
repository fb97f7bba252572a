// Package file provides file-based persistence for playbooks, runs, audit
// records, and drafts. It is intended for local development and tests.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/quorumlabs/warden/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system.
type Persistence struct {
	root         string
	playbookRepo *PlaybookRepository
	runRepo      *RunRepository
	recordRepo   *ExecutionRecordRepository
	draftRepo    *DraftRepository
}

// NewPersistence creates a new instance of Persistence rooted at the given
// directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		playbookRepo: NewPlaybookRepository(cleanRoot),
		runRepo:      NewRunRepository(cleanRoot),
		recordRepo:   NewExecutionRecordRepository(cleanRoot),
		draftRepo:    NewDraftRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) PlaybookRepository() persistence.PlaybookRepository {
	return fp.playbookRepo
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) ExecutionRecordRepository() persistence.ExecutionRecordRepository {
	return fp.recordRepo
}

func (fp *Persistence) DraftRepository() persistence.DraftRepository {
	return fp.draftRepo
}

// sanitizeID makes an identifier safe to use as a file name. Request IDs
// carry a colon separator and must not traverse the tree.
func sanitizeID(id string) string {
	return strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_").Replace(id)
}
