package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
	"github.com/quorumlabs/warden/pkg/registry"
)

// Playbook provides playbook management operations.
type Playbook struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewPlaybook creates a new playbook service.
func NewPlaybook(persistence persistence.Persistence, registry *registry.Registry) *Playbook {
	return &Playbook{
		persistence: persistence,
		registry:    registry,
	}
}

// Create validates and stores a new playbook.
func (p *Playbook) Create(ctx context.Context, playbook *models.Playbook) (*models.Playbook, error) {
	if playbook.ID == "" {
		playbook.ID = uuid.New().String()
	}

	if err := p.validate(playbook); err != nil {
		return nil, err
	}

	if err := p.persistence.PlaybookRepository().Save(ctx, playbook); err != nil {
		return nil, fmt.Errorf("failed to create playbook: %w", err)
	}

	return playbook, nil
}

// Update validates and replaces an existing playbook.
func (p *Playbook) Update(ctx context.Context, playbookID string, playbook *models.Playbook) (*models.Playbook, error) {
	existing, err := p.persistence.PlaybookRepository().GetByID(ctx, playbookID)
	if err != nil {
		return nil, err
	}

	playbook.ID = existing.ID
	playbook.CreatedAt = existing.CreatedAt

	if err := p.validate(playbook); err != nil {
		return nil, err
	}

	if err := p.persistence.PlaybookRepository().Save(ctx, playbook); err != nil {
		return nil, fmt.Errorf("failed to update playbook: %w", err)
	}

	return playbook, nil
}

// FetchByID returns a playbook by its ID.
func (p *Playbook) FetchByID(ctx context.Context, id string) (*models.Playbook, error) {
	return p.persistence.PlaybookRepository().GetByID(ctx, id)
}

// List returns all playbooks.
func (p *Playbook) List(ctx context.Context) ([]*models.Playbook, error) {
	return p.persistence.PlaybookRepository().List(ctx)
}

// Delete removes a playbook.
func (p *Playbook) Delete(ctx context.Context, id string) error {
	return p.persistence.PlaybookRepository().Delete(ctx, id)
}

func (p *Playbook) validate(playbook *models.Playbook) error {
	if playbook.Name == "" {
		return ErrPlaybookNameRequired
	}

	if len(playbook.Steps) == 0 {
		return ErrStepsRequired
	}

	seen := make(map[string]bool, len(playbook.Steps))

	for _, step := range playbook.Steps {
		if step.ActionType == "" {
			return fmt.Errorf("step %q: %w", step.ID, ErrActionTypeRequired)
		}

		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		if step.UID == "" {
			step.UID = step.ID
		}

		if seen[step.ID] {
			return fmt.Errorf("step %q: %w", step.ID, ErrDuplicateStepID)
		}

		seen[step.ID] = true

		if p.registry != nil {
			if _, err := p.registry.CreateAction(step.ActionType, step.Configuration); err != nil {
				return NewValidationError("Create", "UNKNOWN_ACTION_TYPE",
					fmt.Sprintf("step %q uses unknown action type %q", step.ID, step.ActionType),
					ErrInvalidRequest)
			}
		}
	}

	return nil
}
