// Package protocol defines the capability interfaces the execution engine
// delegates to. The engine never performs external effects itself.
package protocol

import (
	"context"
	"log/slog"

	"github.com/quorumlabs/warden/pkg/models"
)

// Action is one delegated external tool call.
type Action interface {
	Execute(ctx context.Context, ectx models.ExecutionContext, logger *slog.Logger) (map[string]any, error)
	Validate() error
}

// ActionFactory creates actions of one type from step configuration.
type ActionFactory interface {
	// ID returns the action type identifier referenced by playbook steps.
	ID() string
	Create(config map[string]any) (Action, error)
}
