// Package log provides a log action for playbook steps.
package log

import (
	"context"
	"log/slog"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/protocol"
)

// ActionFactory creates log actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "log"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config), nil
}

// Action logs a message at a configured level.
type Action struct {
	message string
	level   string
}

func NewAction(config map[string]any) *Action {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Action{message: message, level: level}
}

func (a *Action) Validate() error {
	return nil
}

func (a *Action) Execute(ctx context.Context, ectx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "log", "run_id", ectx.RunID)

	switch a.level {
	case "debug":
		logger.DebugContext(ctx, a.message)
	case "warn", "warning":
		logger.WarnContext(ctx, a.message)
	case "error":
		logger.ErrorContext(ctx, a.message)
	default:
		logger.InfoContext(ctx, a.message)
	}

	return map[string]any{"message": a.message, "level": a.level}, nil
}
