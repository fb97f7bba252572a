package services

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	logaction "github.com/quorumlabs/warden/pkg/actions/log"
	"github.com/quorumlabs/warden/pkg/engine"
	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence"
	"github.com/quorumlabs/warden/pkg/persistence/file"
	"github.com/quorumlabs/warden/pkg/policy"
	"github.com/quorumlabs/warden/pkg/registry"
)

const testPoliciesJSON = `{
  "policies": [
    {
      "name": "deploy-guard",
      "action_type": "deploy_service",
      "allowed_environments": ["staging"],
      "key_fields": ["service"]
    }
  ]
}`

type testStack struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      *engine.Engine
	evaluator   *policy.Evaluator
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	persist := file.NewPersistence(t.TempDir())

	policies, err := policy.Load([]byte(testPoliciesJSON))
	require.NoError(t, err)

	evaluator := policy.NewEvaluator(logger, policies, persist.ExecutionRecordRepository())

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(logaction.NewActionFactory())

	return &testStack{
		persistence: persist,
		registry:    reg,
		engine:      engine.NewEngine(logger, persist, reg, evaluator, nil),
		evaluator:   evaluator,
	}
}

func logPlaybook(name string) *models.Playbook {
	return &models.Playbook{
		Name: name,
		Steps: []*models.PlaybookStep{
			{
				ID:            "announce",
				UID:           "announce",
				Name:          "Announce",
				ActionType:    "log",
				Configuration: map[string]any{"message": "hello"},
			},
		},
	}
}
