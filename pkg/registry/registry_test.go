package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/protocol"
)

type mockAction struct {
	config map[string]any
}

func (m *mockAction) Execute(_ context.Context, _ models.ExecutionContext, _ *slog.Logger) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func (m *mockAction) Validate() error {
	return nil
}

type mockActionFactory struct {
	id string
}

func (f *mockActionFactory) ID() string {
	return f.id
}

func (f *mockActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return &mockAction{config: config}, nil
}

func testRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewRegistry(logger)
}

func TestRegistry_RegisterAndCreateAction(t *testing.T) {
	registry := testRegistry()
	registry.RegisterAction(&mockActionFactory{id: "mock"})

	action, err := registry.CreateAction("mock", map[string]any{"message": "hello"})
	require.NoError(t, err)

	mockAct, ok := action.(*mockAction)
	require.True(t, ok)
	assert.Equal(t, "hello", mockAct.config["message"])
}

func TestRegistry_CreateAction_Unregistered(t *testing.T) {
	registry := testRegistry()

	_, err := registry.CreateAction("ghost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action type 'ghost' not registered")
}

func TestRegistry_HealthCheck(t *testing.T) {
	registry := testRegistry()

	message, healthy := registry.HealthCheck()
	assert.False(t, healthy)
	assert.Equal(t, "No actions registered", message)

	registry.RegisterAction(&mockActionFactory{id: "mock"})

	message, healthy = registry.HealthCheck()
	assert.True(t, healthy)
	assert.Equal(t, "1 actions registered", message)
}

func TestRegistry_AvailableActions(t *testing.T) {
	registry := testRegistry()
	registry.RegisterAction(&mockActionFactory{id: "log"})
	registry.RegisterAction(&mockActionFactory{id: "http_request"})
	registry.RegisterAction(&mockActionFactory{id: "deploy_service"})

	assert.Equal(t, []string{"deploy_service", "http_request", "log"}, registry.AvailableActions())
}
