package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/warden/pkg/models"
)

func startTestRun(t *testing.T, stack *testStack) *models.Run {
	t.Helper()

	playbooks := NewPlaybook(stack.persistence, stack.registry)
	created, err := playbooks.Create(t.Context(), logPlaybook("Run target"))
	require.NoError(t, err)

	runs := NewRun(stack.engine, stack.persistence)
	run, err := runs.Start(t.Context(), StartRunRequest{
		PlaybookID:  created.ID,
		TriggeredBy: "tester",
	})
	require.NoError(t, err)

	return run
}

func TestRunService_HealthCheck(t *testing.T) {
	stack := newTestStack(t)
	service := NewRun(stack.engine, stack.persistence)

	message, healthy := service.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.Equal(t, "Persistence layer is healthy", message)

	uninitialized := NewRun(stack.engine, nil)
	message, healthy = uninitialized.HealthCheck(t.Context())
	assert.False(t, healthy)
	assert.Equal(t, "Persistence layer not initialized", message)
}

func TestRunService_Start(t *testing.T) {
	stack := newTestStack(t)

	run := startTestRun(t, stack)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "tester", run.TriggeredBy)
}

func TestRunService_StartRequiresTriggeredBy(t *testing.T) {
	stack := newTestStack(t)
	service := NewRun(stack.engine, stack.persistence)

	_, err := service.Start(t.Context(), StartRunRequest{PlaybookID: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTriggeredByRequired)
	assert.True(t, IsValidationError(err))
}

func TestRunService_PauseResumeRequireActor(t *testing.T) {
	stack := newTestStack(t)
	service := NewRun(stack.engine, stack.persistence)

	_, err := service.Pause(t.Context(), "any", "", "reason")
	assert.ErrorIs(t, err, ErrActorRequired)

	_, err = service.Resume(t.Context(), "any", "")
	assert.ErrorIs(t, err, ErrActorRequired)
}

func TestRunService_PauseCompletedRunConflicts(t *testing.T) {
	stack := newTestStack(t)
	service := NewRun(stack.engine, stack.persistence)

	run := startTestRun(t, stack)

	_, err := service.Pause(t.Context(), run.ID, "operator", "hold on")
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}

func TestRunService_FetchByID(t *testing.T) {
	stack := newTestStack(t)
	service := NewRun(stack.engine, stack.persistence)

	run := startTestRun(t, stack)

	fetched, err := service.FetchByID(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)

	_, err = service.FetchByID(t.Context(), "absent")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestRunService_Cancel(t *testing.T) {
	stack := newTestStack(t)
	service := NewRun(stack.engine, stack.persistence)

	run := startTestRun(t, stack)

	// The synchronous run already completed; cancelling it is a conflict.
	_, err := service.Cancel(t.Context(), run.ID, "operator")
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}

func TestRunService_List(t *testing.T) {
	stack := newTestStack(t)
	service := NewRun(stack.engine, stack.persistence)

	first := startTestRun(t, stack)
	startTestRun(t, stack)

	response, err := service.List(t.Context(), ListRunsRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, response.TotalCount)
	assert.Len(t, response.Runs, 2)
	assert.False(t, response.HasNextPage)

	paged, err := service.List(t.Context(), ListRunsRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, paged.Runs, 1)
	assert.True(t, paged.HasNextPage)

	byPlaybook, err := service.List(t.Context(), ListRunsRequest{PlaybookID: first.PlaybookID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, byPlaybook.TotalCount)

	byStatus, err := service.List(t.Context(), ListRunsRequest{Status: "completed"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, byStatus.TotalCount)
}

func TestRunService_ListRejectsUnknownStatus(t *testing.T) {
	stack := newTestStack(t)
	service := NewRun(stack.engine, stack.persistence)

	_, err := service.List(t.Context(), ListRunsRequest{Status: "exploded"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRunStatus)
	assert.True(t, IsValidationError(err))
}
