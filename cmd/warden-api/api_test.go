package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logaction "github.com/quorumlabs/warden/pkg/actions/log"
	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/persistence/file"
	"github.com/quorumlabs/warden/pkg/policy"
	"github.com/quorumlabs/warden/pkg/registry"
	"github.com/quorumlabs/warden/pkg/statemachine"
)

const testStateMachineJSON = `{
  "states": [
    {"name": "backlog", "category": "initial", "successors": ["in_progress"]},
    {"name": "in_progress", "category": "in-progress", "successors": ["done"]},
    {"name": "done", "category": "terminal", "terminal": true},
    {"name": "hold", "category": "special-hold"}
  ],
  "transitions": [
    {"from": "in_progress", "to": "done", "kind": "terminate",
      "preconditions": [{"tag": "pr_merged", "required": true}]}
  ],
  "mappings": {
    "status_field": {"In Progress": "in_progress", "Done": "done"},
    "pr_status": {"closed": "done"},
    "done_signals": {"status_field": ["Done"]}
  }
}`

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

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persistence := file.NewPersistence(t.TempDir())

	spec, err := statemachine.Load(logger, []byte(testStateMachineJSON))
	require.NoError(t, err)

	policies, err := policy.Load([]byte(testPoliciesJSON))
	require.NoError(t, err)

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(logaction.NewActionFactory())

	api := NewAPI(logger, persistence, reg, nil, spec, policies)

	return api.App()
}

func doJSON(t *testing.T, app *fiber.App, method, target string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func createTestPlaybook(t *testing.T, app *fiber.App) models.Playbook {
	t.Helper()

	resp, raw := doJSON(t, app, http.MethodPost, "/playbooks/", map[string]any{
		"name": "Release notify",
		"steps": []map[string]any{
			{
				"id":            "announce",
				"uid":           "announce",
				"name":          "Announce",
				"action_type":   "log",
				"configuration": map[string]any{"message": "released"},
			},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var playbook models.Playbook
	require.NoError(t, json.Unmarshal(raw, &playbook))

	return playbook
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Warden API", string(raw))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal(raw, &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestAPI_Liveness(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_PlaybookLifecycle(t *testing.T) {
	app := setupTestApp(t)

	created := createTestPlaybook(t, app)
	require.NotEmpty(t, created.ID)

	resp, raw := doJSON(t, app, http.MethodGet, "/playbooks/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Playbook
	require.NoError(t, json.Unmarshal(raw, &fetched))
	assert.Equal(t, "Release notify", fetched.Name)

	resp, raw = doJSON(t, app, http.MethodGet, "/playbooks/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var playbooks []models.Playbook
	require.NoError(t, json.Unmarshal(raw, &playbooks))
	assert.Len(t, playbooks, 1)

	resp, _ = doJSON(t, app, "DELETE", "/playbooks/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/playbooks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreatePlaybook_Invalid(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/playbooks/", map[string]any{"name": "No steps"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/playbooks/", map[string]any{
		"name": "Bad action",
		"steps": []map[string]any{
			{"id": "x", "uid": "x", "name": "X", "action_type": "teleport"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_StartRun(t *testing.T) {
	app := setupTestApp(t)
	playbook := createTestPlaybook(t, app)

	resp, raw := doJSON(t, app, http.MethodPost, "/runs/", map[string]any{
		"playbook_id":  playbook.ID,
		"triggered_by": "tester",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var run models.Run
	require.NoError(t, json.Unmarshal(raw, &run))
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, models.StepStatusSucceeded, run.Steps[0].Status)

	resp, raw = doJSON(t, app, http.MethodGet, "/runs/"+run.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Run
	require.NoError(t, json.Unmarshal(raw, &fetched))
	assert.Equal(t, run.ID, fetched.ID)
}

func TestAPI_StartRun_Validation(t *testing.T) {
	app := setupTestApp(t)

	// triggered_by is required.
	resp, _ := doJSON(t, app, http.MethodPost, "/runs/", map[string]any{"playbook_id": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/runs/", map[string]any{
		"playbook_id":  "absent",
		"triggered_by": "tester",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListRuns(t *testing.T) {
	app := setupTestApp(t)
	playbook := createTestPlaybook(t, app)

	for range 3 {
		resp, _ := doJSON(t, app, http.MethodPost, "/runs/", map[string]any{
			"playbook_id":  playbook.ID,
			"triggered_by": "tester",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, raw := doJSON(t, app, http.MethodGet, "/runs/?limit=2", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Runs        []models.Run `json:"runs"`
		TotalCount  int64        `json:"total_count"`
		HasNextPage bool         `json:"has_next_page"`
	}
	require.NoError(t, json.Unmarshal(raw, &listing))
	assert.Len(t, listing.Runs, 2)
	assert.EqualValues(t, 3, listing.TotalCount)
	assert.True(t, listing.HasNextPage)

	resp, _ = doJSON(t, app, http.MethodGet, "/runs/?status=exploded", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_PauseCompletedRun_Conflicts(t *testing.T) {
	app := setupTestApp(t)
	playbook := createTestPlaybook(t, app)

	resp, raw := doJSON(t, app, http.MethodPost, "/runs/", map[string]any{
		"playbook_id":  playbook.ID,
		"triggered_by": "tester",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run models.Run
	require.NoError(t, json.Unmarshal(raw, &run))

	resp, _ = doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/pause", map[string]any{
		"paused_by": "operator",
		"reason":    "too late",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing actor is a validation error, not a conflict.
	resp, _ = doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/resume", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_EvaluatePolicy(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodPost, "/policy/evaluate", map[string]any{
		"request_id":     "req-1",
		"action_type":    "deploy_service",
		"target_type":    "service",
		"target_id":      "billing",
		"deployment_env": "staging",
		"action_context": map[string]any{"service": "billing"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var decision policy.Decision
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.True(t, decision.Allow)
	assert.Equal(t, "deploy-guard", decision.PolicyName)

	// The decision is on the audit trail.
	resp, raw = doJSON(t, app, http.MethodGet, "/audit?key_hash="+decision.IdempotencyKeyHash, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var trail struct {
		Records []models.ExecutionRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(raw, &trail))
	require.Len(t, trail.Records, 1)
	assert.Equal(t, "req-1", trail.Records[0].RequestID)
}

func TestAPI_EvaluatePolicy_Denied(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodPost, "/policy/evaluate", map[string]any{
		"request_id":     "req-2",
		"action_type":    "delete_everything",
		"deployment_env": "staging",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision policy.Decision
	require.NoError(t, json.Unmarshal(raw, &decision))
	assert.False(t, decision.Allow)
	assert.Equal(t, policy.ReasonNoPolicyDefined, decision.Reason)
}

func TestAPI_EvaluatePolicy_Validation(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/policy/evaluate", map[string]any{
		"action_type": "deploy_service",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_AuditTrail_RequiresKeyHash(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/audit", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_DraftLifecycle(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodPost, "/drafts/", map[string]any{
		"title":  "Add retry budget",
		"labels": []string{"infra"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var draft models.Draft
	require.NoError(t, json.Unmarshal(raw, &draft))
	require.NotEmpty(t, draft.ID)
	require.NotEmpty(t, draft.ContentHash)

	resp, raw = doJSON(t, app, http.MethodPost, "/drafts/"+draft.ID+"/patch", map[string]any{
		"patch":         map[string]any{"title": "Add a retry budget"},
		"expected_hash": draft.ContentHash,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var result struct {
		Draft      models.Draft `json:"draft"`
		BeforeHash string       `json:"before_hash"`
		AfterHash  string       `json:"after_hash"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "Add a retry budget", result.Draft.Title)
	assert.Equal(t, draft.ContentHash, result.BeforeHash)

	// A stale hash is a conflict.
	resp, _ = doJSON(t, app, http.MethodPost, "/drafts/"+draft.ID+"/patch", map[string]any{
		"patch":         map[string]any{"title": "Again"},
		"expected_hash": draft.ContentHash,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// A non-whitelisted field rejects the whole patch.
	resp, _ = doJSON(t, app, http.MethodPost, "/drafts/"+draft.ID+"/patch", map[string]any{
		"patch": map[string]any{"reporter_id": "nope"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_StateMachineEndpoints(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodGet, "/state-machine/states", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var states []models.State
	require.NoError(t, json.Unmarshal(raw, &states))
	assert.Len(t, states, 4)
	assert.Equal(t, "backlog", states[0].Name)

	resp, raw = doJSON(t, app, http.MethodGet, "/state-machine/states/backlog/next", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var next struct {
		State string         `json:"state"`
		Next  []models.State `json:"next"`
	}
	require.NoError(t, json.Unmarshal(raw, &next))
	require.Len(t, next.Next, 2)
	assert.Equal(t, "in_progress", next.Next[0].Name)
	assert.Equal(t, "hold", next.Next[1].Name)

	resp, _ = doJSON(t, app, http.MethodGet, "/state-machine/states/ghost/next", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CheckTransition(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodPost, "/state-machine/transitions/check", map[string]any{
		"from":     "in_progress",
		"to":       "done",
		"evidence": map[string]bool{"pr_merged": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var check struct {
		Allowed       bool `json:"allowed"`
		Preconditions struct {
			Met bool `json:"met"`
		} `json:"preconditions"`
	}
	require.NoError(t, json.Unmarshal(raw, &check))
	assert.True(t, check.Allowed)
	assert.True(t, check.Preconditions.Met)

	resp, raw = doJSON(t, app, http.MethodPost, "/state-machine/transitions/check", map[string]any{
		"from": "in_progress",
		"to":   "done",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &check))
	assert.True(t, check.Allowed)
	// Without evidence the required precondition is unmet.
	assert.False(t, check.Preconditions.Met)

	resp, raw = doJSON(t, app, http.MethodPost, "/state-machine/transitions/check", map[string]any{
		"from": "done",
		"to":   "backlog",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &check))
	assert.False(t, check.Allowed)
}

func TestAPI_MapExternalStatus(t *testing.T) {
	app := setupTestApp(t)

	resp, raw := doJSON(t, app, http.MethodGet, "/state-machine/map-external?source=status_field&status=Done", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var mapped struct {
		Mapped bool         `json:"mapped"`
		State  models.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(raw, &mapped))
	assert.True(t, mapped.Mapped)
	assert.Equal(t, "done", mapped.State.Name)

	// "closed" maps to the terminal state but is not a done-signal.
	resp, raw = doJSON(t, app, http.MethodGet, "/state-machine/map-external?source=pr_status&status=closed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &mapped))
	assert.False(t, mapped.Mapped)

	resp, _ = doJSON(t, app, http.MethodGet, "/state-machine/map-external?source=status_field", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
