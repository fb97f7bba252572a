package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")

	content := `policies:
  - name: deploy-guard
    action_type: deploy_service
    allowed_environments: [staging]
    max_runs_per_window: 3
    window_seconds: 3600
    key_fields: [service, version]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	set, err := LoadFile(path)
	require.NoError(t, err)

	policy, ok := set.ByActionType("deploy_service")
	require.True(t, ok)
	assert.Equal(t, "deploy-guard", policy.Name)
	assert.True(t, policy.HasRateWindow())
	assert.Equal(t, 3, *policy.MaxRunsPerWindow)
	assert.Equal(t, []string{"service", "version"}, policy.KeyFields)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read policy file")
}

func TestLoad_ActionTypesInDefinitionOrder(t *testing.T) {
	set, err := Load([]byte(testPoliciesJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"deploy_service", "deploy_service_production", "close_issue"}, set.ActionTypes())
}

func TestLoad_UnknownActionType(t *testing.T) {
	set, err := Load([]byte(testPoliciesJSON))
	require.NoError(t, err)

	_, ok := set.ByActionType("delete_everything")
	assert.False(t, ok)
}

func TestLoad_DuplicateActionType(t *testing.T) {
	doc := `{
		"policies": [
			{"name": "a", "action_type": "deploy_service", "allowed_environments": ["staging"], "key_fields": ["service"]},
			{"name": "b", "action_type": "deploy_service", "allowed_environments": ["staging"], "key_fields": ["service"]}
		]
	}`

	_, err := Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate policy for action type "deploy_service"`)
}

func TestLoad_HalfConfiguredWindow(t *testing.T) {
	doc := `{
		"policies": [{
			"name": "deploy-guard",
			"action_type": "deploy_service",
			"allowed_environments": ["staging"],
			"max_runs_per_window": 3,
			"key_fields": ["service"]
		}]
	}`

	_, err := Load([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both or neither")
}

func TestLoad_SchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"missing policies", `{}`},
		{"policy without name", `{"policies": [{"action_type": "a", "allowed_environments": ["staging"], "key_fields": ["x"]}]}`},
		{"empty environments", `{"policies": [{"name": "a", "action_type": "a", "allowed_environments": [], "key_fields": ["x"]}]}`},
		{"empty key fields", `{"policies": [{"name": "a", "action_type": "a", "allowed_environments": ["staging"], "key_fields": []}]}`},
		{"negative window", `{"policies": [{"name": "a", "action_type": "a", "allowed_environments": ["staging"], "key_fields": ["x"], "max_runs_per_window": -1, "window_seconds": 60}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid policy definitions")
		})
	}
}
