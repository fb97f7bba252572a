package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/quorumlabs/warden/pkg/models"
)

// Set is the loaded-once policy collection, read-only for the process
// lifetime.
type Set struct {
	byActionType map[string]*models.PolicyAction
	order        []string
}

// ByActionType returns the policy for the action type, if one is defined.
func (s *Set) ByActionType(actionType string) (*models.PolicyAction, bool) {
	policy, ok := s.byActionType[actionType]

	return policy, ok
}

// ActionTypes returns the configured action types in definition order.
func (s *Set) ActionTypes() []string {
	return append([]string(nil), s.order...)
}

type policyDocument struct {
	Policies []*models.PolicyAction `json:"policies"`
}

// LoadFile reads and validates policy definitions from a YAML or JSON file.
// Malformed input is startup-fatal for callers.
func LoadFile(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	jsonData := raw

	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
		}

		jsonData, err = json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("failed to convert policy file %s: %w", path, err)
		}
	}

	return Load(jsonData)
}

// Load validates and indexes policy definitions given as JSON.
func Load(jsonData []byte) (*Set, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(policySchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate policy definitions: %w", err)
	}

	if !result.Valid() {
		message := ""

		for _, desc := range result.Errors() {
			if message != "" {
				message += "; "
			}

			message += desc.String()
		}

		return nil, fmt.Errorf("invalid policy definitions: %s", message)
	}

	var doc policyDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode policy definitions: %w", err)
	}

	set := &Set{
		byActionType: make(map[string]*models.PolicyAction, len(doc.Policies)),
		order:        make([]string, 0, len(doc.Policies)),
	}

	for _, policy := range doc.Policies {
		if _, exists := set.byActionType[policy.ActionType]; exists {
			return nil, fmt.Errorf("duplicate policy for action type %q", policy.ActionType)
		}

		// Rate window fields come in pairs, never one without the other.
		if (policy.MaxRunsPerWindow == nil) != (policy.WindowSeconds == nil) {
			return nil, fmt.Errorf(
				"policy %q configures max_runs_per_window and window_seconds inconsistently: both or neither",
				policy.Name)
		}

		set.byActionType[policy.ActionType] = policy
		set.order = append(set.order, policy.ActionType)
	}

	return set, nil
}
