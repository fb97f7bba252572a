package models

// PolicyAction is the loaded-once policy definition for one automated action
// type. An action type with no PolicyAction is never implicitly allowed.
type PolicyAction struct {
	Name                string   `json:"name"                 validate:"required,min=1"`
	ActionType          string   `json:"action_type"          validate:"required,min=1"`
	AllowedEnvironments []string `json:"allowed_environments" validate:"required,min=1"`

	// MaxRunsPerWindow and WindowSeconds are both present or both absent,
	// never one without the other. The loader rejects half-configured
	// windows.
	MaxRunsPerWindow *int `json:"max_runs_per_window,omitempty"`
	WindowSeconds    *int `json:"window_seconds,omitempty"`

	CooldownSeconds  *int `json:"cooldown_seconds,omitempty"`
	RequiresApproval bool `json:"requires_approval"`

	// KeyFields is the idempotency-key field template: names of actionContext
	// fields that identify one logical execution of the action.
	KeyFields []string `json:"key_fields" validate:"required,min=1"`
}

// HasRateWindow reports whether the policy carries a rate window.
func (p *PolicyAction) HasRateWindow() bool {
	return p.MaxRunsPerWindow != nil && p.WindowSeconds != nil
}
