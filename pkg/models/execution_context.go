package models

// ExecutionContext is the accumulated state a step action executes against.
type ExecutionContext struct {
	RunID       string                    `json:"run_id"`
	PlaybookID  string                    `json:"playbook_id"`
	Environment string                    `json:"environment,omitempty"`
	TriggeredBy string                    `json:"triggered_by,omitempty"`
	Variables   map[string]any            `json:"variables,omitempty"`
	StepOutputs map[string]map[string]any `json:"step_outputs,omitempty"`
	Metadata    map[string]any            `json:"metadata,omitempty"`
}
