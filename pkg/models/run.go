package models

import "time"

// RunStatus is the lifecycle state of a playbook run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// runStatusTransitions is the explicit transition table for run statuses.
// Paused is reachable only from running and returns only to running;
// cancelled is terminal and never resumable.
var runStatusTransitions = map[RunStatus][]RunStatus{
	RunStatusPending:   {RunStatusRunning, RunStatusCancelled},
	RunStatusRunning:   {RunStatusPaused, RunStatusCompleted, RunStatusFailed, RunStatusCancelled},
	RunStatusPaused:    {RunStatusRunning, RunStatusCancelled},
	RunStatusCompleted: {},
	RunStatusFailed:    {},
	RunStatusCancelled: {},
}

// CanTransitionTo reports whether the status may move to next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range runStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return len(runStatusTransitions[s]) == 0
}

// StepStatus is the lifecycle state of a single step within a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult is the recorded outcome of one step of a run.
type StepResult struct {
	StepID     string         `json:"step_id"`
	UID        string         `json:"uid"`
	Name       string         `json:"name"`
	Status     StepStatus     `json:"status"`
	Attempts   int            `json:"attempts"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Run is one concrete execution of a playbook. A run owns its step results
// exclusively.
type Run struct {
	ID          string         `json:"id"`
	PlaybookID  string         `json:"playbook_id"`
	Status      RunStatus      `json:"status"`
	Environment string         `json:"environment,omitempty"`
	TriggeredBy string         `json:"triggered_by"`
	Variables   map[string]any `json:"variables,omitempty"`
	Steps       []*StepResult  `json:"steps"`

	PausedBy    string `json:"paused_by,omitempty"`
	PauseReason string `json:"pause_reason,omitempty"`
	ResumedBy   string `json:"resumed_by,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// StepSummary aggregates per-status step counts for a run result.
type StepSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Summary computes the step counts for the run.
func (r *Run) Summary() StepSummary {
	summary := StepSummary{Total: len(r.Steps)}

	for _, step := range r.Steps {
		switch step.Status {
		case StepStatusSucceeded:
			summary.Succeeded++
		case StepStatusFailed:
			summary.Failed++
		case StepStatusSkipped:
			summary.Skipped++
		case StepStatusPending, StepStatusRunning:
		}
	}

	return summary
}
