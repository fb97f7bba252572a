// Package models defines the core domain models for governed issue automation.
package models

// StateCategory classifies a lifecycle state for UI-agnostic grouping.
type StateCategory string

const (
	StateCategoryInitial      StateCategory = "initial"
	StateCategoryReady        StateCategory = "ready"
	StateCategoryInProgress   StateCategory = "in-progress"
	StateCategoryVerification StateCategory = "verification"
	StateCategoryMergePending StateCategory = "merge-pending"
	StateCategoryTerminal     StateCategory = "terminal"
	StateCategoryHold         StateCategory = "special-hold" // Human-gated pause, non-terminal
)

// State describes one node of the issue lifecycle.
type State struct {
	Name            string        `json:"name"             validate:"required,min=1"`
	Category        StateCategory `json:"category"         validate:"required"`
	Terminal        bool          `json:"terminal"`
	Predecessors    []string      `json:"predecessors"`
	Successors      []string      `json:"successors"`
	EntryConditions []string      `json:"entry_conditions,omitempty"`
	ExitConditions  []string      `json:"exit_conditions,omitempty"`
}

// IsHold reports whether the state is the special human-gated hold.
func (s *State) IsHold() bool {
	return s.Category == StateCategoryHold
}
