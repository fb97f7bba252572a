package models

// TransitionKind classifies the direction of a transition.
type TransitionKind string

const (
	TransitionKindForward   TransitionKind = "forward"
	TransitionKindBackward  TransitionKind = "backward"
	TransitionKindPause     TransitionKind = "pause"
	TransitionKindResume    TransitionKind = "resume"
	TransitionKindTerminate TransitionKind = "terminate"
)

// Precondition is a typed gate a transition requires before it may fire.
// A precondition with Required=true is met only when matching evidence is
// present and true; absent evidence counts as unmet.
type Precondition struct {
	Tag      EvidenceKind `json:"tag"      validate:"required"`
	Required bool         `json:"required"`
}

// SideEffect describes an external effect a transition carries, executed by
// collaborators outside the core.
type SideEffect struct {
	Tag    string         `json:"tag"              validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// Transition is the definition for one ordered (from, to) pair. At most one
// definition exists per pair.
type Transition struct {
	From          string         `json:"from"           validate:"required"`
	To            string         `json:"to"             validate:"required"`
	Kind          TransitionKind `json:"kind"           validate:"required"`
	Preconditions []Precondition `json:"preconditions,omitempty"`
	SideEffects   []SideEffect   `json:"side_effects,omitempty"`

	// Automatic transitions must name the observed evidence that authorizes
	// them; a transition never fires automatically on absence of evidence.
	Automatic    bool           `json:"automatic"`
	AutoTriggers []EvidenceKind `json:"auto_triggers,omitempty"`
}
