// Package statemachine holds the loaded-once specification of the issue
// lifecycle: states, transitions, preconditions, and external signal
// mappings. A Spec is immutable after construction and safe for concurrent
// readers.
package statemachine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/quorumlabs/warden/pkg/models"
)

// ErrStateNotFound indicates a state name that is not part of the spec. An
// unknown name is never coerced to a default state.
var ErrStateNotFound = errors.New("state not found")

// ExternalSource identifies which mapping table an external signal belongs to.
type ExternalSource string

const (
	SourceStatusField ExternalSource = "status_field"
	SourceLabel       ExternalSource = "label"
	SourcePRStatus    ExternalSource = "pr_status"
)

type transitionKey struct {
	from string
	to   string
}

// Spec is the immutable state machine specification. Construct one with Load
// and pass it by reference; there is no ambient singleton.
type Spec struct {
	logger *slog.Logger

	states      map[string]*models.State
	stateOrder  []string
	transitions map[transitionKey]*models.Transition

	mappings    map[ExternalSource]map[string]string
	doneSignals map[ExternalSource]map[string]struct{}
}

// StateByName returns the named state, or ErrStateNotFound.
func (s *Spec) StateByName(name string) (*models.State, error) {
	state, ok := s.states[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStateNotFound, name)
	}

	return state, nil
}

// StateNames returns all state names in definition order.
func (s *Spec) StateNames() []string {
	return append([]string(nil), s.stateOrder...)
}

// IsTransitionAllowed reports whether from may structurally move to to.
// A terminal from never transitions. The special hold state moves to and
// from any other non-terminal state regardless of successor lists.
func (s *Spec) IsTransitionAllowed(from, to string) bool {
	fromState, ok := s.states[from]
	if !ok {
		return false
	}

	toState, ok := s.states[to]
	if !ok {
		return false
	}

	if fromState.Terminal {
		return false
	}

	if fromState.IsHold() || toState.IsHold() {
		return !toState.Terminal && from != to
	}

	for _, successor := range fromState.Successors {
		if successor == to {
			return true
		}
	}

	return false
}

// NextStates returns the states IsTransitionAllowed admits from name. A
// terminal state yields an empty list. Hold releases to every other
// non-terminal state; every non-hold non-terminal state may enter hold in
// addition to its declared successors.
func (s *Spec) NextStates(name string) ([]*models.State, error) {
	state, err := s.StateByName(name)
	if err != nil {
		return nil, err
	}

	if state.Terminal {
		return []*models.State{}, nil
	}

	if state.IsHold() {
		next := make([]*models.State, 0, len(s.stateOrder))

		for _, candidate := range s.stateOrder {
			target := s.states[candidate]
			if target.Name == state.Name || target.Terminal {
				continue
			}

			next = append(next, target)
		}

		return next, nil
	}

	next := make([]*models.State, 0, len(state.Successors)+1)
	seen := make(map[string]struct{}, len(state.Successors)+1)

	for _, successor := range state.Successors {
		if target, ok := s.states[successor]; ok {
			next = append(next, target)
			seen[successor] = struct{}{}
		}
	}

	for _, candidate := range s.stateOrder {
		target := s.states[candidate]
		if !target.IsHold() {
			continue
		}

		if _, ok := seen[candidate]; !ok {
			next = append(next, target)
		}
	}

	return next, nil
}

// GetTransition looks up the transition definition for the ordered
// (from, to) pair. Absence is not an error: callers must treat a missing
// definition as unspecified and deny by default.
func (s *Spec) GetTransition(from, to string) (*models.Transition, bool) {
	transition, ok := s.transitions[transitionKey{from: from, to: to}]

	return transition, ok
}

// PreconditionResult reports which required preconditions of a transition
// are unmet.
type PreconditionResult struct {
	Met     bool                  `json:"met"`
	Missing []models.EvidenceKind `json:"missing"`
}

// CheckPreconditions evaluates a transition's preconditions against observed
// evidence. A precondition is met only if its tag is present and true;
// absent tags count as unmet. Evidence kinds outside the closed set are
// accepted but logged, and never satisfy a requirement.
func (s *Spec) CheckPreconditions(transition *models.Transition, evidence models.EvidenceSet) PreconditionResult {
	for _, kind := range evidence.UnknownKinds() {
		s.logger.Warn("Ignoring unrecognized evidence kind", "kind", string(kind))
	}

	result := PreconditionResult{Met: true, Missing: []models.EvidenceKind{}}

	for _, precondition := range transition.Preconditions {
		if !precondition.Required {
			continue
		}

		if !models.IsKnownEvidenceKind(precondition.Tag) || !evidence.Holds(precondition.Tag) {
			result.Met = false
			result.Missing = append(result.Missing, precondition.Tag)
		}
	}

	return result
}

// MapExternalStatus resolves an external signal to a lifecycle state through
// the mapping table of the given source. A signal mapping to a terminal
// state is honored only when the signal is an explicit done-signal for that
// source: an incidental "closed" from an external tracker must not produce a
// false done.
func (s *Spec) MapExternalStatus(externalStatus string, source ExternalSource) (*models.State, bool) {
	table, ok := s.mappings[source]
	if !ok {
		return nil, false
	}

	stateName, ok := table[externalStatus]
	if !ok {
		return nil, false
	}

	state, ok := s.states[stateName]
	if !ok {
		return nil, false
	}

	if state.Terminal {
		if _, done := s.doneSignals[source][externalStatus]; !done {
			return nil, false
		}
	}

	return state, true
}
