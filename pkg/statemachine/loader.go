package statemachine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/quorumlabs/warden/pkg/models"
)

type specDocument struct {
	States      []*models.State      `json:"states"`
	Transitions []*models.Transition `json:"transitions"`
	Mappings    mappingsDocument     `json:"mappings"`
}

type mappingsDocument struct {
	StatusField map[string]string   `json:"status_field,omitempty"`
	Label       map[string]string   `json:"label,omitempty"`
	PRStatus    map[string]string   `json:"pr_status,omitempty"`
	DoneSignals map[string][]string `json:"done_signals,omitempty"`
}

// LoadFile reads, validates, and indexes a state machine specification from
// a YAML or JSON file. Any malformed input is an error: the process must not
// start with a partial state machine.
func LoadFile(logger *slog.Logger, path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state machine spec %s: %w", path, err)
	}

	jsonData, err := toJSON(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse state machine spec %s: %w", path, err)
	}

	return Load(logger, jsonData)
}

// Load validates and indexes a state machine specification given as JSON.
func Load(logger *slog.Logger, jsonData []byte) (*Spec, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(specSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate state machine spec: %w", err)
	}

	if !result.Valid() {
		return nil, fmt.Errorf("invalid state machine spec: %s", formatSchemaErrors(result))
	}

	var doc specDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode state machine spec: %w", err)
	}

	return build(logger, &doc)
}

func toJSON(raw []byte, ext string) ([]byte, error) {
	if ext == ".yaml" || ext == ".yml" {
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}

		return json.Marshal(generic)
	}

	return raw, nil
}

func formatSchemaErrors(result *gojsonschema.Result) string {
	message := ""

	for _, desc := range result.Errors() {
		if message != "" {
			message += "; "
		}

		message += desc.String()
	}

	return message
}

func build(logger *slog.Logger, doc *specDocument) (*Spec, error) {
	spec := &Spec{
		logger:      logger,
		states:      make(map[string]*models.State, len(doc.States)),
		stateOrder:  make([]string, 0, len(doc.States)),
		transitions: make(map[transitionKey]*models.Transition, len(doc.Transitions)),
		mappings:    make(map[ExternalSource]map[string]string),
		doneSignals: make(map[ExternalSource]map[string]struct{}),
	}

	for _, state := range doc.States {
		if _, exists := spec.states[state.Name]; exists {
			return nil, fmt.Errorf("duplicate state %q", state.Name)
		}

		if state.Category == models.StateCategoryTerminal && !state.Terminal {
			return nil, fmt.Errorf("state %q has terminal category but terminal flag unset", state.Name)
		}

		if state.Terminal && len(state.Successors) > 0 {
			return nil, fmt.Errorf("terminal state %q must not declare successors", state.Name)
		}

		if state.IsHold() && state.Terminal {
			return nil, fmt.Errorf("hold state %q cannot be terminal", state.Name)
		}

		spec.states[state.Name] = state
		spec.stateOrder = append(spec.stateOrder, state.Name)
	}

	for _, state := range doc.States {
		for _, successor := range state.Successors {
			if _, ok := spec.states[successor]; !ok {
				return nil, fmt.Errorf("state %q names unknown successor %q", state.Name, successor)
			}
		}

		for _, predecessor := range state.Predecessors {
			if _, ok := spec.states[predecessor]; !ok {
				return nil, fmt.Errorf("state %q names unknown predecessor %q", state.Name, predecessor)
			}
		}
	}

	for _, transition := range doc.Transitions {
		if err := spec.addTransition(transition); err != nil {
			return nil, err
		}
	}

	spec.mappings[SourceStatusField] = doc.Mappings.StatusField
	spec.mappings[SourceLabel] = doc.Mappings.Label
	spec.mappings[SourcePRStatus] = doc.Mappings.PRStatus

	for source, signals := range doc.Mappings.DoneSignals {
		set := make(map[string]struct{}, len(signals))
		for _, signal := range signals {
			set[signal] = struct{}{}
		}

		spec.doneSignals[ExternalSource(source)] = set
	}

	return spec, nil
}

func (s *Spec) addTransition(transition *models.Transition) error {
	if _, ok := s.states[transition.From]; !ok {
		return fmt.Errorf("transition names unknown state %q", transition.From)
	}

	if _, ok := s.states[transition.To]; !ok {
		return fmt.Errorf("transition names unknown state %q", transition.To)
	}

	key := transitionKey{from: transition.From, to: transition.To}
	if _, exists := s.transitions[key]; exists {
		return fmt.Errorf("duplicate transition %q -> %q", transition.From, transition.To)
	}

	// Automatic transitions must name the observed evidence that authorizes
	// them: nothing may fire automatically on absence of evidence.
	if transition.Automatic && len(transition.AutoTriggers) == 0 {
		return fmt.Errorf("automatic transition %q -> %q declares no auto triggers", transition.From, transition.To)
	}

	for _, precondition := range transition.Preconditions {
		if !models.IsKnownEvidenceKind(precondition.Tag) {
			return fmt.Errorf("transition %q -> %q uses unknown precondition tag %q",
				transition.From, transition.To, precondition.Tag)
		}
	}

	for _, trigger := range transition.AutoTriggers {
		if !models.IsKnownEvidenceKind(trigger) {
			return fmt.Errorf("transition %q -> %q uses unknown auto trigger %q",
				transition.From, transition.To, trigger)
		}
	}

	s.transitions[key] = transition

	return nil
}
