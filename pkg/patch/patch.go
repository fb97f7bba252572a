// Package patch applies whitelist-enforced, hash-verified patches to issue
// drafts. Apply is a pure function of (draft, patch): it has no storage or
// network side effects, and the same inputs always produce the same result
// hashes.
package patch

import (
	"fmt"
	"slices"
	"sort"

	"github.com/quorumlabs/warden/pkg/canonical"
	"github.com/quorumlabs/warden/pkg/models"
)

// Patchable draft fields. Any key outside this set rejects the whole patch.
const (
	FieldTitle              = "title"
	FieldSummary            = "summary"
	FieldBody               = "body"
	FieldPriority           = "priority"
	FieldAssignee           = "assignee"
	FieldLabels             = "labels"
	FieldDependsOn          = "depends_on"
	FieldAcceptanceCriteria = "acceptance_criteria"
)

var scalarFields = map[string]struct{}{
	FieldTitle:    {},
	FieldSummary:  {},
	FieldBody:     {},
	FieldPriority: {},
	FieldAssignee: {},
}

// listFields maps list field names to whether their order is irrelevant.
// Order-irrelevant lists are deduplicated and stably sorted so semantically
// equal patches converge to the same canonical document.
var listFields = map[string]bool{
	FieldLabels:             true,
	FieldDependsOn:          true,
	FieldAcceptanceCriteria: false,
}

// List operation names accepted in operation-form list patches.
const (
	OpAppend         = "append"
	OpRemove         = "remove"
	OpReplaceByIndex = "replaceByIndex"
	OpReplaceAll     = "replaceAll"
)

// Patch is the requested field changes, keyed by whitelisted field name.
type Patch map[string]any

// Result reports a successful application with the hashes needed for audit
// and lost-update detection.
type Result struct {
	Draft       *models.Draft `json:"draft"`
	BeforeHash  string        `json:"before_hash"`
	AfterHash   string        `json:"after_hash"`
	PatchHash   string        `json:"patch_hash"`
	DiffSummary []string      `json:"diff_summary"`
}

// Apply validates and applies the patch to a copy of the draft. Unknown
// fields, bad values, and out-of-range indexes reject the whole patch; the
// input draft is never mutated.
func Apply(draft *models.Draft, p Patch) (*Result, error) {
	for field := range p {
		if _, scalar := scalarFields[field]; scalar {
			continue
		}

		if _, list := listFields[field]; list {
			continue
		}

		return nil, newError(CodeFieldNotAllowed, field, "field is not patchable")
	}

	beforeHash, err := ContentHash(draft)
	if err != nil {
		return nil, fmt.Errorf("failed to hash draft: %w", err)
	}

	patchHash, err := canonical.Hash(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("failed to hash patch: %w", err)
	}

	next := draft.Clone()
	diff := make([]string, 0, len(p))

	// Iterate fields in sorted order so the diff summary is deterministic.
	fields := make([]string, 0, len(p))
	for field := range p {
		fields = append(fields, field)
	}

	sort.Strings(fields)

	for _, field := range fields {
		if err := applyField(next, field, p[field]); err != nil {
			return nil, err
		}

		diff = append(diff, field)
	}

	normalize(next)

	afterHash, err := ContentHash(next)
	if err != nil {
		return nil, fmt.Errorf("failed to hash patched draft: %w", err)
	}

	next.ContentHash = afterHash

	return &Result{
		Draft:       next,
		BeforeHash:  beforeHash,
		AfterHash:   afterHash,
		PatchHash:   patchHash,
		DiffSummary: diff,
	}, nil
}

// ContentHash computes the canonical content hash of a draft. The stored
// hash and timestamps are excluded so the hash covers content only.
func ContentHash(draft *models.Draft) (string, error) {
	return canonical.Hash(map[string]any{
		FieldTitle:              draft.Title,
		FieldSummary:            draft.Summary,
		FieldBody:               draft.Body,
		FieldPriority:           draft.Priority,
		FieldAssignee:           draft.Assignee,
		FieldLabels:             draft.Labels,
		FieldDependsOn:          draft.DependsOn,
		FieldAcceptanceCriteria: draft.AcceptanceCriteria,
	})
}

func applyField(draft *models.Draft, field string, value any) error {
	if _, scalar := scalarFields[field]; scalar {
		return applyScalar(draft, field, value)
	}

	current := listValue(draft, field)

	updated, err := applyList(field, current, value)
	if err != nil {
		return err
	}

	setListValue(draft, field, updated)

	return nil
}

func listValue(draft *models.Draft, field string) []string {
	switch field {
	case FieldLabels:
		return draft.Labels
	case FieldDependsOn:
		return draft.DependsOn
	case FieldAcceptanceCriteria:
		return draft.AcceptanceCriteria
	}

	return nil
}

func setListValue(draft *models.Draft, field string, values []string) {
	switch field {
	case FieldLabels:
		draft.Labels = values
	case FieldDependsOn:
		draft.DependsOn = values
	case FieldAcceptanceCriteria:
		draft.AcceptanceCriteria = values
	}
}

func applyScalar(draft *models.Draft, field string, value any) error {
	switch field {
	case FieldPriority:
		number, ok := value.(float64)
		if !ok {
			if n, isInt := value.(int); isInt {
				number, ok = float64(n), true
			}
		}

		if !ok || number != float64(int(number)) {
			return newError(CodeInvalidValue, field, "priority must be an integer")
		}

		draft.Priority = int(number)
	default:
		text, ok := value.(string)
		if !ok {
			return newError(CodeInvalidValue, field, fmt.Sprintf("expected string, got %T", value))
		}

		switch field {
		case FieldTitle:
			draft.Title = text
		case FieldSummary:
			draft.Summary = text
		case FieldBody:
			draft.Body = text
		case FieldAssignee:
			draft.Assignee = text
		}
	}

	return nil
}

func applyList(field string, current []string, value any) ([]string, error) {
	// Bare array form is a full replacement.
	if values, err := toStringSlice(value); err == nil {
		return values, nil
	}

	op, ok := value.(map[string]any)
	if !ok {
		return nil, newError(CodeInvalidValue, field, fmt.Sprintf("expected string list or operation object, got %T", value))
	}

	name, _ := op["op"].(string)

	switch name {
	case OpAppend:
		values, err := operandValues(field, op)
		if err != nil {
			return nil, err
		}

		return append(append([]string(nil), current...), values...), nil

	case OpRemove:
		values, err := operandValues(field, op)
		if err != nil {
			return nil, err
		}

		kept := make([]string, 0, len(current))

		for _, item := range current {
			if !slices.Contains(values, item) {
				kept = append(kept, item)
			}
		}

		return kept, nil

	case OpReplaceByIndex:
		index, ok := numericIndex(op["index"])
		if !ok {
			return nil, newError(CodeInvalidValue, field, "replaceByIndex requires an integer index")
		}

		// Out-of-range is a hard error, never clamped.
		if index < 0 || index >= len(current) {
			return nil, newError(CodeIndexOutOfRange, field,
				fmt.Sprintf("index %d out of range for %d elements", index, len(current)))
		}

		replacement, ok := op["value"].(string)
		if !ok {
			return nil, newError(CodeInvalidValue, field, "replaceByIndex requires a string value")
		}

		updated := append([]string(nil), current...)
		updated[index] = replacement

		return updated, nil

	case OpReplaceAll:
		return operandValues(field, op)

	default:
		return nil, newError(CodeUnknownListOp, field, fmt.Sprintf("unknown list operation %q", name))
	}
}

func operandValues(field string, op map[string]any) ([]string, error) {
	values, err := toStringSlice(op["values"])
	if err != nil {
		return nil, newError(CodeInvalidValue, field, "operation requires a string list in values")
	}

	return values, nil
}

func toStringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			text, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("non-string element %T", item)
			}

			out = append(out, text)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("not a string list: %T", value)
	}
}

func numericIndex(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}

	return 0, false
}

func normalize(draft *models.Draft) {
	draft.Labels = dedupeSorted(draft.Labels)
	draft.DependsOn = dedupeSorted(draft.DependsOn)
}

func dedupeSorted(values []string) []string {
	if len(values) == 0 {
		return values
	}

	out := append([]string(nil), values...)
	sort.Strings(out)

	return slices.Compact(out)
}
