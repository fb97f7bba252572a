// Package models provides conditional expression evaluation for playbook steps.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ConditionalExpression is a step gate evaluated against run variables.
type ConditionalExpression struct {
	Language   string `json:"language,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// IsZero reports whether no conditional was configured.
func (c ConditionalExpression) IsZero() bool {
	return c.Language == "" && c.Expression == ""
}

type Conditional interface {
	Evaluate(exp string, vars map[string]any) (bool, error)
}

// GetConditional returns the interpreter for the expression's language, or
// nil when the language is not supported.
func GetConditional(c ConditionalExpression) Conditional {
	if c.Language == "simple" || c.Language == "" {
		return &SimpleConditionalInterpreter{}
	}

	return nil
}

// SimpleConditionalInterpreter evaluates the "simple" language: literals
// ("true", "false"), variable references ("vars.key"), and negation
// ("!vars.key"). A reference to an absent variable evaluates to false.
type SimpleConditionalInterpreter struct{}

func (s SimpleConditionalInterpreter) Evaluate(exp string, vars map[string]any) (bool, error) {
	exp = strings.TrimSpace(exp)
	if exp == "" {
		return true, nil
	}

	negated := false
	if strings.HasPrefix(exp, "!") {
		negated = true
		exp = strings.TrimSpace(exp[1:])
	}

	result, err := s.resolve(exp, vars)
	if err != nil {
		return false, err
	}

	if negated {
		return !result, nil
	}

	return result, nil
}

func (s SimpleConditionalInterpreter) resolve(exp string, vars map[string]any) (bool, error) {
	if name, ok := strings.CutPrefix(exp, "vars."); ok {
		value, present := vars[name]
		if !present {
			return false, nil
		}

		return coerceBool(value)
	}

	result, err := strconv.ParseBool(exp)
	if err != nil {
		return false, fmt.Errorf("cannot convert expression %q to boolean: %w", exp, err)
	}

	return result, nil
}

func coerceBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if v == "" {
			return false, nil
		}

		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", v, err)
		}

		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}
