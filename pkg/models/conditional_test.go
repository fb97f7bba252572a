package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConditional(t *testing.T) {
	assert.NotNil(t, GetConditional(ConditionalExpression{Language: "simple", Expression: "true"}))
	assert.NotNil(t, GetConditional(ConditionalExpression{Expression: "vars.enabled"}))
	assert.Nil(t, GetConditional(ConditionalExpression{Language: "javascript", Expression: "1 == 1"}))
}

func TestConditionalExpression_IsZero(t *testing.T) {
	assert.True(t, ConditionalExpression{}.IsZero())
	assert.False(t, ConditionalExpression{Expression: "true"}.IsZero())
	assert.False(t, ConditionalExpression{Language: "simple"}.IsZero())
}

func TestSimpleConditional_Literals(t *testing.T) {
	interpreter := &SimpleConditionalInterpreter{}

	result, err := interpreter.Evaluate("true", nil)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = interpreter.Evaluate("false", nil)
	require.NoError(t, err)
	assert.False(t, result)

	// An empty expression gates nothing.
	result, err = interpreter.Evaluate("   ", nil)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestSimpleConditional_VariableReference(t *testing.T) {
	interpreter := &SimpleConditionalInterpreter{}
	vars := map[string]any{
		"enabled":   true,
		"disabled":  false,
		"flag_text": "true",
		"empty":     "",
		"count":     3,
		"zero":      float64(0),
	}

	cases := []struct {
		expression string
		expected   bool
	}{
		{"vars.enabled", true},
		{"vars.disabled", false},
		{"!vars.disabled", true},
		{"! vars.enabled", false},
		{"vars.flag_text", true},
		{"vars.empty", false},
		{"vars.count", true},
		{"vars.zero", false},
		{"vars.absent", false},
		{"!vars.absent", true},
	}

	for _, tc := range cases {
		t.Run(tc.expression, func(t *testing.T) {
			result, err := interpreter.Evaluate(tc.expression, vars)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestSimpleConditional_Errors(t *testing.T) {
	interpreter := &SimpleConditionalInterpreter{}

	_, err := interpreter.Evaluate("maybe", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot convert expression")

	_, err = interpreter.Evaluate("vars.blob", map[string]any{"blob": []string{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot convert []string to boolean")

	_, err = interpreter.Evaluate("vars.text", map[string]any{"text": "not-a-bool"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot convert string "not-a-bool"`)
}
