package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveRetry_DefaultWhenUnset(t *testing.T) {
	step := &PlaybookStep{ID: "one"}

	assert.Equal(t, DefaultRetryPolicy(), step.EffectiveRetry())
}

func TestEffectiveRetry_Passthrough(t *testing.T) {
	step := &PlaybookStep{
		ID:    "one",
		Retry: &RetryPolicy{MaxAttempts: 3, InitialDelaySeconds: 0.5, BackoffMultiplier: 2},
	}

	retry := step.EffectiveRetry()
	assert.Equal(t, 3, retry.MaxAttempts)
	assert.InDelta(t, 0.5, retry.InitialDelaySeconds, 0)
	assert.InDelta(t, 2, retry.BackoffMultiplier, 0)
}

func TestEffectiveRetry_ClampsMaxAttempts(t *testing.T) {
	// Zero or negative attempt counts must not underflow into unbounded
	// retries downstream.
	for _, attempts := range []int{0, -1} {
		step := &PlaybookStep{
			ID:    "one",
			Retry: &RetryPolicy{MaxAttempts: attempts, BackoffMultiplier: 1},
		}

		assert.Equal(t, 1, step.EffectiveRetry().MaxAttempts)
	}
}

func TestPlaybookTimeout(t *testing.T) {
	playbook := &Playbook{TimeoutSeconds: 90}
	assert.Equal(t, "1m30s", playbook.Timeout().String())

	unbounded := &Playbook{}
	assert.Zero(t, unbounded.Timeout())
}
