// Package events defines event types for run lifecycle notifications.
package events

import (
	"time"

	"github.com/quorumlabs/warden/pkg/models"
)

type EventType string

// Topic carries all run lifecycle events.
const Topic = "warden.run.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunPausedEvent    EventType = "run.paused"
	RunResumedEvent   EventType = "run.resumed"
	RunCancelledEvent EventType = "run.cancelled"
	StepFinishedEvent EventType = "run.step.finished"
	ActionDeniedEvent EventType = "action.denied"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	RunID      string         `json:"run_id"`
	PlaybookID string         `json:"playbook_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	TriggeredBy string `json:"triggered_by"`
	Environment string `json:"environment,omitempty"`
}

func (e RunStarted) GetType() EventType { return RunStartedEvent }

type RunCompleted struct {
	BaseEvent

	Summary  models.StepSummary `json:"summary"`
	Duration time.Duration      `json:"duration"`
}

func (e RunCompleted) GetType() EventType { return RunCompletedEvent }

type RunFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType { return RunFailedEvent }

type RunPaused struct {
	BaseEvent

	PausedBy string `json:"paused_by"`
	Reason   string `json:"reason,omitempty"`
}

func (e RunPaused) GetType() EventType { return RunPausedEvent }

type RunResumed struct {
	BaseEvent

	ResumedBy string `json:"resumed_by"`
}

func (e RunResumed) GetType() EventType { return RunResumedEvent }

type RunCancelled struct {
	BaseEvent

	CancelledBy string `json:"cancelled_by,omitempty"`
}

func (e RunCancelled) GetType() EventType { return RunCancelledEvent }

type StepFinished struct {
	BaseEvent

	StepID   string            `json:"step_id"`
	Status   models.StepStatus `json:"status"`
	Attempts int               `json:"attempts"`
	Error    string            `json:"error,omitempty"`
}

func (e StepFinished) GetType() EventType { return StepFinishedEvent }

type ActionDenied struct {
	BaseEvent

	ActionType         string `json:"action_type"`
	Reason             string `json:"reason"`
	IdempotencyKeyHash string `json:"idempotency_key_hash,omitempty"`
	PolicyName         string `json:"policy_name,omitempty"`
}

func (e ActionDenied) GetType() EventType { return ActionDeniedEvent }
