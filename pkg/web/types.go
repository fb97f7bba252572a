// Package web provides HTTP request and response types for the Warden API.
package web

import (
	"github.com/quorumlabs/warden/pkg/models"
	"github.com/quorumlabs/warden/pkg/patch"
)

// StartRunRequest represents the request body for starting a playbook run.
type StartRunRequest struct {
	PlaybookID  string         `json:"playbook_id"  validate:"required"`
	Environment string         `json:"environment"`
	TriggeredBy string         `json:"triggered_by" validate:"required"`
	Variables   map[string]any `json:"variables"`
}

// PauseRunRequest carries the actor and reason for pausing a run.
type PauseRunRequest struct {
	PausedBy string `json:"paused_by" validate:"required"`
	Reason   string `json:"reason"`
}

// ResumeRunRequest carries the actor resuming a paused run.
type ResumeRunRequest struct {
	ResumedBy string `json:"resumed_by" validate:"required"`
}

// CancelRunRequest carries the actor cancelling a run.
type CancelRunRequest struct {
	CancelledBy string `json:"cancelled_by"`
}

// EvaluateRequest represents the request body for a policy evaluation.
type EvaluateRequest struct {
	RequestID     string         `json:"request_id"     validate:"required"`
	ActionType    string         `json:"action_type"    validate:"required"`
	TargetType    string         `json:"target_type"`
	TargetID      string         `json:"target_id"`
	DeploymentEnv string         `json:"deployment_env"`
	Actor         string         `json:"actor"`
	ActionContext map[string]any `json:"action_context"`
	HasApproval   bool           `json:"has_approval"`
	ApprovalFingerprint string   `json:"approval_fingerprint"`
}

// CreatePlaybookRequest represents the request body for creating a playbook.
type CreatePlaybookRequest struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"        validate:"required,min=3"`
	Description    string                 `json:"description"`
	Steps          []*models.PlaybookStep `json:"steps"       validate:"required,min=1"`
	Variables      map[string]any         `json:"variables"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
}

// CreateDraftRequest represents the request body for creating a draft.
type CreateDraftRequest struct {
	ID                 string   `json:"id"`
	IssueID            string   `json:"issue_id"`
	Title              string   `json:"title"    validate:"required"`
	Summary            string   `json:"summary"`
	Body               string   `json:"body"`
	Priority           int      `json:"priority"`
	Assignee           string   `json:"assignee"`
	Labels             []string `json:"labels"`
	DependsOn          []string `json:"depends_on"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

// ApplyPatchRequest represents the request body for patching a draft. The
// optional expected hash rejects patches computed against a stale copy.
type ApplyPatchRequest struct {
	Patch        patch.Patch `json:"patch"         validate:"required"`
	ExpectedHash string      `json:"expected_hash"`
}

// CheckTransitionRequest asks whether a lifecycle transition is allowed and
// whether its preconditions hold for the given evidence.
type CheckTransitionRequest struct {
	From     string          `json:"from"     validate:"required"`
	To       string          `json:"to"       validate:"required"`
	Evidence map[string]bool `json:"evidence"`
}
