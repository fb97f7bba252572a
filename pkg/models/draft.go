package models

import "time"

// Draft is a structured issue draft with a fixed set of patchable fields.
// Drafts are created externally and mutated only through the patch applier;
// ContentHash detects concurrent modification.
type Draft struct {
	ID       string `json:"id"`
	IssueID  string `json:"issue_id,omitempty"`
	Title    string `json:"title"`
	Summary  string `json:"summary,omitempty"`
	Body     string `json:"body,omitempty"`
	Priority int    `json:"priority"`
	Assignee string `json:"assignee,omitempty"`

	// Labels and DependsOn are order-irrelevant: they are deduplicated and
	// stably sorted on every patch so semantically equal patches converge to
	// the same canonical document.
	Labels    []string `json:"labels,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`

	// AcceptanceCriteria is order-relevant and kept as written.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	clone := *d
	clone.Labels = append([]string(nil), d.Labels...)
	clone.DependsOn = append([]string(nil), d.DependsOn...)
	clone.AcceptanceCriteria = append([]string(nil), d.AcceptanceCriteria...)

	return &clone
}
