package models

// EvidenceKind is a closed set of observed signals that satisfy transition
// preconditions. Unknown kinds are accepted and logged (forward
// compatibility) but never satisfy a required precondition.
type EvidenceKind string

const (
	EvidenceCIGreen         EvidenceKind = "ci_green"
	EvidenceTestsPassed     EvidenceKind = "tests_passed"
	EvidenceReviewApproved  EvidenceKind = "review_approved"
	EvidencePRMerged        EvidenceKind = "pr_merged"
	EvidenceDeploySucceeded EvidenceKind = "deploy_succeeded"
	EvidenceIssueLinked     EvidenceKind = "issue_linked"
	EvidenceDoneSignal      EvidenceKind = "done_signal"
	EvidenceHumanApproval   EvidenceKind = "human_approval"
)

var knownEvidenceKinds = map[EvidenceKind]struct{}{
	EvidenceCIGreen:         {},
	EvidenceTestsPassed:     {},
	EvidenceReviewApproved:  {},
	EvidencePRMerged:        {},
	EvidenceDeploySucceeded: {},
	EvidenceIssueLinked:     {},
	EvidenceDoneSignal:      {},
	EvidenceHumanApproval:   {},
}

// IsKnownEvidenceKind reports whether the kind belongs to the closed set.
func IsKnownEvidenceKind(kind EvidenceKind) bool {
	_, ok := knownEvidenceKinds[kind]

	return ok
}

// EvidenceSet maps observed evidence kinds to their truth value. Absence of
// a kind is not equivalent to a false entry: both count as unmet.
type EvidenceSet map[EvidenceKind]bool

// Holds reports whether the given kind is present and true.
func (e EvidenceSet) Holds(kind EvidenceKind) bool {
	return e[kind]
}

// UnknownKinds returns the kinds in the set outside the closed enumeration,
// in no particular order.
func (e EvidenceSet) UnknownKinds() []EvidenceKind {
	var unknown []EvidenceKind

	for kind := range e {
		if !IsKnownEvidenceKind(kind) {
			unknown = append(unknown, kind)
		}
	}

	return unknown
}
