// Package contract defines the structured message every role must return and
// the two-stage pipeline (lenient extraction, strict validation) that turns raw
// host output into a validated Message.
package contract

import (
	"strings"
)

// Decision is a verdict drawn from the fixed decision vocabulary.
type Decision string

const (
	DecisionPass          Decision = "pass"
	DecisionFail          Decision = "fail"
	DecisionDeferred      Decision = "deferred"
	DecisionNotApplicable Decision = "not_applicable"
	DecisionUnknown       Decision = "unknown"
)

// Decisions returns the vocabulary in canonical order.
func Decisions() []Decision {
	return []Decision{DecisionPass, DecisionFail, DecisionDeferred, DecisionNotApplicable, DecisionUnknown}
}

// NormalizeDecision lower-cases s and maps spaces and hyphens to underscores.
// The result is not guaranteed to be a member of the vocabulary; use Valid.
func NormalizeDecision(s string) Decision {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "-", "_")
	return Decision(strings.ReplaceAll(v, " ", "_"))
}

// Valid reports whether d belongs to the vocabulary.
func (d Decision) Valid() bool {
	switch d {
	case DecisionPass, DecisionFail, DecisionDeferred, DecisionNotApplicable, DecisionUnknown:
		return true
	}
	return false
}

func (d Decision) String() string {
	return string(d)
}

// VerificationStatus is the symbolic/numeric/referee verdict triple.
type VerificationStatus struct {
	Symbolic Decision `json:"symbolic"`
	Numeric  Decision `json:"numeric"`
	Referee  Decision `json:"referee"`
}

// Message is a validated role response. Values are never mutated after
// Validate returns them.
type Message struct {
	TaskID             string             `json:"task_id"`
	SubtaskID          string             `json:"subtask_id"`
	FromRole           string             `json:"from_role"`
	ToRole             string             `json:"to_role"`
	Assumptions        []string           `json:"assumptions"`
	RequiredOutputs    []string           `json:"required_outputs"`
	ResultSummary      string             `json:"result_summary"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Confidence         string             `json:"confidence"`
	ProvenanceTags     []string           `json:"provenance_tags"`
	Blockers           []string           `json:"blockers"`
	RoleDecision       Decision           `json:"role_decision"`
	RequiredFixes      []string           `json:"required_fixes"`
}

// RequiredFields lists the wire fields every message must carry, in schema order.
func RequiredFields() []string {
	return []string{
		"task_id",
		"subtask_id",
		"from_role",
		"to_role",
		"assumptions",
		"required_outputs",
		"result_summary",
		"verification_status",
		"confidence",
		"provenance_tags",
		"blockers",
		"role_decision",
		"required_fixes",
	}
}

var listFields = []string{"assumptions", "required_outputs", "provenance_tags", "blockers", "required_fixes"}

var stringFields = []string{"task_id", "subtask_id", "to_role", "result_summary", "confidence"}

var statusKeys = []string{"symbolic", "numeric", "referee"}

// Compact trims text and truncates it to limit runes, appending " ..." when cut.
func Compact(text string, limit int) string {
	t := strings.TrimSpace(text)
	r := []rune(t)
	if len(r) <= limit {
		return t
	}
	return string(r[:limit]) + " ..."
}
