package orchestrator

import (
	"strings"

	"github.com/fyrsmithlabs/qchi/internal/contract"
)

// EmptyDerivationIssue is the synthetic gate issue for an empty derivation.
const EmptyDerivationIssue = "derivation output was empty"

// EmptyDerivationFeedback replaces synthesized feedback after an empty derivation.
const EmptyDerivationFeedback = "- Derivation output was empty. Return the full required markdown artifact."

// BuildFeedback turns gate issues and the verifier messages of a failed
// attempt into the corrective text for the next derivation. Fixes and
// blockers are de-duplicated in first-seen order across msgs; nil messages
// are skipped.
func BuildFeedback(issues []string, msgs ...*contract.Message) string {
	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		lines = append(lines, "- "+issue)
	}

	fixes := distinct(msgs, func(m *contract.Message) []string { return m.RequiredFixes })
	if len(fixes) > 0 {
		lines = append(lines, "- Required fixes from subagents:")
		for _, f := range fixes {
			lines = append(lines, "  - "+f)
		}
	}

	blockers := distinct(msgs, func(m *contract.Message) []string { return m.Blockers })
	if len(blockers) > 0 {
		lines = append(lines, "- Blockers reported by subagents:")
		for _, b := range blockers {
			lines = append(lines, "  - "+b)
		}
	}
	return strings.Join(lines, "\n")
}

func distinct(msgs []*contract.Message, field func(*contract.Message) []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range msgs {
		if m == nil {
			continue
		}
		for _, item := range field(m) {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
