package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/qchi/internal/roles"
)

// Outcome is the tagged result of Validate: either a valid message or a
// human-readable rejection reason.
type Outcome struct {
	msg    *Message
	reason string
}

// Valid wraps an accepted message.
func Valid(msg *Message) Outcome {
	return Outcome{msg: msg}
}

// Invalid wraps a rejection reason.
func Invalid(reason string) Outcome {
	return Outcome{reason: reason}
}

// OK reports whether the outcome carries a message.
func (o Outcome) OK() bool {
	return o.msg != nil
}

// Message returns the validated message and true, or nil and false.
func (o Outcome) Message() (*Message, bool) {
	return o.msg, o.msg != nil
}

// Reason returns the rejection reason; empty for valid outcomes.
func (o Outcome) Reason() string {
	return o.reason
}

// Validate checks candidate against the role message schema for the role
// that was invoked. It never panics and never coerces list or string fields.
func Validate(candidate Candidate, expected roles.Role) Outcome {
	payload, ok := candidate.(map[string]any)
	if !ok {
		return Invalid("payload is not a JSON object")
	}

	var missing []string
	for _, field := range RequiredFields() {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Invalid("missing required fields: " + strings.Join(missing, ", "))
	}

	from, ok := payload["from_role"].(string)
	if !ok || from != string(expected) {
		return Invalid(fmt.Sprintf("from_role mismatch: expected %s, got %s", expected, display(payload["from_role"])))
	}

	msg := &Message{FromRole: from}

	strs := make(map[string]string, len(stringFields))
	for _, field := range stringFields {
		s, ok := payload[field].(string)
		if !ok {
			return Invalid(fmt.Sprintf("field '%s' must be a string", field))
		}
		strs[field] = s
	}
	msg.TaskID = strs["task_id"]
	msg.SubtaskID = strs["subtask_id"]
	msg.ToRole = strs["to_role"]

	lists := make(map[string][]string, len(listFields))
	for _, field := range listFields {
		items, reason := stringList(field, payload[field])
		if reason != "" {
			return Invalid(reason)
		}
		lists[field] = items
	}
	msg.Assumptions = lists["assumptions"]
	msg.RequiredOutputs = lists["required_outputs"]
	msg.ProvenanceTags = lists["provenance_tags"]
	msg.Blockers = lists["blockers"]
	msg.RequiredFixes = lists["required_fixes"]

	status, ok := payload["verification_status"].(map[string]any)
	if !ok {
		return Invalid("verification_status must be an object")
	}
	decisions := make(map[string]Decision, len(statusKeys))
	for _, key := range statusKeys {
		d := DecisionUnknown
		if v, present := status[key]; present {
			d = NormalizeDecision(display(v))
		}
		if !d.Valid() {
			return Invalid(fmt.Sprintf("invalid verification_status.%s: %s", key, d))
		}
		decisions[key] = d
	}
	msg.VerificationStatus = VerificationStatus{
		Symbolic: decisions["symbolic"],
		Numeric:  decisions["numeric"],
		Referee:  decisions["referee"],
	}

	decision := NormalizeDecision(display(payload["role_decision"]))
	if !decision.Valid() {
		return Invalid(fmt.Sprintf("invalid role_decision: %s", decision))
	}
	msg.RoleDecision = decision

	summary := strings.TrimSpace(strs["result_summary"])
	if summary == "" {
		return Invalid("result_summary must be non-empty")
	}
	msg.ResultSummary = summary

	msg.Confidence = strings.ToLower(strings.TrimSpace(strs["confidence"]))
	if msg.Confidence == "" {
		msg.Confidence = string(DecisionUnknown)
	}

	return Valid(msg)
}

func stringList(field string, v any) ([]string, string) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Sprintf("field '%s' must be a list", field)
	}
	items := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Sprintf("field '%s' item %d must be a string", field, i)
		}
		items = append(items, s)
	}
	return items, ""
}

// display renders a decoded JSON value for messages and normalization.
// Strings are returned verbatim, null as empty, anything else as compact JSON.
func display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
