package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/qchi/internal/contract"
	"github.com/fyrsmithlabs/qchi/internal/roles"
)

// IntegratorExcerptLimit bounds the derivation excerpt handed to the integrator.
const IntegratorExcerptLimit = 3000

const (
	plannerInstructions = "Decompose the task into minimal verifiable subtasks. " +
		"Define assumptions, required outputs, and explicit acceptance checks."

	sourceMinerInstructions = "Build an arXiv-first source strategy for this reproduction task. " +
		"List concrete source targets, scope coverage, and blockers."

	symbolicInstructions = "Validate symbolic transformations and identities. " +
		"Report exact pass/fail/deferred decision and required fixes."

	numericInstructions = "Validate numeric consistency when applicable. " +
		"If not applicable, set role_decision to not_applicable and explain why."

	refereeInstructions = "Attempt to falsify the result via hidden assumptions, " +
		"boundary violations, and internal contradictions."

	integratorInstructions = "Apply QCHI gate policy. Promote only if derivation is complete, " +
		"symbolic gate passes (or justified defer), numeric gate passes when applicable, " +
		"referee has no unresolved critical issue, and quality gate is satisfied."

	derivationInstructions = "Execute the provided plan and produce a complete derivation artifact. " +
		"Output markdown only with these exact section headers: " +
		"## Problem framing, ## Assumptions and regime, ## Governing equations, ## Derivation, " +
		"## Validation checks, ## Final result, ## Interpretation and confidence, " +
		"## Claim provenance, ## References. " +
		"Inside ## Validation checks, include explicit PASS/FAIL/DEFERRED status lines for: " +
		"Unit check, Limiting-case check, Asymptotic check, Consistency check, Symbolic verification. " +
		"Symbolic verification must name the tool (Mathematica or SymPy) and include a fenced code block " +
		"with the symbolic verification log snippet and outcome. " +
		"Include claim provenance tags such as REPRODUCED_FROM_SOURCE / INFERRED_ASSUMPTION / NEW_EXTENSION."
)

const decisionHint = "pass|fail|deferred|not_applicable|unknown"

// roleRequest is one structured role invocation.
type roleRequest struct {
	Role         roles.Role
	Instructions string
	Context      string
	TaskID       string
	SubtaskID    string
	ToRole       string
}

// DerivationInstructions returns the derivation mandate, with the prior
// attempt's feedback appended when non-empty.
func DerivationInstructions(feedback string) string {
	if feedback == "" {
		return derivationInstructions
	}
	return derivationInstructions +
		"\n\nYOUR LAST ATTEMPT FAILED POLICY GATES:\n" + feedback +
		"\nFix every failing item and regenerate a fully compliant artifact."
}

// DerivationContext assembles the task context for one derivation attempt.
// sourceMiner is nil when the pipeline has no source miner.
func DerivationContext(task string, planner, sourceMiner *contract.Message, feedback string) string {
	outputs := "(none provided)"
	if len(planner.RequiredOutputs) > 0 {
		outputs = strings.Join(planner.RequiredOutputs, "\n")
	}
	parts := []string{
		"User task:\n" + task,
		"Planner summary:\n" + planner.ResultSummary,
		"Planner required outputs:\n" + outputs,
	}
	if sourceMiner != nil {
		parts = append(parts, "Source miner summary:\n"+sourceMiner.ResultSummary)
	}
	if feedback != "" {
		parts = append(parts, "Prior gate failures to fix:\n"+feedback)
	}
	return strings.Join(parts, "\n\n")
}

// MarkdownPrompt builds the prompt for a free-form markdown role.
func MarkdownPrompt(displayName, instructions, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s agent within the strict QCHI Research Operating Layer.\n\n", strings.ToUpper(displayName))
	fmt.Fprintf(&b, "CRITICAL MANDATE:\n%s\n\n", instructions)
	fmt.Fprintf(&b, "TASK CONTEXT:\n%s\n\n", context)
	b.WriteString("Output only the requested markdown artifact.")
	return b.String()
}

// StructuredPrompt builds the prompt for a role that must answer with a
// structured message.
func (r roleRequest) StructuredPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s agent within the strict QCHI Research Operating Layer.\n\n", strings.ToUpper(r.Role.DisplayName()))
	fmt.Fprintf(&b, "CRITICAL MANDATE:\n%s\n\n", r.Instructions)
	fmt.Fprintf(&b, "TASK CONTEXT:\n%s\n\n", r.Context)
	b.WriteString("OUTPUT REQUIREMENT:\n")
	b.WriteString("Return ONLY valid JSON (no markdown, no prose around JSON) with this exact schema:\n")
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  \"task_id\": %q,\n", r.TaskID)
	fmt.Fprintf(&b, "  \"subtask_id\": %q,\n", r.SubtaskID)
	fmt.Fprintf(&b, "  \"from_role\": %q,\n", string(r.Role))
	fmt.Fprintf(&b, "  \"to_role\": %q,\n", r.ToRole)
	b.WriteString("  \"assumptions\": [\"...\"],\n")
	b.WriteString("  \"required_outputs\": [\"...\"],\n")
	b.WriteString("  \"result_summary\": \"...\",\n")
	b.WriteString("  \"verification_status\": {\n")
	fmt.Fprintf(&b, "    \"symbolic\": %q,\n", decisionHint)
	fmt.Fprintf(&b, "    \"numeric\": %q,\n", decisionHint)
	fmt.Fprintf(&b, "    \"referee\": %q\n", decisionHint)
	b.WriteString("  },\n")
	b.WriteString("  \"confidence\": \"low|medium|high|unknown\",\n")
	b.WriteString("  \"provenance_tags\": [\"REPRODUCED_FROM_SOURCE|INFERRED_ASSUMPTION|NEW_EXTENSION\"],\n")
	b.WriteString("  \"blockers\": [\"...\"],\n")
	fmt.Fprintf(&b, "  \"role_decision\": %q,\n", decisionHint)
	b.WriteString("  \"required_fixes\": [\"...\"]\n")
	b.WriteString("}\n\n")
	fmt.Fprintf(&b, "Strictly set from_role to %q.", string(r.Role))
	return b.String()
}

func plannerRequest(taskID, task string) roleRequest {
	return roleRequest{
		Role:         roles.Planner,
		Instructions: plannerInstructions,
		Context:      task,
		TaskID:       taskID,
		SubtaskID:    "planner-main",
		ToRole:       string(roles.Derivation),
	}
}

func sourceMinerRequest(taskID, task string, planner *contract.Message) roleRequest {
	return roleRequest{
		Role:         roles.SourceMiner,
		Instructions: sourceMinerInstructions,
		Context:      "User task:\n" + task + "\n\nPlanner summary:\n" + planner.ResultSummary,
		TaskID:       taskID,
		SubtaskID:    "source-plan",
		ToRole:       string(roles.Derivation),
	}
}

func verifierRequests(taskID, mode, derivation, lintMessage string, attempt int) []roleRequest {
	artifact := "Mode: " + mode + "\n\nDerivation artifact:\n" + derivation
	return []roleRequest{
		{
			Role:         roles.SymbolicVerifier,
			Instructions: symbolicInstructions,
			Context:      artifact + "\n\nqchi-lint result: " + lintMessage,
			TaskID:       taskID,
			SubtaskID:    fmt.Sprintf("symbolic-attempt-%d", attempt),
			ToRole:       string(roles.Integrator),
		},
		{
			Role:         roles.NumericVerifier,
			Instructions: numericInstructions,
			Context:      artifact,
			TaskID:       taskID,
			SubtaskID:    fmt.Sprintf("numeric-attempt-%d", attempt),
			ToRole:       string(roles.Integrator),
		},
		{
			Role:         roles.Referee,
			Instructions: refereeInstructions,
			Context:      artifact,
			TaskID:       taskID,
			SubtaskID:    fmt.Sprintf("referee-attempt-%d", attempt),
			ToRole:       string(roles.Integrator),
		},
	}
}

// IntegratorContext is the evidence handed to the integrator role.
type IntegratorContext struct {
	Mode              string            `json:"mode"`
	LintPass          bool              `json:"lint_pass"`
	LintMessage       string            `json:"lint_message"`
	SymbolicVerifier  *contract.Message `json:"symbolic_verifier"`
	NumericVerifier   *contract.Message `json:"numeric_verifier"`
	Referee           *contract.Message `json:"referee"`
	DerivationExcerpt string            `json:"derivation_excerpt"`
}

// Render encodes the context as indented JSON in field order.
func (c IntegratorContext) Render() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func integratorRequest(taskID, context string, attempt int) roleRequest {
	return roleRequest{
		Role:         roles.Integrator,
		Instructions: integratorInstructions,
		Context:      context,
		TaskID:       taskID,
		SubtaskID:    fmt.Sprintf("integrator-attempt-%d", attempt),
		ToRole:       "final",
	}
}

func attemptDisplayName(attempt int) string {
	return fmt.Sprintf("%s (Attempt %d)", roles.Derivation.DisplayName(), attempt)
}
