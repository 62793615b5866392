package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/qchi/internal/contract"
	"github.com/fyrsmithlabs/qchi/internal/roles"
)

func TestDerivationContext(t *testing.T) {
	planner := &contract.Message{ResultSummary: "Split into two steps."}

	got := DerivationContext("Solve it", planner, nil, "")
	assert.Equal(t, "User task:\nSolve it\n\nPlanner summary:\nSplit into two steps.\n\nPlanner required outputs:\n(none provided)", got)

	planner.RequiredOutputs = []string{"E_0", "psi_0"}
	miner := &contract.Message{ResultSummary: "arXiv:1234.5678"}
	got = DerivationContext("Solve it", planner, miner, "- lint failed")
	parts := strings.Split(got, "\n\n")
	require.Len(t, parts, 5)
	assert.Equal(t, "Planner required outputs:\nE_0\npsi_0", parts[2])
	assert.Equal(t, "Source miner summary:\narXiv:1234.5678", parts[3])
	assert.Equal(t, "Prior gate failures to fix:\n- lint failed", parts[4])
}

func TestDerivationInstructions(t *testing.T) {
	base := DerivationInstructions("")
	assert.Contains(t, base, "## Problem framing")
	assert.NotContains(t, base, "FAILED POLICY GATES")

	withFeedback := DerivationInstructions("- referee must be PASS")
	assert.True(t, strings.HasPrefix(withFeedback, base))
	assert.True(t, strings.HasSuffix(withFeedback,
		"\n\nYOUR LAST ATTEMPT FAILED POLICY GATES:\n- referee must be PASS\nFix every failing item and regenerate a fully compliant artifact."))
}

func TestMarkdownPrompt(t *testing.T) {
	p := MarkdownPrompt(attemptDisplayName(2), "Do it.", "ctx")
	assert.True(t, strings.HasPrefix(p, "You are the DERIVATION (ATTEMPT 2) agent"))
	assert.True(t, strings.HasSuffix(p, "TASK CONTEXT:\nctx\n\nOutput only the requested markdown artifact."))
	assert.NotContains(t, p, "Strictly set from_role")
}

func TestStructuredPrompt(t *testing.T) {
	reqs := verifierRequests("qchi-1", "physics_solve", "## Derivation", "Pass", 3)
	require.Len(t, reqs, 3)

	p := reqs[0].StructuredPrompt()
	assert.True(t, strings.HasPrefix(p, "You are the SYMBOLIC VERIFIER agent"))
	assert.Contains(t, p, "qchi-lint result: Pass")
	assert.Contains(t, p, `"subtask_id": "symbolic-attempt-3",`)
	assert.Contains(t, p, `"to_role": "integrator",`)
	assert.True(t, strings.HasSuffix(p, `Strictly set from_role to "symbolic_verifier".`))

	assert.Equal(t, roles.NumericVerifier, reqs[1].Role)
	assert.NotContains(t, reqs[1].Context, "qchi-lint result")
	assert.Equal(t, "referee-attempt-3", reqs[2].SubtaskID)

	integ := integratorRequest("qchi-1", "{}", 3)
	assert.Equal(t, "final", integ.ToRole)
	assert.Equal(t, "integrator-attempt-3", integ.SubtaskID)
}

func TestIntegratorContext_RenderKeepsFieldOrder(t *testing.T) {
	out, err := IntegratorContext{
		Mode:              "physics_solve",
		LintPass:          true,
		LintMessage:       "Pass",
		DerivationExcerpt: "<E> = hbar omega / 2",
	}.Render()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "{\n  \"mode\": \"physics_solve\",\n  \"lint_pass\": true,"))
	assert.Contains(t, out, `"symbolic_verifier": null`)
	assert.Contains(t, out, `"derivation_excerpt": "<E> = hbar omega / 2"`)
	assert.False(t, strings.HasSuffix(out, "\n"))
}
