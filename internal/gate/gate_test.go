package gate

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/qchi/internal/contract"
	"github.com/fyrsmithlabs/qchi/internal/lint"
	"github.com/fyrsmithlabs/qchi/internal/roles"
)

var passingLint = lint.Result{Passed: true, Kind: lint.KindPass, Message: "Pass"}

func msg(role roles.Role, d contract.Decision, blockers ...string) *contract.Message {
	return &contract.Message{
		FromRole:      string(role),
		ResultSummary: "summary",
		RoleDecision:  d,
		Blockers:      blockers,
	}
}

func TestChecks_Names(t *testing.T) {
	var names []string
	for _, c := range Checks() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"lint", "symbolic", "numeric", "referee", "integrator"}, names)
}

func TestEvaluate_JustifiedDeferPasses(t *testing.T) {
	res := Evaluate(passingLint, NewVerdicts(
		msg(roles.SymbolicVerifier, contract.DecisionDeferred, " ", "x"),
		msg(roles.NumericVerifier, contract.DecisionNotApplicable),
		msg(roles.Referee, contract.DecisionPass),
		msg(roles.Integrator, contract.DecisionPass),
	))
	assert.True(t, res.Passed)
	assert.Empty(t, res.Issues)
}

func TestEvaluate_RefereeCannotDefer(t *testing.T) {
	res := Evaluate(passingLint, NewVerdicts(
		msg(roles.SymbolicVerifier, contract.DecisionDeferred, "x"),
		msg(roles.NumericVerifier, contract.DecisionNotApplicable),
		msg(roles.Referee, contract.DecisionDeferred, "needs source"),
		msg(roles.Integrator, contract.DecisionPass),
	))
	assert.False(t, res.Passed)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "referee")
	assert.Equal(t, "referee must be PASS with no unresolved critical issues; got 'deferred'", res.Issues[0])
}

func TestEvaluate_UnjustifiedDefer(t *testing.T) {
	for _, blockers := range [][]string{nil, {""}, {"  "}, {"", "\t\n"}} {
		res := Evaluate(passingLint, NewVerdicts(
			msg(roles.SymbolicVerifier, contract.DecisionDeferred, blockers...),
			msg(roles.NumericVerifier, contract.DecisionPass),
			msg(roles.Referee, contract.DecisionPass),
			msg(roles.Integrator, contract.DecisionPass),
		))
		assert.Equal(t, []string{"symbolic_verifier must be PASS or justified DEFERRED with blockers; got 'deferred'"}, res.Issues)
	}
}

func TestEvaluate_AccumulatesAllIssues(t *testing.T) {
	lr := lint.Result{Kind: lint.KindFail, Message: "missing ## References"}
	res := Evaluate(lr, NewVerdicts(
		msg(roles.SymbolicVerifier, contract.DecisionFail),
		msg(roles.NumericVerifier, contract.DecisionDeferred),
		msg(roles.Referee, contract.DecisionFail),
		msg(roles.Integrator, contract.DecisionUnknown),
	))
	assert.False(t, res.Passed)
	assert.Equal(t, []string{
		"qchi-lint failed: missing ## References",
		"symbolic_verifier must be PASS or justified DEFERRED with blockers; got 'fail'",
		"numeric_verifier must be PASS or NOT_APPLICABLE; got 'deferred'",
		"referee must be PASS with no unresolved critical issues; got 'fail'",
		"integrator blocked promotion with decision 'unknown'",
	}, res.Issues)
}

func TestEvaluate_UnavailableLintFails(t *testing.T) {
	lr := lint.Result{Kind: lint.KindUnavailable, Message: "qchi-lint binary not found at /x"}
	res := Evaluate(lr, NewVerdicts(
		msg(roles.SymbolicVerifier, contract.DecisionPass),
		msg(roles.NumericVerifier, contract.DecisionPass),
		msg(roles.Referee, contract.DecisionPass),
		msg(roles.Integrator, contract.DecisionPass),
	))
	assert.Equal(t, []string{"qchi-lint failed: qchi-lint binary not found at /x"}, res.Issues)
}

func TestEvaluate_MissingVerdictIsUnknown(t *testing.T) {
	res := Evaluate(passingLint, NewVerdicts(
		msg(roles.SymbolicVerifier, contract.DecisionPass),
		msg(roles.NumericVerifier, contract.DecisionPass),
		msg(roles.Referee, contract.DecisionPass),
	))
	assert.Equal(t, []string{"integrator blocked promotion with decision 'unknown'"}, res.Issues)
}

func permutations(in []*contract.Message) [][]*contract.Message {
	if len(in) <= 1 {
		return [][]*contract.Message{append([]*contract.Message(nil), in...)}
	}
	var out [][]*contract.Message
	for i := range in {
		rest := make([]*contract.Message, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]*contract.Message{in[i]}, p...))
		}
	}
	return out
}

func TestEvaluate_OrderIndependent(t *testing.T) {
	msgs := []*contract.Message{
		msg(roles.SymbolicVerifier, contract.DecisionDeferred),
		msg(roles.NumericVerifier, contract.DecisionPass),
		msg(roles.Referee, contract.DecisionFail),
		msg(roles.Integrator, contract.DecisionPass),
	}
	want := Evaluate(passingLint, NewVerdicts(msgs...))
	wantSet := append([]string(nil), want.Issues...)
	sort.Strings(wantSet)

	perms := permutations(msgs)
	require.Len(t, perms, 24)
	for _, p := range perms {
		got := Evaluate(passingLint, NewVerdicts(p...))
		assert.Equal(t, want.Passed, got.Passed)
		gotSet := append([]string(nil), got.Issues...)
		sort.Strings(gotSet)
		assert.Equal(t, wantSet, gotSet)
	}
}
