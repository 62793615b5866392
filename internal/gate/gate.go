// Package gate evaluates whether one attempt's lint verdict and verifier
// messages are good enough to promote the derivation.
package gate

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/qchi/internal/contract"
	"github.com/fyrsmithlabs/qchi/internal/lint"
	"github.com/fyrsmithlabs/qchi/internal/roles"
)

// Verdicts holds the verifier and integrator messages of one attempt keyed
// by the role that produced them.
type Verdicts map[roles.Role]*contract.Message

// NewVerdicts keys msgs by their from_role. Argument order is irrelevant.
func NewVerdicts(msgs ...*contract.Message) Verdicts {
	v := make(Verdicts, len(msgs))
	for _, m := range msgs {
		if m != nil {
			v[roles.Role(m.FromRole)] = m
		}
	}
	return v
}

// decision returns the role's decision, or unknown when no message exists.
func (v Verdicts) decision(role roles.Role) contract.Decision {
	if m, ok := v[role]; ok && m != nil {
		return m.RoleDecision
	}
	return contract.DecisionUnknown
}

func (v Verdicts) blockers(role roles.Role) []string {
	if m, ok := v[role]; ok && m != nil {
		return m.Blockers
	}
	return nil
}

// Input is everything a gate check may look at.
type Input struct {
	Lint     lint.Result
	Verdicts Verdicts
}

// Check is one independent promotion rule.
type Check interface {
	// Name returns the check identifier.
	Name() string

	// Check returns the issues found; empty means the rule is satisfied.
	Check(in Input) []string
}

// Result is the outcome of evaluating every check.
type Result struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

// Checks returns the promotion rules in reporting order.
func Checks() []Check {
	return []Check{
		LintCheck{},
		SymbolicCheck{},
		NumericCheck{},
		RefereeCheck{},
		IntegratorCheck{},
	}
}

// Evaluate applies every check and accumulates their issues. It is pure:
// the same lint verdict and set of messages always yield the same result.
func Evaluate(lr lint.Result, verdicts Verdicts) Result {
	in := Input{Lint: lr, Verdicts: verdicts}
	issues := []string{}
	for _, c := range Checks() {
		issues = append(issues, c.Check(in)...)
	}
	return Result{Passed: len(issues) == 0, Issues: issues}
}

// LintCheck requires a passing qchi-lint verdict.
type LintCheck struct{}

func (LintCheck) Name() string { return "lint" }

func (LintCheck) Check(in Input) []string {
	if in.Lint.Passed {
		return nil
	}
	return []string{"qchi-lint failed: " + in.Lint.Message}
}

// SymbolicCheck accepts pass, or deferred with at least one non-blank
// blocker. Blockers that are empty or only whitespace do not count.
type SymbolicCheck struct{}

func (SymbolicCheck) Name() string { return "symbolic" }

func (SymbolicCheck) Check(in Input) []string {
	d := in.Verdicts.decision(roles.SymbolicVerifier)
	if d == contract.DecisionPass {
		return nil
	}
	if d == contract.DecisionDeferred && hasEntry(in.Verdicts.blockers(roles.SymbolicVerifier)) {
		return nil
	}
	return []string{fmt.Sprintf("symbolic_verifier must be PASS or justified DEFERRED with blockers; got '%s'", d)}
}

// NumericCheck accepts pass or not_applicable.
type NumericCheck struct{}

func (NumericCheck) Name() string { return "numeric" }

func (NumericCheck) Check(in Input) []string {
	d := in.Verdicts.decision(roles.NumericVerifier)
	if d == contract.DecisionPass || d == contract.DecisionNotApplicable {
		return nil
	}
	return []string{fmt.Sprintf("numeric_verifier must be PASS or NOT_APPLICABLE; got '%s'", d)}
}

// RefereeCheck has no deferral escape.
type RefereeCheck struct{}

func (RefereeCheck) Name() string { return "referee" }

func (RefereeCheck) Check(in Input) []string {
	d := in.Verdicts.decision(roles.Referee)
	if d == contract.DecisionPass {
		return nil
	}
	return []string{fmt.Sprintf("referee must be PASS with no unresolved critical issues; got '%s'", d)}
}

// IntegratorCheck blocks promotion unless the integrator passed.
type IntegratorCheck struct{}

func (IntegratorCheck) Name() string { return "integrator" }

func (IntegratorCheck) Check(in Input) []string {
	d := in.Verdicts.decision(roles.Integrator)
	if d == contract.DecisionPass {
		return nil
	}
	return []string{fmt.Sprintf("integrator blocked promotion with decision '%s'", d)}
}

func hasEntry(items []string) bool {
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}
