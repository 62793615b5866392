package orchestrator

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/qchi/internal/contract"
	"github.com/fyrsmithlabs/qchi/internal/gate"
	"github.com/fyrsmithlabs/qchi/internal/learning"
	"github.com/fyrsmithlabs/qchi/internal/lint"
	"github.com/fyrsmithlabs/qchi/internal/roles"
)

// Status is the final outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Failure reasons recorded in summaries and learning records.
const (
	ReasonPolicyFailure             = "policy_failure"
	ReasonDerivationExecutionFailed = "derivation_execution_failed"
	ReasonMaxRetriesExceeded        = "max_retries_exceeded"
	ReasonEmptyDerivation           = "empty_derivation"
	ReasonInternal                  = "internal_error"
)

// Class separates policy failures from execution failures.
type Class string

const (
	// ClassPolicy covers invalid pipelines, roles that could not produce a
	// valid message and internal errors. Exit code 2.
	ClassPolicy Class = "policy"

	// ClassExecution covers runs that exhausted the retry budget. Exit code 1.
	ClassExecution Class = "execution"
)

// AbortError ends a run without an accepted derivation.
type AbortError struct {
	Class   Class
	Reason  string
	Message string
	Err     error
}

func (e *AbortError) Error() string {
	return e.Message
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// ExitCode maps the failure class to the process exit status.
func (e *AbortError) ExitCode() int {
	if e.Class == ClassPolicy {
		return 2
	}
	return 1
}

// ExitCode returns the process exit status for the error returned by
// Engine.Run: 0 for nil, the abort class code, or 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae.ExitCode()
	}
	return 1
}

func policyFailure(reason, msg string, err error) *AbortError {
	return &AbortError{Class: ClassPolicy, Reason: reason, Message: msg, Err: err}
}

func executionFailure(reason, msg string) *AbortError {
	return &AbortError{Class: ClassExecution, Reason: reason, Message: msg}
}

// Run is the state of one orchestration.
type Run struct {
	ID         string
	TaskID     string
	Mode       string
	Host       string
	Task       string
	MaxRetries int
	Pipeline   []roles.Role
	Dir        string

	StartedAt  time.Time
	FinishedAt time.Time

	State    State
	Status   Status
	Attempts []*Attempt

	// AcceptedAttempt is the 1-based index of the accepted attempt, nil
	// when none was accepted.
	AcceptedAttempt *int

	// Derivation is the accepted derivation text.
	Derivation string

	FailureReason  string
	FailureMessage string

	// Learning reports what the learning recorder wrote.
	Learning learning.Report

	planner     *contract.Message
	sourceMiner *contract.Message
}

// Attempt is one derivation cycle.
type Attempt struct {
	Index      int
	Derivation string
	Lint       lint.Result
	Messages   gate.Verdicts
	Gate       gate.Result

	// Feedback is the corrective text produced when the attempt failed and
	// another attempt followed.
	Feedback string
}

// Issues returns the gate issues raised against the attempt.
func (a *Attempt) Issues() []string {
	return a.Gate.Issues
}
