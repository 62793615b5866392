package orchestrator

import "fmt"

// State is a named stage of the retry controller.
type State string

const (
	// StatePlanning runs the planner and, when piped, the source miner.
	StatePlanning State = "planning"

	// StateDeriving invokes the derivation role for the current attempt.
	StateDeriving State = "deriving"

	// StateGating runs lint, the verifier roles and the quality gate.
	StateGating State = "gating"

	// StateRetrying pauses before the next attempt.
	StateRetrying State = "retrying"

	// StateAccepted means an attempt passed the quality gate.
	StateAccepted State = "accepted"

	// StateExhausted means every attempt failed the quality gate.
	StateExhausted State = "exhausted"

	// StatePolicyFailure means a role could not produce a valid message or
	// the pipeline was invalid.
	StatePolicyFailure State = "policy_failure"
)

// IsTerminal reports whether no further transition may leave s.
func IsTerminal(s State) bool {
	switch s {
	case StateAccepted, StateExhausted, StatePolicyFailure:
		return true
	default:
		return false
	}
}

// Transition validates a move from one state to another.
func Transition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	return nil
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StatePlanning:
		return to == StateDeriving || to == StatePolicyFailure
	case StateDeriving:
		return to == StateGating || to == StatePolicyFailure
	case StateGating:
		return to == StateAccepted || to == StateRetrying || to == StateExhausted || to == StatePolicyFailure
	case StateRetrying:
		return to == StateDeriving
	default:
		return false
	}
}
