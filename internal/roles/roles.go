// Package roles resolves the ordered agent pipeline required for an execution mode.
package roles

import (
	"errors"
	"fmt"
	"strings"
)

// Role names a function in the orchestration pipeline.
type Role string

const (
	// Planner decomposes the task into verifiable subtasks.
	Planner Role = "planner"

	// SourceMiner builds a source strategy for reproduction tasks.
	SourceMiner Role = "source_miner"

	// Derivation produces the markdown derivation artifact.
	Derivation Role = "derivation"

	// SymbolicVerifier checks symbolic transformations.
	SymbolicVerifier Role = "symbolic_verifier"

	// NumericVerifier checks numeric consistency.
	NumericVerifier Role = "numeric_verifier"

	// Referee attempts to falsify the result.
	Referee Role = "referee"

	// Integrator applies the promotion policy.
	Integrator Role = "integrator"
)

// ModePaperReproduction is the only mode that requires the source miner.
const ModePaperReproduction = "paper_reproduction"

// ErrInvalidPipeline is returned when a pipeline misses a role its mode requires.
var ErrInvalidPipeline = errors.New("invalid role pipeline")

var displayNames = map[Role]string{
	Planner:          "Planner",
	SourceMiner:      "Source Miner",
	Derivation:       "Derivation",
	SymbolicVerifier: "Symbolic Verifier",
	NumericVerifier:  "Numeric Verifier",
	Referee:          "Referee",
	Integrator:       "Integrator",
}

// Mandatory returns the roles every pipeline must contain, in pipeline order.
func Mandatory() []Role {
	return []Role{Planner, Derivation, SymbolicVerifier, NumericVerifier, Referee, Integrator}
}

// DisplayName returns the human-readable role name.
func (r Role) DisplayName() string {
	if name, ok := displayNames[r]; ok {
		return name
	}
	return string(r)
}

func (r Role) String() string {
	return string(r)
}

// CanonicalMode lower-cases a mode and maps spaces and hyphens to underscores,
// so "Paper-Reproduction" and "paper reproduction" resolve identically.
func CanonicalMode(mode string) string {
	key := strings.ToLower(strings.TrimSpace(mode))
	key = strings.ReplaceAll(key, "-", "_")
	return strings.ReplaceAll(key, " ", "_")
}

// Resolve returns the ordered roles required for mode.
func Resolve(mode string) []Role {
	pipeline := Mandatory()
	if CanonicalMode(mode) == ModePaperReproduction {
		pipeline = append(pipeline[:1], append([]Role{SourceMiner}, pipeline[1:]...)...)
	}
	return pipeline
}

// Contains reports whether role is part of pipeline.
func Contains(pipeline []Role, role Role) bool {
	for _, r := range pipeline {
		if r == role {
			return true
		}
	}
	return false
}

// Check validates that pipeline satisfies the requirements of mode.
func Check(mode string, pipeline []Role) error {
	var missing []string
	for _, role := range Mandatory() {
		if !Contains(pipeline, role) {
			missing = append(missing, string(role))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing mandatory roles: %s", ErrInvalidPipeline, strings.Join(missing, ", "))
	}
	if CanonicalMode(mode) == ModePaperReproduction && !Contains(pipeline, SourceMiner) {
		return fmt.Errorf("%w: paper_reproduction mode requires source_miner role", ErrInvalidPipeline)
	}
	return nil
}

// Names converts a pipeline to plain strings for serialization.
func Names(pipeline []Role) []string {
	names := make([]string, len(pipeline))
	for i, r := range pipeline {
		names[i] = string(r)
	}
	return names
}
