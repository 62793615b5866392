// Package lint runs the external qchi-lint binary against derivation artifacts.
package lint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
)

// Kind classifies a lint verdict.
type Kind string

const (
	// KindPass means the binary exited 0.
	KindPass Kind = "pass"

	// KindFail means the binary ran and reported rule violations.
	KindFail Kind = "fail"

	// KindUnavailable means the binary is missing or not executable.
	KindUnavailable Kind = "unavailable"

	// KindError means the binary could not be run for another reason.
	KindError Kind = "error"
)

// BuildHint tells the operator how to produce the lint binary.
const BuildHint = "cargo build --manifest-path tools/qchi-lint/Cargo.toml"

// Result is the verdict for one artifact.
type Result struct {
	Passed  bool   `json:"passed"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Linter checks a markdown artifact.
type Linter interface {
	Lint(ctx context.Context, content string) Result
}

// Runner invokes the qchi-lint binary at Bin.
type Runner struct {
	Bin string
}

// NewRunner creates a Runner for the binary at bin.
func NewRunner(bin string) *Runner {
	return &Runner{Bin: bin}
}

// Available reports whether the binary exists and is executable. The
// returned result is only meaningful when ok is false.
func (r *Runner) Available() (Result, bool) {
	info, err := os.Stat(r.Bin)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return unavailable(fmt.Sprintf("qchi-lint binary not found at %s. Build it first: %s", r.Bin, BuildHint)), false
		}
		return unavailable(fmt.Sprintf("qchi-lint binary at %s cannot be inspected: %v", r.Bin, err)), false
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return unavailable(fmt.Sprintf("qchi-lint binary at %s is not executable", r.Bin)), false
	}
	return Result{}, true
}

// Lint writes content to a temporary markdown file and runs
// `<bin> report --file <tmp>`. It never returns an error; every failure
// is folded into the Result.
func (r *Runner) Lint(ctx context.Context, content string) Result {
	if res, ok := r.Available(); !ok {
		return res
	}

	tmp, err := os.CreateTemp("", "qchi-lint-*.md")
	if err != nil {
		return failedToRun(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return failedToRun(err)
	}
	if err := tmp.Close(); err != nil {
		return failedToRun(err)
	}

	var stdout, stderr bytes.Buffer
	code, err := r.Exec(ctx, &stdout, &stderr, "report", "--file", tmp.Name())
	if err != nil {
		return failedToRun(err)
	}

	out := strings.TrimSpace(stdout.String())
	if code == 0 {
		if out == "" {
			out = "Pass"
		}
		return Result{Passed: true, Kind: KindPass, Message: out}
	}

	details := strings.TrimSpace(stderr.String())
	if details == "" {
		details = out
	}
	if details == "" {
		details = fmt.Sprintf("qchi-lint exited with status %d", code)
	}
	return Result{Kind: KindFail, Message: details}
}

// Exec runs the binary with args, streaming output to stdout and stderr.
// A nonzero exit is reported through the exit code, not the error.
func (r *Runner) Exec(ctx context.Context, stdout, stderr io.Writer, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, r.Bin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to execute %s: %w", r.Bin, err)
}

func unavailable(msg string) Result {
	return Result{Kind: KindUnavailable, Message: msg}
}

func failedToRun(err error) Result {
	return Result{Kind: KindError, Message: fmt.Sprintf("Failed to run qchi-lint: %v", err)}
}
