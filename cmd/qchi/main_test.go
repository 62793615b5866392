package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/qchi/internal/artifact"
	"github.com/fyrsmithlabs/qchi/internal/hooks"
	"github.com/fyrsmithlabs/qchi/internal/logging"
)

// resetFlags restores every flag to its default so executions do not leak
// state into each other.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

// isolate points HOME at a temp dir and clears QCHI_ overrides.
func isolate(t *testing.T) string {
	t.Helper()
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "QCHI_") {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}
	return home
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures need a POSIX shell")
	}
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestNormalizeArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
		ok   bool
	}{
		{name: "empty", in: nil, want: nil, ok: false},
		{name: "subcommand", in: []string{"doctor", "--host", "codex"}, want: []string{"doctor", "--host", "codex"}, ok: true},
		{name: "legacy flags", in: []string{"--mode", "derive_only", "--task", "x"}, want: []string{"run", "--mode", "derive_only", "--task", "x"}, ok: true},
		{name: "help", in: []string{"--help"}, want: []string{"--help"}, ok: true},
		{name: "short help", in: []string{"-h"}, want: []string{"-h"}, ok: true},
		{name: "unknown word", in: []string{"bogus"}, want: []string{"bogus"}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeArgs(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
		assert.NotEmpty(t, cmd.Short, "%s should have a Short description", cmd.Name())
	}
	for _, want := range []string{"run", "doctor", "lint", "version"} {
		assert.True(t, names[want], "%s command not registered", want)
	}
}

func TestExecute_NoArgsPrintsHelp(t *testing.T) {
	isolate(t)
	code, stdout, _ := run()
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "qchi")
	assert.Contains(t, stdout, "Available Commands")
}

func TestExecute_UnknownCommand(t *testing.T) {
	isolate(t)
	code, _, stderr := run("bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestRun_MissingInput(t *testing.T) {
	isolate(t)
	code, _, stderr := run("--mode", "derive_only")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "missing run input: task")
}

func TestRun_InvalidMaxRetries(t *testing.T) {
	isolate(t)
	code, _, stderr := run("run", "--mode", "derive_only", "--task", "x", "--max-retries", "0")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--max-retries must be a positive integer")
}

func TestRun_UnknownHost(t *testing.T) {
	isolate(t)
	code, _, stderr := run("run", "--host", "nope", "--mode", "derive_only", "--task", "x")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "nope")
}

const fakeHostScript = `role=$(printf '%s\n' "$2" | sed -n 's/^Strictly set from_role to "\(.*\)"\.$/\1/p')
if [ -z "$role" ]; then
  printf '## Problem framing\nFree particle.\n\n## Final result\nE = p^2/2m\n'
  exit 0
fi
printf '{"task_id":"t","subtask_id":"s","from_role":"%s","to_role":"next","assumptions":[],"required_outputs":[],"result_summary":"%s ok","verification_status":{"symbolic":"pass","numeric":"pass","referee":"pass"},"confidence":"high","provenance_tags":[],"blockers":[],"role_decision":"pass","required_fixes":[]}\n' "$role" "$role"
`

func TestRun_EndToEndAccepted(t *testing.T) {
	requireUnix(t)
	isolate(t)

	bin := t.TempDir()
	writeScript(t, bin, "gemini", fakeHostScript)
	lintBin := writeScript(t, bin, "qchi-lint", "echo Pass\n")
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	work := t.TempDir()
	runsDir := filepath.Join(work, "runs")
	learningDir := filepath.Join(work, "learning")
	output := filepath.Join(work, "out", "derivation.md")

	code, stdout, stderr := run(
		"--mode", "derive_only",
		"--task", "Derive the free particle energy",
		"--lint-bin", lintBin,
		"--run-artifacts-dir", runsDir,
		"--learning-dir", learningDir,
		"--output-file", output,
	)
	require.Equal(t, 0, code, "stdout:\n%s\nstderr:\n%s", stdout, stderr)
	assert.Contains(t, stdout, "QCHI Orchestration Complete.")

	saved, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(saved), "## Final result")

	entries, err := os.ReadDir(runsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, err := os.ReadFile(filepath.Join(runsDir, entries[0].Name(), artifact.FinalDir, artifact.SummaryFile))
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, "success", summary["status"])

	log, err := os.ReadFile(filepath.Join(learningDir, "runs.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(log), "\n"))
}

func TestRun_PolicyFailureExitCode(t *testing.T) {
	requireUnix(t)
	isolate(t)

	bin := t.TempDir()
	writeScript(t, bin, "gemini", "echo 'not json at all'\n")
	lintBin := writeScript(t, bin, "qchi-lint", "echo Pass\n")
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	work := t.TempDir()
	code, stdout, _ := run(
		"run",
		"--mode", "derive_only",
		"--task", "x",
		"--lint-bin", lintBin,
		"--run-artifacts-dir", filepath.Join(work, "runs"),
		"--learning-dir", filepath.Join(work, "learning"),
	)
	assert.Equal(t, 2, code)
	assert.Contains(t, stdout, "[POLICY FAILURE]")
}

func TestRun_InvalidLogLevel(t *testing.T) {
	isolate(t)
	code, _, stderr := run("run", "--log-level", "loud", "--mode", "derive_only", "--task", "x")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `invalid --log-level "loud"`)
}

func TestWarnDegraded(t *testing.T) {
	logger := logging.NewTestLogger()
	ctx := context.Background()

	warnDegraded(ctx, logger.Logger, nil)
	assert.Empty(t, logger.All())

	warnDegraded(ctx, logger.Logger, errors.New("tracer provider: connection refused"))
	logger.AssertLogged(t, zapcore.WarnLevel, "telemetry degraded")
	logger.AssertField(t, "telemetry degraded", "error", "tracer provider: connection refused")
}

func TestLoadConfig_LogLevelAndLintBin(t *testing.T) {
	isolate(t)
	lintBin, logLevel = "/opt/qchi-lint", "trace"

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/qchi-lint", cfg.Lint.Bin)
	assert.Equal(t, logging.TraceLevel, cfg.Logging.Level)
}

func TestVersion(t *testing.T) {
	isolate(t)
	code, stdout, _ := run("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "qchi-cli "+cliVersion)
	assert.Contains(t, stdout, "git: ")
}

func TestGitRevision_NotARepo(t *testing.T) {
	assert.Equal(t, "unknown", gitRevision(context.Background(), t.TempDir()))
}

func TestLifecycleHooks_LogThroughContextLogger(t *testing.T) {
	tl := logging.NewTestLogger()
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	m := lifecycleHooks()
	require.NoError(t, m.Execute(ctx, hooks.HookAttemptFailed, hooks.Event{TaskID: "qchi-1-abc", Attempt: 1, Issues: []string{"lint failed"}}))
	require.NoError(t, m.Execute(ctx, hooks.HookRunEnd, hooks.Event{TaskID: "qchi-1-abc", Status: "failed", Reason: "max_retries_exceeded"}))

	tl.AssertField(t, "attempt rejected", "attempt", int64(1))
	tl.AssertField(t, "run finished", "reason", "max_retries_exceeded")
}
