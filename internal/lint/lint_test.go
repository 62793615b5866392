package lint

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script standing in for qchi-lint.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fakes require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "qchi-lint")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRunner_Lint(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   Result
	}{
		{
			name:   "pass with message",
			script: `echo "All 12 rules satisfied"`,
			want:   Result{Passed: true, Kind: KindPass, Message: "All 12 rules satisfied"},
		},
		{
			name:   "pass without output",
			script: `exit 0`,
			want:   Result{Passed: true, Kind: KindPass, Message: "Pass"},
		},
		{
			name:   "fail prefers stderr",
			script: "echo out\necho 'missing ## References' >&2\nexit 3",
			want:   Result{Kind: KindFail, Message: "missing ## References"},
		},
		{
			name:   "fail falls back to stdout",
			script: "echo 'unit check absent'\nexit 1",
			want:   Result{Kind: KindFail, Message: "unit check absent"},
		},
		{
			name:   "fail without output",
			script: `exit 4`,
			want:   Result{Kind: KindFail, Message: "qchi-lint exited with status 4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(writeScript(t, tt.script))
			assert.Equal(t, tt.want, r.Lint(context.Background(), "# derivation\n"))
		})
	}
}

func TestRunner_Lint_ReceivesArtifact(t *testing.T) {
	// The fake echoes the args and the file it was handed.
	bin := writeScript(t, `echo "$1 $2"; cat "$3"`)
	res := NewRunner(bin).Lint(context.Background(), "## Final result\nE = mc^2")

	require.True(t, res.Passed)
	assert.Equal(t, "report --file\n## Final result\nE = mc^2", res.Message)
}

func TestRunner_Lint_CleansUpTempFile(t *testing.T) {
	record := filepath.Join(t.TempDir(), "path.txt")
	bin := writeScript(t, `printf %s "$3" > `+record)

	NewRunner(bin).Lint(context.Background(), "x")

	path, err := os.ReadFile(record)
	require.NoError(t, err)
	_, err = os.Stat(string(path))
	assert.True(t, os.IsNotExist(err))
}

func TestRunner_Unavailable(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		bin := filepath.Join(t.TempDir(), "nope")
		res := NewRunner(bin).Lint(context.Background(), "x")
		assert.False(t, res.Passed)
		assert.Equal(t, KindUnavailable, res.Kind)
		assert.Contains(t, res.Message, "qchi-lint binary not found at "+bin)
		assert.Contains(t, res.Message, BuildHint)
	})

	t.Run("not executable", func(t *testing.T) {
		bin := filepath.Join(t.TempDir(), "qchi-lint")
		require.NoError(t, os.WriteFile(bin, []byte("data"), 0o644))
		res := NewRunner(bin).Lint(context.Background(), "x")
		assert.Equal(t, KindUnavailable, res.Kind)
		assert.Contains(t, res.Message, "is not executable")
	})

	t.Run("directory", func(t *testing.T) {
		res := NewRunner(t.TempDir()).Lint(context.Background(), "x")
		assert.Equal(t, KindUnavailable, res.Kind)
	})
}

func TestRunner_Exec(t *testing.T) {
	bin := writeScript(t, "echo \"$@\"\necho warn >&2\nexit 2")
	var stdout, stderr bytes.Buffer

	code, err := NewRunner(bin).Exec(context.Background(), &stdout, &stderr, "jsonl", "--kind", "runs")
	require.NoError(t, err)
	assert.Equal(t, 2, code)
	assert.Equal(t, "jsonl --kind runs\n", stdout.String())
	assert.Equal(t, "warn\n", stderr.String())
}
