package learning

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/qchi/internal/sanitize"
	"github.com/fyrsmithlabs/qchi/internal/secrets"
)

func lines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := strings.TrimRight(string(data), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func sampleRecord() Record {
	two := 2
	return Record{
		AcceptedAttempt: &two,
		Host:            "gemini",
		LearningTrack:   "physics",
		MaxRetries:      3,
		Mode:            "physics_solve",
		QualityGatePass: true,
		RunDir:          "/tmp/run",
		RunID:           "run-1",
		Status:          "completed",
		Task:            "Derive <E> for the harmonic oscillator",
		TaskID:          "qchi-1700000000",
		TS:              "2026-10-15T12:00:00Z",
	}
}

func TestInferTrack(t *testing.T) {
	tests := map[string]Track{
		"physics_solve":      TrackPhysics,
		"paper_reproduction": TrackWriting,
		"Draft-Manuscript":   TrackWriting,
		"parameter sweep":    TrackCodingPlotting,
		"plot_results":       TrackCodingPlotting,
		"unfinished_project": TrackPhysics,
	}
	for mode, want := range tests {
		assert.Equal(t, want, InferTrack(mode), mode)
	}
}

func TestParseTrack(t *testing.T) {
	tr, err := ParseTrack("coding-plotting")
	require.NoError(t, err)
	assert.Equal(t, TrackCodingPlotting, tr)

	tr, err = ParseTrack("  ")
	require.NoError(t, err)
	assert.Empty(t, tr)

	_, err = ParseTrack("chemistry")
	assert.ErrorContains(t, err, "unknown learning track")
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()

	p, err := Resolve(dir, "", TrackPhysics)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "runs.jsonl"), p.Global)
	assert.Empty(t, p.Project)

	p, err = Resolve(dir, "ising", TrackWriting)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "projects", "ising", "writing", "runs.jsonl"), p.Project)

	_, err = Resolve(dir, "../escape", TrackPhysics)
	assert.True(t, errors.Is(err, sanitize.ErrInvalidProjectID))
}

func TestEnsureProjectLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "projects", "ising")
	require.NoError(t, EnsureProjectLayout(root))

	for _, track := range Tracks() {
		for _, name := range []string{RunsFile, EvalsFile, RegressionsFile} {
			info, err := os.Stat(filepath.Join(root, string(track), name))
			require.NoError(t, err)
			assert.Zero(t, info.Size())
		}
		data, err := os.ReadFile(filepath.Join(root, string(track), HeuristicsFile))
		require.NoError(t, err)
		assert.Equal(t, "version: 1\nlast_updated: null\nheuristics: []\n", string(data))
	}

	// Existing content survives a second bootstrap.
	runs := filepath.Join(root, "physics", RunsFile)
	require.NoError(t, os.WriteFile(runs, []byte("{}\n"), 0o644))
	require.NoError(t, EnsureProjectLayout(root))
	assert.Equal(t, []string{"{}"}, lines(t, runs))

	h, err := ReadHeuristics(filepath.Join(root, "writing", HeuristicsFile))
	require.NoError(t, err)
	assert.Equal(t, 1, h.Version)
	assert.Nil(t, h.LastUpdated)
	assert.Empty(t, h.Heuristics)
}

func TestRecord_LineHasSortedKeys(t *testing.T) {
	line, err := sampleRecord().Line()
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(line), "\n"))
	assert.Equal(t, 1, strings.Count(string(line), "\n"))
	assert.Contains(t, string(line), `"task":"Derive <E> for the harmonic oscillator"`)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(line, &generic))
	assert.Len(t, generic, 15)

	// Re-encoding a map sorts keys; the struct encoding must already match.
	resorted, err := json.Marshal(generic)
	require.NoError(t, err)
	assert.JSONEq(t, string(resorted), string(line))
	assert.True(t, strings.HasPrefix(string(line), `{"accepted_attempt":2,"host":"gemini","learning_track":"physics"`))
}

func TestRecorder_WritesGlobalAndProject(t *testing.T) {
	dir := t.TempDir()
	paths, err := Resolve(dir, "ising", TrackPhysics)
	require.NoError(t, err)

	rep := NewRecorder(paths).Append(sampleRecord())
	assert.False(t, rep.Skipped)
	assert.Empty(t, rep.Errors)
	assert.Equal(t, []string{paths.Global, paths.Project}, rep.Written)
	assert.Len(t, lines(t, paths.Global), 1)
	assert.Len(t, lines(t, paths.Project), 1)
}

func TestRecorder_Latch(t *testing.T) {
	paths, err := Resolve(t.TempDir(), "", TrackPhysics)
	require.NoError(t, err)
	r := NewRecorder(paths)

	first := r.Append(sampleRecord())
	second := r.Append(sampleRecord())

	assert.False(t, first.Skipped)
	assert.True(t, second.Skipped)
	assert.True(t, r.Recorded())
	assert.Len(t, lines(t, paths.Global), 1)
}

func TestRecorder_LatchUnderConcurrency(t *testing.T) {
	paths, err := Resolve(t.TempDir(), "", TrackPhysics)
	require.NoError(t, err)
	r := NewRecorder(paths)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Append(sampleRecord())
		}()
	}
	wg.Wait()
	assert.Len(t, lines(t, paths.Global), 1)
}

func TestRecorder_FailureIsReportedNotRetried(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// A file where a directory is expected makes the project append fail.
	paths := Paths{Global: filepath.Join(dir, "runs.jsonl"), Project: filepath.Join(blocker, "physics", "runs.jsonl")}
	r := NewRecorder(paths)

	rep := r.Append(sampleRecord())
	assert.Equal(t, []string{paths.Global}, rep.Written)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0].Error(), paths.Project)

	assert.True(t, r.Append(sampleRecord()).Skipped)
	assert.Len(t, lines(t, paths.Global), 1)
}

func TestRecorder_DetachedAndScrubbed(t *testing.T) {
	paths, err := Resolve(t.TempDir(), "", TrackPhysics)
	require.NoError(t, err)
	scrubber, err := secrets.New()
	require.NoError(t, err)

	rec := sampleRecord()
	rec.Task = "use token ghp_" + strings.Repeat("x", 36)
	rec.Message = "ok"
	NewRecorder(paths, WithScrubber(scrubber)).Append(rec)

	// Mutating the caller's value afterwards has no effect on the log.
	*rec.AcceptedAttempt = 99

	var got Record
	require.NoError(t, json.Unmarshal([]byte(lines(t, paths.Global)[0]), &got))
	assert.Equal(t, "use token [REDACTED]", got.Task)
	require.NotNil(t, got.AcceptedAttempt)
	assert.Equal(t, 2, *got.AcceptedAttempt)
}

func TestRecorder_NullAcceptedAttempt(t *testing.T) {
	paths, err := Resolve(t.TempDir(), "", TrackPhysics)
	require.NoError(t, err)

	rec := sampleRecord()
	rec.AcceptedAttempt = nil
	rec.Status = "failed"
	rec.Reason = "max_retries_exceeded"
	NewRecorder(paths).Append(rec)

	assert.Contains(t, lines(t, paths.Global)[0], `"accepted_attempt":null`)
}
