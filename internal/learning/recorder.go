// Package learning appends one flattened record per run to the learning logs.
package learning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fyrsmithlabs/qchi/internal/secrets"
)

// Record is the flattened, detached summary of a finished run. Fields are
// declared in key order so the encoded line has sorted keys.
type Record struct {
	AcceptedAttempt *int   `json:"accepted_attempt"`
	Host            string `json:"host"`
	LearningTrack   string `json:"learning_track"`
	MaxRetries      int    `json:"max_retries"`
	Message         string `json:"message"`
	Mode            string `json:"mode"`
	ProjectID       string `json:"project_id"`
	QualityGatePass bool   `json:"quality_gate_pass"`
	Reason          string `json:"reason"`
	RunDir          string `json:"run_dir"`
	RunID           string `json:"run_id"`
	Status          string `json:"status"`
	Task            string `json:"task"`
	TaskID          string `json:"task_id"`
	TS              string `json:"ts"`
}

// Line encodes r as a single newline-terminated JSON line.
func (r Record) Line() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Report describes what Append did.
type Report struct {
	// Skipped is true when a record had already been appended.
	Skipped bool

	// Written lists the logs that received the record.
	Written []string

	// Errors holds one entry per log that could not be written.
	Errors []error
}

// Recorder appends at most one record per run.
type Recorder struct {
	paths    Paths
	scrubber *secrets.Scrubber

	mu      sync.Mutex
	latched bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithScrubber redacts secrets from the task and message fields.
func WithScrubber(s *secrets.Scrubber) RecorderOption {
	return func(r *Recorder) { r.scrubber = s }
}

// NewRecorder creates a Recorder writing to paths.
func NewRecorder(paths Paths, opts ...RecorderOption) *Recorder {
	r := &Recorder{paths: paths}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recorded reports whether Append has already been called.
func (r *Recorder) Recorded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latched
}

// Append writes rec to the global log and, when configured, the project log.
// Only the first call does anything. The latch is set before writing, so a
// failed write is reported but never retried.
func (r *Recorder) Append(rec Record) Report {
	r.mu.Lock()
	if r.latched {
		r.mu.Unlock()
		return Report{Skipped: true}
	}
	r.latched = true
	r.mu.Unlock()

	if r.scrubber != nil {
		rec.Task = r.scrubber.Scrub(rec.Task).Text
		rec.Message = r.scrubber.Scrub(rec.Message).Text
	}

	var rep Report
	line, err := rec.Line()
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Errorf("failed to encode learning record: %w", err))
		return rep
	}

	for _, path := range []string{r.paths.Global, r.paths.Project} {
		if path == "" {
			continue
		}
		if err := appendLine(path, line); err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("%s: %w", path, err))
			continue
		}
		rep.Written = append(rep.Written, path)
	}
	return rep
}

// appendLine issues exactly one write on an O_APPEND descriptor, so
// concurrent writers never interleave within a line.
func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	n, err := f.Write(line)
	if err == nil && n != len(line) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(line))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
