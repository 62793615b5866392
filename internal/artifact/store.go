// Package artifact persists the on-disk record of a run: role outputs,
// per-attempt evidence, and final results.
//
// Layout under the artifacts root:
//
//	<run>/run_context.json
//	<run>/roles/<role>.raw.txt, <role>.json
//	<run>/attempts/attempt-NNN/...
//	<run>/final/summary.json, derivation.md | fatal_error.txt
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	RolesDir    = "roles"
	AttemptsDir = "attempts"
	FinalDir    = "final"

	RunContextFile = "run_context.json"
	SummaryFile    = "summary.json"
	DerivationFile = "derivation.md"
	FatalErrorFile = "fatal_error.txt"
	MetricsFile    = "metrics.prom"
)

// TimeFormat is the UTC timestamp layout used in every artifact.
const TimeFormat = "2006-01-02T15:04:05Z"

// ErrRunExists is returned when a run directory is already present.
var ErrRunExists = errors.New("run directory already exists")

// Dir writes files beneath one directory.
type Dir struct {
	path string
}

// Path returns the directory path.
func (d Dir) Path() string {
	return d.path
}

// File returns the path of name inside the directory.
func (d Dir) File(name string) string {
	return filepath.Join(d.path, name)
}

// Sub creates (if needed) and returns a child directory.
func (d Dir) Sub(name string) (Dir, error) {
	p := filepath.Join(d.path, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return Dir{}, fmt.Errorf("failed to create %s: %w", p, err)
	}
	return Dir{path: p}, nil
}

// WriteText writes content to name, appending a trailing newline to
// non-empty content that lacks one.
func (d Dir) WriteText(name, content string) error {
	p := d.File(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(p), err)
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// WriteJSON writes v as sorted-key, two-space indented JSON.
func (d Dir) WriteJSON(name string, v any) error {
	b, err := MarshalSorted(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return d.WriteText(name, string(b))
}

// WriteRaw persists a role's raw host output.
func (d Dir) WriteRaw(role, raw string) error {
	return d.WriteText(role+".raw.txt", raw)
}

// WriteMessage persists a role's validated message.
func (d Dir) WriteMessage(role string, msg any) error {
	return d.WriteJSON(role+".json", msg)
}

// WriteError persists why a role produced no message.
func (d Dir) WriteError(role string, err error) error {
	return d.WriteText(role+".error.txt", err.Error())
}

// Store is the artifact tree of a single run.
type Store struct {
	Dir
	roles    Dir
	attempts Dir
	final    Dir
}

// Create makes a fresh run directory named name under root, along with its
// roles, attempts and final subdirectories. An existing run directory is
// never reused.
func Create(root, name string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts root %s: %w", root, err)
	}
	p := filepath.Join(root, name)
	if err := os.Mkdir(p, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunExists, p)
		}
		return nil, fmt.Errorf("failed to create run directory %s: %w", p, err)
	}

	s := &Store{Dir: Dir{path: p}}
	var err error
	if s.roles, err = s.Sub(RolesDir); err != nil {
		return nil, err
	}
	if s.attempts, err = s.Sub(AttemptsDir); err != nil {
		return nil, err
	}
	if s.final, err = s.Sub(FinalDir); err != nil {
		return nil, err
	}
	return s, nil
}

// Roles returns the directory for one-shot planning roles.
func (s *Store) Roles() Dir {
	return s.roles
}

// Final returns the directory for end-of-run outputs.
func (s *Store) Final() Dir {
	return s.final
}

// Attempt creates and returns the directory for attempt n (1-based).
func (s *Store) Attempt(n int) (Dir, error) {
	return s.attempts.Sub(AttemptName(n))
}

// AttemptName formats the directory name of attempt n.
func AttemptName(n int) string {
	return fmt.Sprintf("attempt-%03d", n)
}

// MarshalSorted encodes v with object keys in lexical order, two-space
// indentation, and no HTML escaping.
func MarshalSorted(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	// Struct fields marshal in declaration order; round-tripping through
	// a generic value sorts every object by key.
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
