package learning

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/qchi/internal/sanitize"
)

const (
	RunsFile        = "runs.jsonl"
	EvalsFile       = "evals.jsonl"
	RegressionsFile = "regressions.jsonl"
	HeuristicsFile  = "heuristics.yaml"
	ProjectsDir     = "projects"
)

// Heuristics is the per-track heuristics document.
type Heuristics struct {
	Version     int         `yaml:"version"`
	LastUpdated *string     `yaml:"last_updated"`
	Heuristics  []Heuristic `yaml:"heuristics"`
}

// Heuristic is one learned rule of thumb.
type Heuristic struct {
	ID   string `yaml:"id"`
	Rule string `yaml:"rule"`
}

// Paths locates the learning logs for one run.
type Paths struct {
	// Global is the learning-wide runs log.
	Global string

	// Project is the project-and-track runs log, empty without a project.
	Project string

	// ProjectRoot is the project directory, empty without a project.
	ProjectRoot string
}

// Resolve computes the log paths under dir for projectID and track.
func Resolve(dir, projectID string, track Track) (Paths, error) {
	p := Paths{Global: filepath.Join(dir, RunsFile)}
	if projectID == "" {
		return p, nil
	}
	if err := sanitize.ValidateProjectID(projectID); err != nil {
		return Paths{}, err
	}
	root, err := sanitize.Within(dir, ProjectsDir, projectID)
	if err != nil {
		return Paths{}, err
	}
	p.ProjectRoot = root
	p.Project = filepath.Join(root, string(track), RunsFile)
	return p, nil
}

// EnsureProjectLayout creates every track directory under projectRoot with
// empty logs and a heuristics template. Existing files are left alone.
func EnsureProjectLayout(projectRoot string) error {
	template, err := yaml.Marshal(Heuristics{Version: 1, Heuristics: []Heuristic{}})
	if err != nil {
		return fmt.Errorf("failed to render heuristics template: %w", err)
	}

	for _, track := range Tracks() {
		dir := filepath.Join(projectRoot, string(track))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		for _, name := range []string{RunsFile, EvalsFile, RegressionsFile} {
			if err := createIfMissing(filepath.Join(dir, name), nil); err != nil {
				return err
			}
		}
		if err := createIfMissing(filepath.Join(dir, HeuristicsFile), template); err != nil {
			return err
		}
	}
	return nil
}

// ReadHeuristics loads a track's heuristics document.
func ReadHeuristics(path string) (*Heuristics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var h Heuristics
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &h, nil
}

func createIfMissing(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if len(content) > 0 {
		if _, err := f.Write(content); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}
