// Package config provides configuration loading for qchi.
//
// A Config is built once per process from defaults, an optional YAML file,
// QCHI_* environment variables and command-line overrides, then passed by
// value-like pointer to every component. Nothing in this package is global.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/qchi/internal/host"
	"github.com/fyrsmithlabs/qchi/internal/learning"
	"github.com/fyrsmithlabs/qchi/internal/logging"
	"github.com/fyrsmithlabs/qchi/internal/sanitize"
	"github.com/fyrsmithlabs/qchi/internal/telemetry"
)

// Config holds the complete qchi configuration.
type Config struct {
	Host      HostConfig       `koanf:"host"`
	Run       RunConfig        `koanf:"run"`
	Lint      LintConfig       `koanf:"lint"`
	Learning  LearningConfig   `koanf:"learning"`
	Logging   logging.Config   `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
}

// HostConfig selects and bounds the host CLI.
type HostConfig struct {
	Name      string   `koanf:"name"`
	Timeout   Duration `koanf:"timeout"`    // 0 disables the bound
	RateLimit float64  `koanf:"rate_limit"` // invocations per second, 0 = unlimited
}

// RunConfig describes one orchestration run.
type RunConfig struct {
	Mode         string   `koanf:"mode"`
	Task         string   `koanf:"task"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
	ArtifactsDir string   `koanf:"artifacts_dir"`
	OutputFile   string   `koanf:"output_file"`
}

// LintConfig locates the qchi-lint binary.
type LintConfig struct {
	Bin string `koanf:"bin"`
}

// LearningConfig controls learning log recording.
type LearningConfig struct {
	Dir          string `koanf:"dir"`
	ProjectID    string `koanf:"project_id"`
	Track        string `koanf:"track"`
	ScrubSecrets bool   `koanf:"scrub_secrets"`
	Gitleaks     bool   `koanf:"gitleaks"` // add the gitleaks rule set to scrubbing
}

// Defaults.
const (
	DefaultHost         = string(host.Gemini)
	DefaultHostTimeout  = 30 * time.Minute
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 2 * time.Second
	DefaultArtifactsDir = ".qchi/runs"
	DefaultLearningDir  = "skills/qchi/learning"
)

// LintCandidates are tried in order when no lint binary is configured.
var LintCandidates = []string{
	"tools/qchi-lint/target/debug/qchi-lint",
	"tools/qchi-lint/target/release/qchi-lint",
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			Name:    DefaultHost,
			Timeout: Duration(DefaultHostTimeout),
		},
		Run: RunConfig{
			MaxRetries:   DefaultMaxRetries,
			RetryBackoff: Duration(DefaultRetryBackoff),
			ArtifactsDir: DefaultArtifactsDir,
		},
		Learning: LearningConfig{
			Dir:          DefaultLearningDir,
			ScrubSecrets: true,
		},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	if _, err := host.ParseName(c.Host.Name); err != nil {
		return err
	}
	if c.Host.RateLimit < 0 {
		return fmt.Errorf("host.rate_limit must be >= 0, got %v", c.Host.RateLimit)
	}
	if c.Run.MaxRetries < 1 {
		return fmt.Errorf("run.max_retries must be a positive integer, got %d", c.Run.MaxRetries)
	}
	if c.Learning.Track != "" {
		if _, err := learning.ParseTrack(c.Learning.Track); err != nil {
			return err
		}
	}
	if err := sanitize.ValidateProjectID(c.Learning.ProjectID); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// ErrMissingRunInput is returned by ValidateRun when mode or task is absent.
var ErrMissingRunInput = errors.New("missing run input")

// ValidateRun checks the settings only the run command needs.
func (c *Config) ValidateRun() error {
	var missing []string
	if strings.TrimSpace(c.Run.Mode) == "" {
		missing = append(missing, "mode")
	}
	if strings.TrimSpace(c.Run.Task) == "" {
		missing = append(missing, "task")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRunInput, strings.Join(missing, ", "))
	}
	return nil
}
