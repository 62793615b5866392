package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/qchi/internal/sanitize"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "QCHI_"
)

// LoadWithFile loads configuration from a YAML file, then environment
// variables, then overrides.
//
// Configuration precedence (highest to lowest):
//  1. overrides (command-line flags), keyed by koanf path ("run.max_retries")
//  2. Environment variables (QCHI_LINT_BIN, QCHI_RUN_ARTIFACTS_DIR, ...)
//  3. YAML config file (~/.config/qchi/config.yaml)
//  4. Defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path is used and may be absent.
//
// # Security Considerations
//
// Only files under ~/.config/qchi/, /etc/qchi/ or ./.qchi/ are loaded.
// Group- or world-writable files and files over 1MB are rejected.
//
// # Environment Variable Mapping
//
// The prefix is stripped and the first underscore becomes the section
// separator:
//
//	QCHI_LINT_BIN          -> lint.bin
//	QCHI_RUN_ARTIFACTS_DIR -> run.artifacts_dir
//	QCHI_LEARNING_DIR      -> learning.dir
//	QCHI_HOST_TIMEOUT      -> host.timeout
func LoadWithFile(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath(home)
	}
	configPath = sanitize.ExpandHome(configPath, home)

	if err := validateConfigPath(configPath, home); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	content, err := readConfigFile(configPath)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths(home)
	if cfg.Lint.Bin == "" {
		cfg.Lint.Bin = resolveLintBin()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultPath returns the default config file location.
func DefaultPath(home string) string {
	return filepath.Join(home, ".config", "qchi", "config.yaml")
}

// envKey maps QCHI_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func (c *Config) expandPaths(home string) {
	for _, p := range []*string{
		&c.Run.ArtifactsDir,
		&c.Run.OutputFile,
		&c.Lint.Bin,
		&c.Learning.Dir,
		&c.Logging.Output.File,
	} {
		*p = sanitize.ExpandHome(*p, home)
	}
}

// resolveLintBin returns the first lint candidate that exists, or the first
// candidate so the missing-binary error names a useful path.
func resolveLintBin() string {
	for _, candidate := range LintCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return LintCandidates[0]
}

func readConfigFile(path string) ([]byte, error) {
	// Validate on the open descriptor to avoid a TOCTOU race.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path, home string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Follow symlinks so a link cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "qchi"),
		"/etc/qchi",
	}
	if wd, err := os.Getwd(); err == nil {
		allowedDirs = append(allowedDirs, filepath.Join(wd, ".qchi"))
	}

	for _, dir := range allowedDirs {
		rel, err := filepath.Rel(dir, resolvedPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/qchi/, /etc/qchi/ or ./.qchi/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
