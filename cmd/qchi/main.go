// Package main implements the qchi CLI: orchestrated research runs, an
// environment doctor and a pass-through to the qchi-lint binary.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/qchi/internal/config"
	"github.com/fyrsmithlabs/qchi/internal/logging"
	"github.com/fyrsmithlabs/qchi/internal/orchestrator"
)

var (
	// configPath is the YAML config file; empty means the default location.
	configPath string
	// lintBin overrides the configured qchi-lint binary.
	lintBin string
	// logLevel overrides logging.level; accepts "trace".
	logLevel string
	// version information
	version = "dev"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

var rootCmd = &cobra.Command{
	Use:   "qchi",
	Short: "QCHI research orchestration CLI",
	Long: `qchi drives a research task through planner, derivation and verifier
agents on a host CLI, gates each derivation with qchi-lint and the
verifiers' verdicts, and retries with corrective feedback.

Invoking qchi with flags and no subcommand is the same as "qchi run".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/qchi/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&lintBin, "lint-bin", "", "path to the qchi-lint binary")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level on stderr (trace, debug, info, warn, error)")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
}

// exitCodeError carries a process exit code without an extra message.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// usageError marks invalid invocations.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

var knownCommands = map[string]bool{
	"run":        true,
	"doctor":     true,
	"lint":       true,
	"version":    true,
	"help":       true,
	"completion": true,
	"-h":         true,
	"--help":     true,
	"--version":  true,
}

// normalizeArgs maps the flag-only legacy form onto "run". It reports false
// when there is nothing to run.
func normalizeArgs(args []string) ([]string, bool) {
	if len(args) == 0 {
		return nil, false
	}
	if knownCommands[args[0]] {
		return args, true
	}
	if strings.HasPrefix(args[0], "-") {
		return append([]string{"run"}, args...), true
	}
	return args, true
}

func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	args, ok := normalizeArgs(args)
	if !ok {
		_ = rootCmd.Help()
		return 1
	}
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var code exitCodeError
	if errors.As(err, &code) {
		return code.code
	}
	var abort *orchestrator.AbortError
	if errors.As(err, &abort) {
		// Already reported by the engine.
		return abort.ExitCode()
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	var usage usageError
	if errors.As(err, &usage) || errors.Is(err, config.ErrMissingRunInput) {
		return 2
	}
	for _, prefix := range []string{"unknown command", "required flag"} {
		if strings.HasPrefix(err.Error(), prefix) {
			return 2
		}
	}
	return 1
}

// loadConfig layers the config file, the environment and overrides.
func loadConfig(overrides map[string]any) (*config.Config, error) {
	if overrides == nil {
		overrides = map[string]any{}
	}
	if lintBin != "" {
		overrides["lint.bin"] = lintBin
	}
	cfg, err := config.LoadWithFile(configPath, overrides)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		lvl, err := logging.LevelFromString(logLevel)
		if err != nil {
			return nil, usageError{fmt.Errorf("invalid --log-level %q: %w", logLevel, err)}
		}
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}
