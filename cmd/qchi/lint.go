package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/qchi/internal/lint"
)

var (
	lintFile string
	lintKind string
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Run qchi-lint checks",
	Long: `Run the qchi-lint binary against a derivation report or a learning log.

The binary's output is passed through and its exit status becomes qchi's.

Examples:
  qchi lint report --file final/derivation.md
  qchi lint jsonl --kind runs --file skills/qchi/learning/runs.jsonl`,
}

var lintReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Lint a markdown derivation report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLint(cmd, "report", "--file", lintFile)
	},
}

var lintJSONLCmd = &cobra.Command{
	Use:   "jsonl",
	Short: "Lint a learning JSONL log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		switch lintKind {
		case "runs", "evals", "regressions":
		default:
			return usageError{fmt.Errorf("--kind must be one of runs, evals, regressions; got %q", lintKind)}
		}
		return runLint(cmd, "jsonl", "--kind", lintKind, "--file", lintFile)
	},
}

func init() {
	lintReportCmd.Flags().StringVar(&lintFile, "file", "", "markdown file to lint")
	_ = lintReportCmd.MarkFlagRequired("file")

	lintJSONLCmd.Flags().StringVar(&lintKind, "kind", "", "log kind: runs, evals or regressions")
	lintJSONLCmd.Flags().StringVar(&lintFile, "file", "", "JSONL file to lint")
	_ = lintJSONLCmd.MarkFlagRequired("kind")
	_ = lintJSONLCmd.MarkFlagRequired("file")

	lintCmd.AddCommand(lintReportCmd)
	lintCmd.AddCommand(lintJSONLCmd)
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args ...string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	runner := lint.NewRunner(cfg.Lint.Bin)
	if res, ok := runner.Available(); !ok {
		cmd.Printf("[FATAL ERROR] %s\n", res.Message)
		return exitCodeError{code: 1}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	code, err := runner.Exec(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), args...)
	if err != nil {
		return err
	}
	if code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}
