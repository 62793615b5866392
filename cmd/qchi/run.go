package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/qchi/internal/config"
	"github.com/fyrsmithlabs/qchi/internal/hooks"
	"github.com/fyrsmithlabs/qchi/internal/host"
	"github.com/fyrsmithlabs/qchi/internal/lint"
	"github.com/fyrsmithlabs/qchi/internal/logging"
	"github.com/fyrsmithlabs/qchi/internal/orchestrator"
	"github.com/fyrsmithlabs/qchi/internal/secrets"
	"github.com/fyrsmithlabs/qchi/internal/telemetry"
)

var (
	runHost          string
	runMode          string
	runTask          string
	runMaxRetries    int
	runOutputFile    string
	runArtifactsDir  string
	runLearningDir   string
	runProjectID     string
	runLearningTrack string
	runHostTimeout   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a research task through the agent pipeline",
	Long: `Run a research task through the planner, derivation and verifier agents.

Each derivation attempt is linted with qchi-lint and reviewed by the
symbolic, numeric and referee verifiers. The integrator's verdict and the
lint result decide whether the attempt is accepted; rejected attempts are
retried with corrective feedback until --max-retries is spent.

Exit codes:
  0  accepted
  1  execution failure (retries exhausted)
  2  policy failure (a role failed or returned an invalid message)

Examples:
  # Derive with the default host
  qchi run --mode derive_only --task "Derive the Unruh temperature"

  # Reproduce a paper on codex, saving the accepted derivation
  qchi run --host codex --mode paper_reproduction \
    --task "Reproduce arXiv:2101.00001 eq. 12" --output-file out/derivation.md

  # Legacy form
  qchi --mode derive_only --task "..."`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runHost, "host", config.DefaultHost, "host CLI (gemini, codex, antigravity, opencode)")
	f.StringVar(&runMode, "mode", "", "pipeline mode (e.g. derive_only, paper_reproduction)")
	f.StringVar(&runTask, "task", "", "research task description")
	f.IntVar(&runMaxRetries, "max-retries", config.DefaultMaxRetries, "maximum derivation attempts")
	f.StringVar(&runOutputFile, "output-file", "", "write the accepted derivation to this file")
	f.StringVar(&runArtifactsDir, "run-artifacts-dir", config.DefaultArtifactsDir, "directory for per-run artifacts")
	f.StringVar(&runLearningDir, "learning-dir", config.DefaultLearningDir, "directory for learning logs")
	f.StringVar(&runProjectID, "project-id", "", "project id for per-project learning logs")
	f.StringVar(&runLearningTrack, "learning-track", "", "learning track (physics, writing, coding-plotting); inferred from mode when empty")
	f.StringVar(&runHostTimeout, "host-timeout", "", "bound on each host invocation, e.g. 20m (0 disables)")
	rootCmd.AddCommand(runCmd)
}

// runOverrides maps explicitly set flags onto config keys so unset flags
// leave file and environment values alone.
func runOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	set := func(flag, key string, val any) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = val
		}
	}
	set("host", "host.name", runHost)
	set("mode", "run.mode", runMode)
	set("task", "run.task", runTask)
	set("max-retries", "run.max_retries", runMaxRetries)
	set("output-file", "run.output_file", runOutputFile)
	set("run-artifacts-dir", "run.artifacts_dir", runArtifactsDir)
	set("learning-dir", "learning.dir", runLearningDir)
	set("project-id", "learning.project_id", runProjectID)
	set("learning-track", "learning.track", runLearningTrack)
	set("host-timeout", "host.timeout", runHostTimeout)
	return overrides
}

func runRun(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("max-retries") && runMaxRetries < 1 {
		return usageError{fmt.Errorf("--max-retries must be a positive integer, got %d", runMaxRetries)}
	}

	cfg, err := loadConfig(runOverrides(cmd))
	if err != nil {
		return err
	}
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := logging.NewLogger(&cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Close() }()
	warnDegraded(ctx, logger, tel.Err())

	h, err := host.New(cfg.Host.Name,
		host.WithTimeout(cfg.Host.Timeout.Duration()),
		host.WithRateLimit(cfg.Host.RateLimit),
	)
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithHooks(lifecycleHooks()),
		orchestrator.WithTelemetry(tel),
		orchestrator.WithOutput(cmd.OutOrStdout()),
	}
	if cfg.Learning.ScrubSecrets {
		var scrubOpts []secrets.Option
		if cfg.Learning.Gitleaks {
			scrubOpts = append(scrubOpts, secrets.WithGitleaks())
		}
		scrubber, err := secrets.New(scrubOpts...)
		if err != nil {
			return fmt.Errorf("failed to initialize secret scrubber: %w", err)
		}
		opts = append(opts, orchestrator.WithScrubber(scrubber))
	}

	engine := orchestrator.NewEngine(cfg, h, lint.NewRunner(cfg.Lint.Bin), opts...)
	_, err = engine.Run(ctx)
	var abort *orchestrator.AbortError
	if err != nil && !errors.As(err, &abort) {
		return fmt.Errorf("run failed: %w", err)
	}
	return err
}

// warnDegraded reports exporters that failed to start. The run continues
// without them.
func warnDegraded(ctx context.Context, logger *logging.Logger, err error) {
	if err == nil {
		return
	}
	logger.Warn(ctx, "telemetry degraded", zap.Error(err))
}

// lifecycleHooks logs attempt rejections and the run outcome through the
// logger the engine places in the hook context.
func lifecycleHooks() *hooks.HookManager {
	m := hooks.NewHookManager()
	m.RegisterHandler(hooks.HookAttemptFailed, func(ctx context.Context, ev hooks.Event) error {
		logging.FromContext(ctx).Info(ctx, "attempt rejected",
			zap.String("task_id", ev.TaskID),
			zap.Int("attempt", ev.Attempt),
			zap.Strings("issues", ev.Issues),
		)
		return nil
	})
	m.RegisterHandler(hooks.HookRunEnd, func(ctx context.Context, ev hooks.Event) error {
		logging.FromContext(ctx).Info(ctx, "run finished",
			zap.String("task_id", ev.TaskID),
			zap.String("status", ev.Status),
			zap.String("reason", ev.Reason),
			zap.String("run_dir", ev.RunDir),
		)
		return nil
	})
	return m
}
