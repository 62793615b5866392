package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/qchi/internal/artifact"
	"github.com/fyrsmithlabs/qchi/internal/config"
	"github.com/fyrsmithlabs/qchi/internal/contract"
	"github.com/fyrsmithlabs/qchi/internal/gate"
	"github.com/fyrsmithlabs/qchi/internal/hooks"
	"github.com/fyrsmithlabs/qchi/internal/host"
	"github.com/fyrsmithlabs/qchi/internal/learning"
	"github.com/fyrsmithlabs/qchi/internal/lint"
	"github.com/fyrsmithlabs/qchi/internal/logging"
	"github.com/fyrsmithlabs/qchi/internal/roles"
	"github.com/fyrsmithlabs/qchi/internal/secrets"
	"github.com/fyrsmithlabs/qchi/internal/telemetry"
)

const tracerName = "github.com/fyrsmithlabs/qchi/internal/orchestrator"

const banner = "========================================="

// Engine drives runs against one host and linter.
type Engine struct {
	cfg    *config.Config
	host   host.Host
	linter lint.Linter

	logger   *logging.Logger
	hooks    *hooks.HookManager
	tel      *telemetry.Telemetry
	inst     *telemetry.Instruments
	scrubber *secrets.Scrubber
	out      io.Writer

	now      func() time.Time
	sleep    func(time.Duration)
	newID    func() (uuid.UUID, error)
	pipeline func(mode string) []roles.Role
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHooks sets the lifecycle hook manager.
func WithHooks(h *hooks.HookManager) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithTelemetry sets the tracer and meter source.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Engine) { e.tel = t }
}

// WithScrubber redacts secrets from learning records.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(e *Engine) { e.scrubber = s }
}

// WithOutput sets where the operator report is printed.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep overrides the retry pause.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithIDGenerator overrides the run id source.
func WithIDGenerator(gen func() (uuid.UUID, error)) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithPipeline overrides pipeline resolution. The resolved pipeline is still
// checked against the mode's requirements.
func WithPipeline(resolve func(mode string) []roles.Role) Option {
	return func(e *Engine) { e.pipeline = resolve }
}

// NewEngine creates an Engine for cfg.
func NewEngine(cfg *config.Config, h host.Host, l lint.Linter, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		host:     h,
		linter:   l,
		logger:   logging.NewNop(),
		hooks:    hooks.NewHookManager(),
		out:      io.Discard,
		now:      time.Now,
		sleep:    time.Sleep,
		newID:    uuid.NewV7,
		pipeline: roles.Resolve,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.inst = telemetry.NewInstruments(e.tel, e.logger.Underlying())
	return e
}

// runner holds the per-run collaborators.
type runner struct {
	*Engine
	run      *Run
	store    *artifact.Store
	paths    learning.Paths
	track    learning.Track
	recorder *learning.Recorder
	metrics  *telemetry.RunMetrics
	tracer   trace.Tracer
}

// Run executes one orchestration. The returned Run is non-nil once the run
// directory exists; the error is an *AbortError for policy and execution
// failures.
func (e *Engine) Run(ctx context.Context) (*Run, error) {
	if err := e.cfg.ValidateRun(); err != nil {
		return nil, err
	}
	if e.cfg.Run.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be a positive integer, got %d", e.cfg.Run.MaxRetries)
	}

	mode := roles.CanonicalMode(e.cfg.Run.Mode)
	track, err := learning.ParseTrack(e.cfg.Learning.Track)
	if err != nil {
		return nil, err
	}
	if track == "" {
		track = learning.InferTrack(mode)
	}
	paths, err := learning.Resolve(e.cfg.Learning.Dir, e.cfg.Learning.ProjectID, track)
	if err != nil {
		return nil, err
	}
	if paths.ProjectRoot != "" {
		if err := learning.EnsureProjectLayout(paths.ProjectRoot); err != nil {
			return nil, err
		}
	}

	started := e.now().UTC()
	id, err := e.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}
	taskID := TaskID(started, id)
	store, err := artifact.Create(e.cfg.Run.ArtifactsDir, taskID)
	if err != nil {
		return nil, err
	}

	var recOpts []learning.RecorderOption
	if e.scrubber != nil {
		recOpts = append(recOpts, learning.WithScrubber(e.scrubber))
	}
	r := &runner{
		Engine: e,
		run: &Run{
			ID:         id.String(),
			TaskID:     taskID,
			Mode:       e.cfg.Run.Mode,
			Host:       string(e.host.Name()),
			Task:       e.cfg.Run.Task,
			MaxRetries: e.cfg.Run.MaxRetries,
			Pipeline:   e.pipeline(mode),
			Dir:        store.Path(),
			StartedAt:  started,
			State:      StatePlanning,
		},
		store:    store,
		paths:    paths,
		track:    track,
		recorder: learning.NewRecorder(paths, recOpts...),
		metrics:  telemetry.NewRunMetrics(mode, string(e.host.Name())),
		tracer:   e.tel.Tracer(tracerName),
	}

	ctx = logging.WithRun(ctx, r.run.ID, taskID)
	ctx, span := r.tracer.Start(ctx, "qchi.run", trace.WithAttributes(
		attribute.String("qchi.task_id", taskID),
		attribute.String("qchi.mode", mode),
		attribute.String("qchi.host", r.run.Host),
		attribute.Int("qchi.max_retries", r.run.MaxRetries),
	))
	defer span.End()

	err = r.execute(ctx)
	if err != nil {
		ae := asAbort(err)
		if ae.Reason == ReasonInternal && !IsTerminal(r.run.State) {
			_ = r.to(ctx, StatePolicyFailure)
		}
		r.abort(ctx, ae)
		span.RecordError(ae)
		span.SetStatus(codes.Error, ae.Reason)
		err = ae
	}
	r.finish(ctx)
	return r.run, err
}

// TaskID names a run directory: the start time in unix seconds plus a
// random suffix taken from the tail of id.
func TaskID(started time.Time, id uuid.UUID) string {
	s := id.String()
	return fmt.Sprintf("qchi-%d-%s", started.Unix(), s[len(s)-8:])
}

// asAbort wraps errors the run did not classify itself as internal
// policy failures.
func asAbort(err error) *AbortError {
	var ae *AbortError
	if errors.As(err, &ae) {
		return ae
	}
	return &AbortError{Class: ClassPolicy, Reason: ReasonInternal, Message: err.Error(), Err: err}
}

func (r *runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *runner) to(ctx context.Context, next State) error {
	if err := Transition(r.run.State, next); err != nil {
		return err
	}
	r.logger.Debug(ctx, "run state changed",
		zap.String("from", string(r.run.State)),
		zap.String("to", string(next)),
	)
	r.run.State = next
	return nil
}

func (r *runner) stamp() string {
	return r.now().UTC().Format(artifact.TimeFormat)
}

func (r *runner) execute(ctx context.Context) error {
	if err := r.writeRunContext(); err != nil {
		return err
	}
	r.printBanner()
	r.fire(ctx, hooks.HookRunStart, hooks.Event{})
	r.logger.Info(ctx, "run started",
		zap.String("task_id", r.run.TaskID),
		zap.String("mode", r.run.Mode),
		zap.String("host", r.run.Host),
		zap.Strings("pipeline", roles.Names(r.run.Pipeline)),
	)

	if err := roles.Check(r.run.Mode, r.run.Pipeline); err != nil {
		return r.policy(ctx, ReasonPolicyFailure, err.Error(), err)
	}

	planner, err := r.structured(ctx, r.store.Roles(), plannerRequest(r.run.TaskID, r.run.Task))
	if err != nil {
		return err
	}
	r.run.planner = planner

	if roles.Contains(r.run.Pipeline, roles.SourceMiner) {
		miner, err := r.structured(ctx, r.store.Roles(), sourceMinerRequest(r.run.TaskID, r.run.Task, planner))
		if err != nil {
			return err
		}
		r.run.sourceMiner = miner
	}

	if err := r.to(ctx, StateDeriving); err != nil {
		return err
	}

	feedback := ""
	for i := 1; ; i++ {
		att, err := r.attempt(ctx, i, feedback)
		if err != nil {
			return err
		}
		if att.Gate.Passed {
			return r.accept(ctx, att)
		}

		r.fire(ctx, hooks.HookAttemptFailed, hooks.Event{Attempt: i, Issues: att.Gate.Issues})
		if i >= r.run.MaxRetries {
			if err := r.to(ctx, StateExhausted); err != nil {
				return err
			}
			if att.Derivation == "" {
				return executionFailure(ReasonEmptyDerivation, "Empty derivation after maximum retries.")
			}
			return executionFailure(ReasonMaxRetriesExceeded, "Agent failed to produce compliant output after maximum retries.")
		}

		if err := r.to(ctx, StateRetrying); err != nil {
			return err
		}
		if att.Derivation == "" {
			feedback = EmptyDerivationFeedback
		} else {
			r.printf("[*] Forcing AI to retry and fix errors...\n")
			feedback = BuildFeedback(att.Gate.Issues,
				att.Messages[roles.SymbolicVerifier],
				att.Messages[roles.NumericVerifier],
				att.Messages[roles.Referee],
				att.Messages[roles.Integrator],
			)
		}
		att.Feedback = feedback
		dir, err := r.store.Attempt(i)
		if err != nil {
			return err
		}
		if err := dir.WriteText("retry_feedback.txt", feedback); err != nil {
			return err
		}
		r.sleep(r.cfg.Run.RetryBackoff.Duration())
		if err := r.to(ctx, StateDeriving); err != nil {
			return err
		}
	}
}

type attemptMeta struct {
	Attempt      int    `json:"attempt"`
	MaxRetries   int    `json:"max_retries"`
	StartedAt    string `json:"started_at"`
	LastFeedback string `json:"last_feedback"`
}

// attempt runs one derive-lint-verify-gate cycle and leaves the run in
// StateGating.
func (r *runner) attempt(ctx context.Context, i int, feedback string) (*Attempt, error) {
	ctx = logging.WithAttempt(ctx, i)
	ctx, span := r.tracer.Start(ctx, "qchi.attempt", trace.WithAttributes(attribute.Int("qchi.attempt", i)))
	defer span.End()

	r.printf("\n=== Attempt %d/%d ===\n", i, r.run.MaxRetries)
	r.metrics.Attempt()
	att := &Attempt{Index: i, Messages: gate.Verdicts{}}
	r.run.Attempts = append(r.run.Attempts, att)

	dir, err := r.store.Attempt(i)
	if err != nil {
		return nil, err
	}
	if err := dir.WriteJSON("meta.json", attemptMeta{
		Attempt:      i,
		MaxRetries:   r.run.MaxRetries,
		StartedAt:    r.stamp(),
		LastFeedback: feedback,
	}); err != nil {
		return nil, err
	}

	derivCtx := DerivationContext(r.run.Task, r.run.planner, r.run.sourceMiner, feedback)
	instructions := DerivationInstructions(feedback)
	if err := dir.WriteText("derivation_context.txt", derivCtx); err != nil {
		return nil, err
	}
	if err := dir.WriteText("derivation_instructions.txt", instructions); err != nil {
		return nil, err
	}

	display := attemptDisplayName(i)
	derivation, err := r.invoke(ctx, roles.Derivation, display, MarkdownPrompt(display, instructions, derivCtx))
	if err != nil {
		msg := fmt.Sprintf("%s execution failed: %v", display, err)
		if werr := dir.WriteError(string(roles.Derivation), errors.New(msg)); werr != nil {
			r.logger.Warn(ctx, "failed to persist derivation error", zap.Error(werr))
		}
		return nil, r.policy(ctx, ReasonDerivationExecutionFailed, msg, err)
	}
	if err := dir.WriteText(artifact.DerivationFile, derivation); err != nil {
		return nil, err
	}
	if err := r.to(ctx, StateGating); err != nil {
		return nil, err
	}

	if strings.TrimSpace(derivation) == "" {
		r.printf("\n[!] Quality Gate Failed: Derivation agent returned empty output\n")
		att.Gate = gate.Result{Passed: false, Issues: []string{EmptyDerivationIssue}}
		r.metrics.GateIssue("derivation")
		r.inst.RecordAttempt(ctx, r.run.Mode, false, 1)
		span.SetStatus(codes.Error, EmptyDerivationIssue)
		return att, dir.WriteJSON("gate_issues.json", att.Gate)
	}
	att.Derivation = derivation

	r.printf("[-] Running QCHI Rigor Engine (qchi-lint)...\n")
	att.Lint = r.linter.Lint(ctx, derivation)
	if err := dir.WriteJSON("lint.json", att.Lint); err != nil {
		return nil, err
	}

	for _, req := range verifierRequests(r.run.TaskID, r.run.Mode, derivation, att.Lint.Message, i) {
		msg, err := r.structured(ctx, dir, req)
		if err != nil {
			return nil, err
		}
		att.Messages[req.Role] = msg
	}

	ic := IntegratorContext{
		Mode:              r.run.Mode,
		LintPass:          att.Lint.Passed,
		LintMessage:       att.Lint.Message,
		SymbolicVerifier:  att.Messages[roles.SymbolicVerifier],
		NumericVerifier:   att.Messages[roles.NumericVerifier],
		Referee:           att.Messages[roles.Referee],
		DerivationExcerpt: contract.Compact(derivation, IntegratorExcerptLimit),
	}
	if err := dir.WriteJSON("integrator_context.json", ic); err != nil {
		return nil, err
	}
	rendered, err := ic.Render()
	if err != nil {
		return nil, fmt.Errorf("failed to render integrator context: %w", err)
	}
	integrator, err := r.structured(ctx, dir, integratorRequest(r.run.TaskID, rendered, i))
	if err != nil {
		return nil, err
	}
	att.Messages[roles.Integrator] = integrator

	in := gate.Input{Lint: att.Lint, Verdicts: att.Messages}
	for _, c := range gate.Checks() {
		for range c.Check(in) {
			r.metrics.GateIssue(c.Name())
		}
	}
	att.Gate = gate.Evaluate(att.Lint, att.Messages)
	if err := dir.WriteJSON("gate_issues.json", att.Gate); err != nil {
		return nil, err
	}
	r.inst.RecordAttempt(ctx, r.run.Mode, att.Gate.Passed, len(att.Gate.Issues))

	if att.Gate.Passed {
		r.printf("\n[+] Quality Gate Passed with mandatory subagent evidence. Derivation accepted.\n")
		r.logger.Info(ctx, "quality gate passed")
		return att, nil
	}

	span.SetStatus(codes.Error, "quality gate failed")
	r.printf("\n[!] Quality Gate Failed:\n")
	for _, issue := range att.Gate.Issues {
		r.printf("    - %s\n", issue)
	}
	r.logger.Warn(ctx, "quality gate failed", zap.Strings("issues", att.Gate.Issues))
	return att, nil
}

// structured invokes a role that must answer with a message and persists
// its raw output and the message or the reason there is none.
func (r *runner) structured(ctx context.Context, dir artifact.Dir, req roleRequest) (*contract.Message, error) {
	name := string(req.Role)
	raw, err := r.invoke(ctx, req.Role, req.Role.DisplayName(), req.StructuredPrompt())
	if err != nil {
		msg := fmt.Sprintf("%s execution failed: %v", name, err)
		if werr := dir.WriteError(name, errors.New(msg)); werr != nil {
			r.logger.Warn(ctx, "failed to persist role error", zap.String("role", name), zap.Error(werr))
		}
		return nil, r.policy(ctx, ReasonPolicyFailure, msg, err)
	}
	if err := dir.WriteRaw(name, raw); err != nil {
		return nil, err
	}

	msg, err := contract.Parse(raw, req.Role)
	if err != nil {
		if werr := dir.WriteError(name, err); werr != nil {
			r.logger.Warn(ctx, "failed to persist role error", zap.String("role", name), zap.Error(werr))
		}
		return nil, r.policy(ctx, ReasonPolicyFailure, err.Error(), err)
	}
	if err := dir.WriteMessage(name, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// invoke sends prompt to the host on behalf of role.
func (r *runner) invoke(ctx context.Context, role roles.Role, display, prompt string) (string, error) {
	r.printf("[*] Spawning [%s] Agent via %s...\n", strings.ToUpper(display), r.run.Host)

	ctx = logging.WithRole(ctx, string(role))
	ctx, span := r.tracer.Start(ctx, "qchi.role."+string(role), trace.WithAttributes(
		attribute.String("qchi.role", string(role)),
		attribute.Int("qchi.prompt_bytes", len(prompt)),
	))
	defer span.End()

	r.logger.Debug(ctx, "invoking host", logging.RedactedString("prompt", prompt))
	start := r.now()
	raw, err := r.host.Invoke(ctx, prompt)
	elapsed := r.now().Sub(start)

	r.metrics.Role(string(role), elapsed, err)
	r.inst.RecordRole(ctx, string(role), elapsed, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn(ctx, "host invocation failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", err
	}
	r.logger.Debug(ctx, "host responded", zap.Duration("elapsed", elapsed), zap.Int("bytes", len(raw)))
	r.logger.Trace(ctx, "host output", zap.String("raw", contract.Compact(raw, contract.PreviewLimit)))
	return raw, nil
}

func (r *runner) policy(ctx context.Context, reason, msg string, err error) error {
	if terr := r.to(ctx, StatePolicyFailure); terr != nil {
		return terr
	}
	return policyFailure(reason, msg, err)
}

type runContext struct {
	RunID            string   `json:"run_id"`
	TaskID           string   `json:"task_id"`
	StartedAt        string   `json:"started_at"`
	Host             string   `json:"host"`
	HostTimeout      string   `json:"host_timeout"`
	Mode             string   `json:"mode"`
	Task             string   `json:"task"`
	MaxRetries       int      `json:"max_retries"`
	RetryBackoff     string   `json:"retry_backoff"`
	RolePipeline     []string `json:"role_pipeline"`
	LintBin          string   `json:"lint_bin"`
	RunArtifactsRoot string   `json:"run_artifacts_root"`
	RunDir           string   `json:"run_dir"`
	LearningDir      string   `json:"learning_dir"`
	LearningTrack    string   `json:"learning_track"`
	GlobalRunsFile   string   `json:"global_runs_file"`
	ProjectRunsFile  string   `json:"project_runs_file"`
}

func (r *runner) writeRunContext() error {
	return r.store.WriteJSON(artifact.RunContextFile, runContext{
		RunID:            r.run.ID,
		TaskID:           r.run.TaskID,
		StartedAt:        r.run.StartedAt.Format(artifact.TimeFormat),
		Host:             r.run.Host,
		HostTimeout:      r.cfg.Host.Timeout.String(),
		Mode:             r.run.Mode,
		Task:             r.run.Task,
		MaxRetries:       r.run.MaxRetries,
		RetryBackoff:     r.cfg.Run.RetryBackoff.String(),
		RolePipeline:     roles.Names(r.run.Pipeline),
		LintBin:          r.cfg.Lint.Bin,
		RunArtifactsRoot: r.cfg.Run.ArtifactsDir,
		RunDir:           r.run.Dir,
		LearningDir:      r.cfg.Learning.Dir,
		LearningTrack:    string(r.track),
		GlobalRunsFile:   r.paths.Global,
		ProjectRunsFile:  r.paths.Project,
	})
}

func (r *runner) printBanner() {
	r.printf("%s\n    QCHI: Research Operating Layer       \n%s\n", banner, banner)
	r.printf("Host: %s | Mode: %s\n", r.run.Host, r.run.Mode)
	r.printf("Task: %s\n", r.run.Task)
	r.printf("Linter: %s\n", r.cfg.Lint.Bin)
	r.printf("Role pipeline: %s\n", strings.Join(roles.Names(r.run.Pipeline), ", "))
	r.printf("Run artifacts: %s\n\n", r.run.Dir)
	r.printf("Learning runs file: %s\n", r.paths.Global)
	if r.paths.Project != "" {
		r.printf("Project runs file: %s\n\n", r.paths.Project)
	}
}

// summary is final/summary.json. Failure fields are empty on success.
type summary struct {
	Status           string   `json:"status"`
	Reason           string   `json:"reason,omitempty"`
	Message          string   `json:"message,omitempty"`
	RunID            string   `json:"run_id"`
	TaskID           string   `json:"task_id"`
	Host             string   `json:"host"`
	Mode             string   `json:"mode"`
	Task             string   `json:"task"`
	RolePipeline     []string `json:"role_pipeline"`
	MaxRetries       int      `json:"max_retries"`
	Attempts         int      `json:"attempts"`
	AcceptedAttempt  *int     `json:"accepted_attempt"`
	LintBin          string   `json:"lint_bin"`
	RunDir           string   `json:"run_dir"`
	OutputFile       string   `json:"output_file"`
	StartedAt        string   `json:"started_at"`
	FinishedAt       string   `json:"finished_at"`
	LearningRunsFile string   `json:"learning_runs_file"`
	ProjectRunsFile  string   `json:"project_runs_file"`
}

func (r *runner) summary(status string) summary {
	return summary{
		Status:           status,
		RunID:            r.run.ID,
		TaskID:           r.run.TaskID,
		Host:             r.run.Host,
		Mode:             r.run.Mode,
		Task:             r.run.Task,
		RolePipeline:     roles.Names(r.run.Pipeline),
		MaxRetries:       r.run.MaxRetries,
		Attempts:         len(r.run.Attempts),
		AcceptedAttempt:  r.run.AcceptedAttempt,
		LintBin:          r.cfg.Lint.Bin,
		RunDir:           r.run.Dir,
		StartedAt:        r.run.StartedAt.Format(artifact.TimeFormat),
		FinishedAt:       r.stamp(),
		LearningRunsFile: r.paths.Global,
		ProjectRunsFile:  r.paths.Project,
	}
}

// accept persists the accepted derivation. The run only enters
// StateAccepted once every output is on disk.
func (r *runner) accept(ctx context.Context, att *Attempt) error {
	idx := att.Index

	output := r.cfg.Run.OutputFile
	if output != "" {
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(output, []byte(att.Derivation), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		r.printf("[*] Saved accepted derivation to %s\n", output)
	}

	if err := r.store.Final().WriteText(artifact.DerivationFile, att.Derivation); err != nil {
		return err
	}
	s := r.summary("success")
	s.AcceptedAttempt = &idx
	s.OutputFile = output
	if err := r.store.Final().WriteJSON(artifact.SummaryFile, s); err != nil {
		return err
	}

	if err := r.to(ctx, StateAccepted); err != nil {
		return err
	}
	r.run.AcceptedAttempt = &idx
	r.run.Derivation = att.Derivation
	r.run.Status = StatusCompleted
	r.record(ctx, StatusCompleted, true, "", "")

	r.printf("\n[FINAL DERIVATION OUTPUT]\n%s\n", att.Derivation)
	r.printf("%s\n", banner)
	r.printf("[*] Run artifacts saved to %s\n", r.run.Dir)
	r.printf("[*] QCHI Orchestration Complete.\n")
	r.logger.Info(ctx, "run completed", zap.Int("accepted_attempt", idx))
	return nil
}

// abort persists the failure and records the learning entry.
func (r *runner) abort(ctx context.Context, ae *AbortError) {
	r.run.Status = StatusFailed
	r.run.FailureReason = ae.Reason
	r.run.FailureMessage = ae.Message

	final := r.store.Final()
	if err := final.WriteText(artifact.FatalErrorFile, ae.Message); err != nil {
		r.logger.Error(ctx, "failed to write fatal error", zap.Error(err))
	}
	s := r.summary(string(StatusFailed))
	s.Reason = ae.Reason
	s.Message = ae.Message
	if err := final.WriteJSON(artifact.SummaryFile, s); err != nil {
		r.logger.Error(ctx, "failed to write summary", zap.Error(err))
	}
	r.record(ctx, StatusFailed, false, ae.Reason, ae.Message)

	r.logger.Error(ctx, "run failed",
		zap.String("reason", ae.Reason),
		zap.String("class", string(ae.Class)),
		zap.String("message", ae.Message),
	)
	if ae.Class == ClassPolicy {
		r.printf("\n[POLICY FAILURE] %s\n", ae.Message)
	} else {
		r.printf("\n[FATAL ERROR] %s\n", ae.Message)
	}
}

// record appends the run's learning entry. The recorder latch makes every
// call after the first a no-op.
func (r *runner) record(ctx context.Context, status Status, passed bool, reason, message string) {
	rep := r.recorder.Append(learning.Record{
		AcceptedAttempt: r.run.AcceptedAttempt,
		Host:            r.run.Host,
		LearningTrack:   string(r.track),
		MaxRetries:      r.run.MaxRetries,
		Message:         message,
		Mode:            r.run.Mode,
		ProjectID:       r.cfg.Learning.ProjectID,
		QualityGatePass: passed,
		Reason:          reason,
		RunDir:          r.run.Dir,
		RunID:           r.run.ID,
		Status:          string(status),
		Task:            r.run.Task,
		TaskID:          r.run.TaskID,
		TS:              r.stamp(),
	})
	if rep.Skipped {
		return
	}
	r.run.Learning = rep
	if len(rep.Written) > 0 {
		r.printf("[*] Learning run record appended: %s\n", strings.Join(rep.Written, ", "))
	}
	for _, err := range rep.Errors {
		r.printf("[WARN] Failed to append learning run record: %v\n", err)
		r.logger.Warn(ctx, "failed to append learning record", zap.Error(err))
	}
}

// finish records metrics and fires the run_end hook.
func (r *runner) finish(ctx context.Context) {
	r.run.FinishedAt = r.now().UTC()

	accepted := 0
	if r.run.AcceptedAttempt != nil {
		accepted = *r.run.AcceptedAttempt
	}
	r.metrics.Finish(accepted, r.run.FinishedAt.Sub(r.run.StartedAt))
	if err := r.metrics.WriteTextfile(r.store.Final().File(artifact.MetricsFile)); err != nil {
		r.logger.Warn(ctx, "failed to write run metrics", zap.Error(err))
	}
	r.inst.RecordRun(ctx, string(r.run.Status), r.run.FailureReason)

	r.fire(ctx, hooks.HookRunEnd, hooks.Event{
		Attempt: accepted,
		Status:  string(r.run.Status),
		Reason:  r.run.FailureReason,
		Message: r.run.FailureMessage,
	})
}

// fire runs the hooks for t. Handler errors are logged and never change
// the outcome of the run.
func (r *runner) fire(ctx context.Context, t hooks.HookType, ev hooks.Event) {
	ev.RunID = r.run.ID
	ev.TaskID = r.run.TaskID
	ev.RunDir = r.run.Dir
	if err := r.hooks.Execute(logging.WithLogger(ctx, r.logger), t, ev); err != nil {
		r.logger.Warn(ctx, "hook failed", zap.String("hook", string(t)), zap.Error(err))
	}
}
