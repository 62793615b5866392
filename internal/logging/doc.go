// Package logging is the zap wrapper used across qchi.
//
// Logger methods take a context and prepend the trace ids and run position
// (run.id, run.task_id, run.attempt, role) stored there by the orchestrator.
// Entries fan out to stderr, a JSON file and the OpenTelemetry log bridge.
// Stdout is left to the operator report.
//
// Below Debug sits TraceLevel, used for raw host output:
//
//	ctx = logging.WithRun(ctx, run.ID, run.TaskID)
//	ctx = logging.WithAttempt(ctx, 2)
//	logger.Trace(ctx, "host output", zap.String("raw", raw))
//
// Sensitive keys are masked and secrets scrubbed from string values before
// encoding. NewTestLogger records entries in memory for assertions.
package logging
