package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// scope is the run position carried through a context. Each With* call
// copies it, so sibling contexts never see each other's values.
type scope struct {
	runID   string
	taskID  string
	attempt int
	role    string
}

type scopeCtxKey struct{}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeCtxKey{}).(scope)
	return s
}

func withScope(ctx context.Context, update func(*scope)) context.Context {
	s := scopeFrom(ctx)
	update(&s)
	return context.WithValue(ctx, scopeCtxKey{}, s)
}

// ContextFields returns the trace ids and run position found in ctx as
// fields, in a stable order.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 7)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	s := scopeFrom(ctx)
	if s.runID != "" {
		fields = append(fields, zap.String("run.id", s.runID))
	}
	if s.taskID != "" {
		fields = append(fields, zap.String("run.task_id", s.taskID))
	}
	if s.attempt > 0 {
		fields = append(fields, zap.Int("run.attempt", s.attempt))
	}
	if s.role != "" {
		fields = append(fields, zap.String("role", s.role))
	}
	return fields
}

// WithRun records the run id and task id.
func WithRun(ctx context.Context, runID, taskID string) context.Context {
	return withScope(ctx, func(s *scope) {
		s.runID = runID
		s.taskID = taskID
	})
}

// WithAttempt records the 1-based attempt index.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return withScope(ctx, func(s *scope) { s.attempt = attempt })
}

// WithRole records the role being invoked.
func WithRole(ctx context.Context, role string) context.Context {
	return withScope(ctx, func(s *scope) { s.role = role })
}

// RunIDFromContext returns the run id, or "".
func RunIDFromContext(ctx context.Context) string { return scopeFrom(ctx).runID }

// TaskIDFromContext returns the task id, or "".
func TaskIDFromContext(ctx context.Context) string { return scopeFrom(ctx).taskID }

// AttemptFromContext returns the attempt index, or 0 outside an attempt.
func AttemptFromContext(ctx context.Context) int { return scopeFrom(ctx).attempt }

// RoleFromContext returns the role, or "".
func RoleFromContext(ctx context.Context) string { return scopeFrom(ctx).role }

type loggerCtxKey struct{}

// WithLogger stores logger in ctx for code that only receives a context,
// such as hook handlers.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
