package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/qchi/internal/orchestrator"

// Instruments holds the OTEL instruments recorded by the orchestrator.
// A nil *Instruments records nothing.
type Instruments struct {
	runs         metric.Int64Counter
	attempts     metric.Int64Counter
	gateIssues   metric.Int64Counter
	roleDuration metric.Float64Histogram
}

// NewInstruments creates the orchestrator instruments on t's meter.
// Instrument creation errors are logged and the instrument is skipped.
func NewInstruments(t *Telemetry, logger *zap.Logger) *Instruments {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := t.Meter(instrumentationName)
	m := &Instruments{}

	var err error
	m.runs, err = meter.Int64Counter(
		"qchi.runs",
		metric.WithDescription("Finished runs labeled by status (completed, failed) and reason."),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn("failed to create runs counter", zap.Error(err))
	}

	m.attempts, err = meter.Int64Counter(
		"qchi.attempts",
		metric.WithDescription("Derivation attempts labeled by mode and whether the quality gate passed."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn("failed to create attempts counter", zap.Error(err))
	}

	m.gateIssues, err = meter.Int64Counter(
		"qchi.gate.issues",
		metric.WithDescription("Quality gate issues raised across attempts."),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		logger.Warn("failed to create gate issues counter", zap.Error(err))
	}

	m.roleDuration, err = meter.Float64Histogram(
		"qchi.role.duration_seconds",
		metric.WithDescription("Host invocation time per role in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800),
	)
	if err != nil {
		logger.Warn("failed to create role duration histogram", zap.Error(err))
	}

	return m
}

// RecordRun counts a finished run.
func (m *Instruments) RecordRun(ctx context.Context, status, reason string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("reason", reason),
	))
}

// RecordAttempt counts an attempt and the gate issues it raised.
func (m *Instruments) RecordAttempt(ctx context.Context, mode string, passed bool, issues int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("gate_passed", passed),
	)
	if m.attempts != nil {
		m.attempts.Add(ctx, 1, attrs)
	}
	if m.gateIssues != nil && issues > 0 {
		m.gateIssues.Add(ctx, int64(issues), metric.WithAttributes(attribute.String("mode", mode)))
	}
}

// RecordRole records one host invocation for role.
func (m *Instruments) RecordRole(ctx context.Context, role string, d time.Duration, ok bool) {
	if m == nil || m.roleDuration == nil {
		return
	}
	m.roleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("role", role),
		attribute.Bool("ok", ok),
	))
}
