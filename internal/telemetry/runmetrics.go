package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics is a per-run Prometheus registry written next to the run's
// final artifacts.
type RunMetrics struct {
	registry *prometheus.Registry

	attempts       prometheus.Counter
	gateIssues     *prometheus.CounterVec
	roleDuration   *prometheus.HistogramVec
	roleInvocation *prometheus.CounterVec
	accepted       prometheus.Gauge
	duration       prometheus.Gauge
}

// NewRunMetrics creates and registers the per-run collectors.
//
// Metrics:
//   - qchi_run_attempts_total - attempts executed
//   - qchi_run_gate_issues_total{check} - gate issues by check
//   - qchi_run_role_invocations_total{role,outcome} - host invocations
//   - qchi_run_role_duration_seconds{role} - host invocation time
//   - qchi_run_accepted_attempt - accepted attempt index, 0 when none
//   - qchi_run_duration_seconds - wall time of the run
func NewRunMetrics(mode, host string) *RunMetrics {
	labels := prometheus.Labels{"mode": mode, "host": host}
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "qchi_run_attempts_total",
			Help:        "Derivation attempts executed in this run.",
			ConstLabels: labels,
		}),
		gateIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "qchi_run_gate_issues_total",
			Help:        "Quality gate issues raised in this run, by check.",
			ConstLabels: labels,
		}, []string{"check"}),
		roleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "qchi_run_role_duration_seconds",
			Help:        "Host invocation time per role in seconds.",
			ConstLabels: labels,
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"role"}),
		roleInvocation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "qchi_run_role_invocations_total",
			Help:        "Host invocations per role, by outcome (ok, error).",
			ConstLabels: labels,
		}, []string{"role", "outcome"}),
		accepted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "qchi_run_accepted_attempt",
			Help:        "Index of the accepted attempt, 0 when no attempt was accepted.",
			ConstLabels: labels,
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "qchi_run_duration_seconds",
			Help:        "Wall time of the run in seconds.",
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(m.attempts, m.gateIssues, m.roleDuration, m.roleInvocation, m.accepted, m.duration)
	return m
}

// Attempt counts one attempt.
func (m *RunMetrics) Attempt() {
	m.attempts.Inc()
}

// GateIssue counts one issue raised by check.
func (m *RunMetrics) GateIssue(check string) {
	m.gateIssues.WithLabelValues(check).Inc()
}

// Role records one host invocation.
func (m *RunMetrics) Role(role string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.roleInvocation.WithLabelValues(role, outcome).Inc()
	m.roleDuration.WithLabelValues(role).Observe(d.Seconds())
}

// Finish records the outcome of the run.
func (m *RunMetrics) Finish(accepted int, d time.Duration) {
	m.accepted.Set(float64(accepted))
	m.duration.Set(d.Seconds())
}

// WriteTextfile writes the registry in the Prometheus text format.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
