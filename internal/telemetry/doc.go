// Package telemetry instruments runs with OpenTelemetry traces and metrics
// and writes a Prometheus textfile per run.
//
// A run produces one qchi.run span, one qchi.attempt span per derivation
// attempt and a qchi.role.<role> span per host invocation. OTLP export is
// optional; a disabled Telemetry hands out no-op tracers and meters.
//
// RunMetrics is independent of export. Its registry belongs to a single run
// and is written to final/metrics.prom when the run ends:
//
//	m := telemetry.NewRunMetrics(mode, host)
//	m.Attempt()
//	m.GateIssue("referee")
//	if err := m.WriteTextfile(path); err != nil {
//	    ...
//	}
//
// Configuration:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: "grpc"
//	  sample_rate: 1.0
//	  metrics: true
//	  metrics_interval: 15s
package telemetry
