package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew_DisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider())
	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Err())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &Config{Enabled: true}

	tel, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		tel.SetLoggerProvider(nil)
		_ = tel.Shutdown(context.Background())
	})
	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Err())
}

func TestTelemetry_ShutdownIsIdempotent(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics = false
	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, tel.Enabled())

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Enabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_Degrade(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	tel.degrade(errors.New("tracer provider: dial"))
	tel.degrade(errors.New("meter provider: dial"))
	assert.EqualError(t, tel.Err(), "tracer provider: dial\nmeter provider: dial")
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "disabled skips checks", mutate: func(c *Config) { c.Endpoint = "" }},
		{name: "enabled local", mutate: func(c *Config) { c.Enabled = true }},
		{name: "missing endpoint", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "" }, wantErr: "endpoint is required"},
		{name: "bad protocol", mutate: func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, wantErr: "protocol must be"},
		{name: "insecure remote", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, wantErr: "insecure connections"},
		{name: "tls remote", mutate: func(c *Config) {
			c.Enabled = true
			c.Endpoint = "https://otel.example.com"
			c.Protocol = "http/protobuf"
			c.Insecure = false
		}},
		{name: "bracketed ipv6", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }},
		{name: "ipv6 loopback host", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "http://[::1]:4318"; c.Protocol = "http/protobuf" }},
		{name: "loopback range", mutate: func(c *Config) { c.Enabled = true; c.Endpoint = "127.0.0.2:4317" }},
		{name: "sample rate", mutate: func(c *Config) { c.Enabled = true; c.SampleRate = 1.5 }, wantErr: "sample_rate"},
		{name: "metrics interval", mutate: func(c *Config) { c.Enabled = true; c.MetricsInterval = 0 }, wantErr: "metrics_interval"},
		{name: "metrics off ignores interval", mutate: func(c *Config) { c.Enabled = true; c.Metrics = false; c.MetricsInterval = 0 }},
		{name: "shutdown timeout", mutate: func(c *Config) { c.Enabled = true; c.ShutdownTimeout = 0 }, wantErr: "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = "udp"
	cfg.SampleRate = -1

	err := cfg.Validate()
	assert.ErrorContains(t, err, "protocol must be")
	assert.ErrorContains(t, err, "sample_rate")
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel.example.com", stripScheme("https://otel.example.com"))
	assert.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	assert.Equal(t, "localhost:4317", stripScheme("localhost:4317"))
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	_, span := tt.Tracer("test").Start(context.Background(), "qchi.run")
	span.SetAttributes(attribute.String("qchi.mode", "physics_solve"))
	span.End()

	tt.AssertSpanExists(t, "qchi.run")
	tt.AssertSpanAttribute(t, "qchi.run", "qchi.mode", "physics_solve")
}

func TestInstruments_Record(t *testing.T) {
	tt := NewTestTelemetry()
	m := NewInstruments(tt.Telemetry, nil)
	ctx := context.Background()

	m.RecordRun(ctx, "completed", "")
	m.RecordAttempt(ctx, "physics_solve", false, 2)
	m.RecordAttempt(ctx, "physics_solve", true, 0)
	m.RecordRole(ctx, "referee", 3*time.Second, true)

	issues, ok := tt.CounterValue(ctx, "qchi.gate.issues", attribute.String("mode", "physics_solve"))
	require.True(t, ok)
	assert.Equal(t, int64(2), issues)

	passed, ok := tt.CounterValue(ctx, "qchi.attempts", attribute.Bool("gate_passed", true))
	require.True(t, ok)
	assert.Equal(t, int64(1), passed)

	runs, ok := tt.CounterValue(ctx, "qchi.runs", attribute.String("status", "completed"))
	require.True(t, ok)
	assert.Equal(t, int64(1), runs)

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	var histogram bool
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name == "qchi.role.duration_seconds" {
				_, histogram = md.Data.(metricdata.Histogram[float64])
			}
		}
	}
	assert.True(t, histogram)
}

func TestTestTelemetry_ChildSpans(t *testing.T) {
	tt := NewTestTelemetry()
	ctx, run := tt.Tracer("test").Start(context.Background(), "qchi.run")
	_, role := tt.Tracer("test").Start(ctx, "qchi.role.planner")
	role.End()
	run.End()

	assert.Equal(t, 1, tt.SpanCount("qchi.role.planner"))
	tt.AssertChildOf(t, "qchi.role.planner", "qchi.run")
	_, ok := tt.CounterValue(context.Background(), "qchi.runs")
	assert.False(t, ok)
}

func TestInstruments_NilSafe(t *testing.T) {
	var m *Instruments
	assert.NotPanics(t, func() {
		m.RecordRun(context.Background(), "failed", "max_retries_exceeded")
		m.RecordAttempt(context.Background(), "physics_solve", false, 1)
		m.RecordRole(context.Background(), "planner", time.Second, false)
	})
}

func TestRunMetrics_WriteTextfile(t *testing.T) {
	m := NewRunMetrics("physics_solve", "gemini")
	m.Attempt()
	m.Attempt()
	m.GateIssue("referee")
	m.Role("planner", 2*time.Second, nil)
	m.Role("referee", time.Second, errors.New("exit"))
	m.Finish(2, 90*time.Second)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, `qchi_run_attempts_total{host="gemini",mode="physics_solve"} 2`)
	assert.Contains(t, text, `qchi_run_gate_issues_total{check="referee",host="gemini",mode="physics_solve"} 1`)
	assert.Contains(t, text, `qchi_run_role_invocations_total{host="gemini",mode="physics_solve",outcome="error",role="referee"} 1`)
	assert.Contains(t, text, `qchi_run_accepted_attempt{host="gemini",mode="physics_solve"} 2`)
	assert.True(t, strings.Contains(text, "# TYPE qchi_run_role_duration_seconds histogram"))
}
