package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/qchi/internal/secrets"
)

// TestLogger is a Logger that keeps every entry in memory, at every level
// down to TraceLevel.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns an observing logger.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core)},
		observed: observed,
	}
}

// All returns every entry logged so far.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// Messages returns the message of every entry at level, in order.
func (t *TestLogger) Messages(level zapcore.Level) []string {
	var out []string
	for _, e := range t.observed.All() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Reset discards every entry.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

func (t *TestLogger) find(level zapcore.Level, substr string) (observer.LoggedEntry, bool) {
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return e, true
		}
	}
	return observer.LoggedEntry{}, false
}

// AssertLogged fails tb unless an entry at level contains substr.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if _, ok := t.find(level, substr); !ok {
		tb.Errorf("expected %v log containing %q, got %v", level, substr, t.Messages(level))
	}
}

// AssertNotLogged fails tb if an entry at level contains substr.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if e, ok := t.find(level, substr); ok {
		tb.Errorf("unexpected %v log %q", level, e.Message)
	}
}

// AssertField fails tb unless some entry whose message is msg carries key
// with value want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && got == want {
			return
		}
	}
	tb.Errorf("field %q=%v not found on %q", key, want, msg)
}

// AssertTraceCorrelation fails tb unless an entry whose message is msg
// carries a trace_id.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if _, ok := e.ContextMap()["trace_id"]; ok {
			return
		}
	}
	tb.Errorf("message %q missing trace_id", msg)
}

// AssertNoSecrets fails tb if any message or string field holds a value
// the secret scrubber would redact.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	scrubber, err := secrets.New()
	if err != nil {
		tb.Fatalf("secrets.New: %v", err)
	}
	for _, e := range t.observed.All() {
		if scrubber.Scrub(e.Message).HasFindings() {
			tb.Errorf("secret in message %q", e.Message)
		}
		for key, v := range e.ContextMap() {
			if s, ok := v.(string); ok && scrubber.Scrub(s).HasFindings() {
				tb.Errorf("secret in field %q of %q", key, e.Message)
			}
		}
	}
}
