package logging

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that keeps every entry in memory for assertions.
// It bypasses the redacting encoder so tests can check what callers passed.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger records entries at trace level and above.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry { return t.observed.All() }

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// AssertLogged fails unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.observed.FilterLevelExact(level).FilterMessageSnippet(msg).Len() == 0 {
		tb.Errorf("no %s entry containing %q in %d entries", level, msg, t.observed.Len())
	}
}

// AssertField fails unless an entry containing msg carries key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		if got, ok := entry.ContextMap()[key]; ok && fmt.Sprint(got) == fmt.Sprint(want) {
			return
		}
	}
	tb.Errorf("no entry containing %q with %s=%v", msg, key, want)
}

// AssertSignalCorrelation fails unless the entry for msg names signalID.
func (t *TestLogger) AssertSignalCorrelation(tb testing.TB, msg, signalID string) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		ctx := entry.ContextMap()
		if ctx["signal.id"] == signalID || ctx["signal_id"] == signalID {
			return
		}
	}
	tb.Errorf("no entry containing %q for signal %q", msg, signalID)
}

// AssertNoSecrets fails when a string field under a sensitive key holds an
// unredacted value, or when any message or string field matches one of the
// default secret patterns.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	rules, err := compileRedaction(NewDefaultConfig().Redaction)
	if err != nil {
		tb.Fatalf("default redaction rules: %v", err)
	}
	for _, entry := range t.observed.All() {
		if rules.sensitiveValue(entry.Message) {
			tb.Errorf("secret pattern in message %q", entry.Message)
		}
		for _, f := range entry.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if rules.sensitiveKey(f.Key) && f.String != "" && !strings.HasPrefix(f.String, "[REDACTED") {
				tb.Errorf("field %q not redacted in %q", f.Key, entry.Message)
			}
			if rules.sensitiveValue(f.String) {
				tb.Errorf("secret pattern in field %q of %q", f.Key, entry.Message)
			}
		}
	}
}
