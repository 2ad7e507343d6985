// internal/logging/testing.go
package logging

import (
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records entries for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger that observes every level.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset clears all logged entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, t.observed.All())
}

// AssertNotLogged fails tb if an entry at level contains msgContains.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			tb.Errorf("unexpected log at %v containing %q", level, msgContains)
		}
	}
}

// AssertField fails tb unless an entry containing msg carries key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected any) {
	tb.Helper()
	for _, entry := range t.FilterMessage(msg).All() {
		v, ok := entry.ContextMap()[key]
		if ok && reflect.DeepEqual(v, expected) {
			return
		}
	}
	tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
}

var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+\S+`),
	regexp.MustCompile(`(?i)api[_-]?key[=:]\s*\S+`),
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),
}

// AssertNoSecrets fails tb if a credential-looking value reached the log.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	sensitiveKeys := []string{"password", "secret", "token", "api_key", "authorization"}

	for _, entry := range t.observed.All() {
		for _, re := range leakPatterns {
			if re.MatchString(entry.Message) {
				tb.Errorf("sensitive pattern in message: %q", entry.Message)
			}
		}
		for _, field := range entry.Context {
			if field.Type != zapcore.StringType {
				continue
			}
			key := strings.ToLower(field.Key)
			for _, sensitive := range sensitiveKeys {
				if strings.Contains(key, sensitive) && field.String != "" && !strings.Contains(field.String, "[REDACTED") {
					tb.Errorf("sensitive field %q not redacted: %q", field.Key, field.String)
				}
			}
			for _, re := range leakPatterns {
				if re.MatchString(field.String) {
					tb.Errorf("sensitive pattern in field %q: %q", field.Key, field.String)
				}
			}
		}
	}
}
