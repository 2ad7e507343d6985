// internal/logging/levels.go
package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug. Stage prompts and raw provider responses are
// logged here and are filtered in production.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name, accepting "trace".
func LevelFromString(level string) (zapcore.Level, error) {
	if strings.EqualFold(level, "trace") {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
