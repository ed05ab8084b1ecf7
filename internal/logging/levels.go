package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug. Per-item pipeline chatter (queue hand-offs,
// claim races) logs here and is filtered in production.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a configured level name. Matching ignores case and
// surrounding space, and "warning" is accepted for "warn". Unknown names
// fall back to Info alongside the error.
func LevelFromString(level string) (zapcore.Level, error) {
	switch name := strings.ToLower(strings.TrimSpace(level)); name {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	case "":
		return zapcore.InfoLevel, nil
	default:
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(name)); err != nil {
			return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (want trace, debug, info, warn, error)", level)
		}
		return l, nil
	}
}
