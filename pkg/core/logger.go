package core

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	// WithFields returns a logger that attaches fields to every record.
	WithFields(fields map[string]interface{}) Logger

	// Slog exposes the underlying *slog.Logger for packages that log with attrs.
	Slog() *slog.Logger
}

type slogLogger struct {
	l *slog.Logger
}

// NewDefaultLogger creates a text logger on stderr at info level.
func NewDefaultLogger() Logger {
	return NewLogger(os.Stderr, "info", "text")
}

// NewJSONLogger creates a JSON logger on stderr at info level.
func NewJSONLogger() Logger {
	return NewLogger(os.Stderr, "info", "json")
}

// NewNopLogger discards everything. Used by tests.
func NewNopLogger() Logger {
	return NewLogger(io.Discard, "error", "text")
}

// NewLogger builds a logger for the given level ("debug", "info", "warn",
// "error") and format ("text" or "json").
func NewLogger(w io.Writer, level, format string) Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &slogLogger{l: slog.New(h)}
}

// LoggerFrom wraps an existing slog logger.
func LoggerFrom(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

// ParseLevel maps a level name to slog.Level; unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *slogLogger) Error(args ...interface{}) { s.l.Error(fmt.Sprint(args...)) }

func (s *slogLogger) Errorf(format string, args ...interface{}) {
	s.l.Error(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Warn(args ...interface{}) { s.l.Warn(fmt.Sprint(args...)) }

func (s *slogLogger) Warnf(format string, args ...interface{}) {
	s.l.Warn(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Info(args ...interface{}) { s.l.Info(fmt.Sprint(args...)) }

func (s *slogLogger) Infof(format string, args ...interface{}) {
	s.l.Info(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Debug(args ...interface{}) { s.l.Debug(fmt.Sprint(args...)) }

func (s *slogLogger) Debugf(format string, args ...interface{}) {
	s.l.Debug(fmt.Sprintf(format, args...))
}

func (s *slogLogger) WithFields(fields map[string]interface{}) Logger {
	if len(fields) == 0 {
		return s
	}
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return &slogLogger{l: s.l.With(attrs...)}
}

func (s *slogLogger) Slog() *slog.Logger { return s.l }
