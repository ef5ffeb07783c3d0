package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	sl *slog.Logger
}

// New returns an info-level text logger writing to stderr.
func New() *Logger { return NewWith(os.Stderr, "info", "text") }

// NewWith builds a logger for the given level ("debug", "info", "warn",
// "error") and format ("text" or "json").
func NewWith(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{sl: slog.New(h)}
}

// Discard drops everything. Used by tests and as the nil fallback.
func Discard() *Logger { return &Logger{sl: slog.New(slog.NewTextHandler(io.Discard, nil))} }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return Discard()
	}
	return &Logger{sl: l.sl.With(args...)}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(slog.LevelError, format, args...) }

func (l *Logger) log(level slog.Level, format string, args ...any) {
	if l == nil {
		return
	}
	l.sl.Log(context.Background(), level, fmt.Sprintf(format, args...))
}
