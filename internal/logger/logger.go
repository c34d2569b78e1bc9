// Package logger provides the structured logging interface used across odeflow.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLevel converts a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn, "warning":
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the structured logger used by all packages.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that always includes the given fields.
	With(fields ...Field) Logger
	// Module returns a child logger tagged with a module name.
	Module(name string) Logger
}

// SlogLogger implements Logger on top of log/slog.
type SlogLogger struct {
	handler slog.Handler
}

// NewSlogLogger creates a text logger writing to w. A nil tz keeps local time.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) *SlogLogger {
	return newSlogLogger(w, level, tz, false)
}

// NewJSONLogger creates a logger emitting one JSON object per line.
func NewJSONLogger(w io.Writer, level LogLevel, tz *time.Location) *SlogLogger {
	return newSlogLogger(w, level, tz, true)
}

func newSlogLogger(w io.Writer, level LogLevel, tz *time.Location, jsonFormat bool) *SlogLogger {
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if tz != nil && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.TimeValue(a.Value.Time().In(tz))
			}
			return a
		},
	}
	var h slog.Handler
	if jsonFormat {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &SlogLogger{handler: h}
}

func (l *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	for _, f := range fields {
		r.AddAttrs(f.attr())
	}
	_ = l.handler.Handle(ctx, r)
}

func (l *SlogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }
func (l *SlogLogger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l *SlogLogger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l *SlogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

// With returns a child logger carrying fields on every record.
func (l *SlogLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, f.attr())
	}
	return &SlogLogger{handler: l.handler.WithAttrs(attrs)}
}

// Module tags all records with module=name.
func (l *SlogLogger) Module(name string) Logger {
	return l.With(String("module", name))
}

var (
	globalLogger Logger = NewSlogLogger(os.Stderr, LogLevelInfo, nil)
	globalMu     sync.RWMutex
)

// SetGlobal replaces the process-wide fallback logger.
func SetGlobal(l Logger) {
	if l == nil {
		return
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the process-wide fallback logger. Components that were not
// handed a logger explicitly use it.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}
