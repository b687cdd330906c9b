// Package logging provides the structured logger used across the service.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Fields carries structured key/value context for a log line.
type Fields map[string]interface{}

var (
	mu      sync.RWMutex
	handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
)

// Configure replaces the process-wide handler. Format is "json" or "text".
func Configure(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	mu.Lock()
	handler = h
	mu.Unlock()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func current() slog.Handler {
	mu.RLock()
	defer mu.RUnlock()
	return handler
}

// LoggerV2 is a component-scoped structured logger. It resolves the
// process-wide handler on every call, so package-level loggers pick up
// Configure.
type LoggerV2 struct {
	component string
	attrs     []any
}

// NewLoggerV2 creates a logger tagged with the given component name.
func NewLoggerV2(component string) *LoggerV2 {
	return &LoggerV2{component: component}
}

// With returns a child logger that always carries the given fields.
func (l *LoggerV2) With(fields Fields) *LoggerV2 {
	attrs := make([]any, 0, len(l.attrs)+2*len(fields))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, toArgs(fields)...)
	return &LoggerV2{component: l.component, attrs: attrs}
}

func (l *LoggerV2) base() *slog.Logger {
	return slog.New(current()).With("component", l.component).With(l.attrs...)
}

func (l *LoggerV2) Debug(msg string, fields ...Fields) {
	l.base().Debug(msg, toArgs(fields...)...)
}

func (l *LoggerV2) Info(msg string, fields ...Fields) {
	l.base().Info(msg, toArgs(fields...)...)
}

func (l *LoggerV2) Warn(msg string, fields ...Fields) {
	l.base().Warn(msg, toArgs(fields...)...)
}

func (l *LoggerV2) Error(msg string, fields ...Fields) {
	l.base().Error(msg, toArgs(fields...)...)
}

// Fatal logs at error level and exits the process.
func (l *LoggerV2) Fatal(msg string, fields ...Fields) {
	l.base().Error(msg, toArgs(fields...)...)
	os.Exit(1)
}

// Infof logs an unstructured message through the default handler.
func Infof(format string, args ...interface{}) {
	slog.New(current()).Info(fmt.Sprintf(format, args...))
}

// Info logs a structured message through the default handler.
func Info(msg string, fields ...Fields) {
	slog.New(current()).Info(msg, toArgs(fields...)...)
}

func toArgs(fields ...Fields) []any {
	var args []any
	for _, f := range fields {
		for k, v := range f {
			args = append(args, slog.Any(k, v))
		}
	}
	return args
}
