// Package logging provides the printf-style debug logger used across tterm,
// backed by log/slog
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger writes leveled messages with printf formatting
type Logger struct {
	slog *slog.Logger
}

// New creates a logger writing text records at level or above to w
func New(w io.Writer, level slog.Level) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(h)}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return New(io.Discard, slog.LevelError+1)
}

// Open creates a logger appending to the file at path. An empty path
// returns a Nop logger. The returned closer closes the file.
func Open(path string, level slog.Level) (*Logger, io.Closer, error) {
	if path == "" {
		return Nop(), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, level), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel converts debug, info, warn or error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// With returns a logger tagging every record with component
func (l *Logger) With(component string) *Logger {
	return &Logger{slog: l.slog.With("component", component)}
}

// Enabled reports whether records at level are written
func (l *Logger) Enabled(level slog.Level) bool {
	return l.slog.Enabled(context.Background(), level)
}

func (l *Logger) logf(level slog.Level, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.slog.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Debugf logs at debug level
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(slog.LevelDebug, format, args...)
}

// Infof logs at info level
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(slog.LevelInfo, format, args...)
}

// Warnf logs at warn level
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(slog.LevelWarn, format, args...)
}

// Errorf logs at error level
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(slog.LevelError, format, args...)
}
