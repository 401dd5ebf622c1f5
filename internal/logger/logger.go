package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide logger. Components fall back to it when no logger is injected.
var Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels. Unknown values are info.
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

// New builds a text logger writing to sink ("stdout", "stderr" or "file:/path").
// The returned closer releases the file sink and is a no-op otherwise.
func New(level, sink string) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	switch {
	case sink == "" || sink == "stdout":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nopCloser{}, nil
	case sink == "stderr":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nopCloser{}, nil
	case strings.HasPrefix(sink, "file:"):
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		return slog.New(slog.NewTextHandler(f, opts)), f, nil
	default:
		return nil, nil, fmt.Errorf("unsupported log sink: %s", sink)
	}
}

// Init replaces the global logger. On a bad sink it keeps stdout and reports the error.
func Init(level, sink string) (io.Closer, error) {
	l, closer, err := New(level, sink)
	if err != nil {
		Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLevel(level)}))
		return nopCloser{}, err
	}
	Log = l
	return closer, nil
}

// Or returns l, or the global logger when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Log
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
