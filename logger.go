package mmapappend

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with buffer-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPath adds the backing file path to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogAppend logs an append operation.
func (l *Logger) LogAppend(ctx context.Context, r Range, err error) {
	if err != nil {
		l.WarnContext(ctx, "append failed",
			"length", r.Length,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "append committed",
		"offset", r.Offset,
		"length", r.Length,
	)
}

// LogFlush logs a flush of [off, off+n).
func (l *Logger) LogFlush(ctx context.Context, off, n int64, async bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"offset", off,
			"length", n,
			"async", async,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "flush completed",
		"offset", off,
		"length", n,
		"async", async,
	)
}
