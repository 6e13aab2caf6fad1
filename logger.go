package bqhnsw

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with index-specific context.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithSegment adds a segment field to the logger.
func (l *Logger) WithSegment(segment string) *Logger {
	return &Logger{
		Logger: l.Logger.With("segment", segment),
	}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogSeal logs a segment seal.
func (l *Logger) LogSeal(ctx context.Context, segment string, count int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "seal failed",
			"segment", segment,
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "segment sealed",
			"segment", segment,
			"count", count,
			"elapsed", elapsed,
		)
	}
}

// LogOpen logs a reader open.
func (l *Logger) LogOpen(ctx context.Context, segment, rawMode string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"segment", segment,
			"raw_mode", rawMode,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "segment opened",
			"segment", segment,
			"raw_mode", rawMode,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound, visited int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
			"visited", visited,
		)
	}
}

// LogMerge logs a merge.
func (l *Logger) LogMerge(ctx context.Context, segment string, sources, vectors int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "merge failed",
			"segment", segment,
			"sources", sources,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "merge completed",
			"segment", segment,
			"sources", sources,
			"vectors", vectors,
		)
	}
}

// LogPublish logs a segment upload or download.
func (l *Logger) LogPublish(ctx context.Context, op, segment string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"segment", segment,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, op+" completed",
			"segment", segment,
			"bytes", bytes,
		)
	}
}
