package spillset

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with spillset-specific context.
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
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogSpill logs a buffer spill.
func (l *Logger) LogSpill(file string, elements int, err error) {
	if err != nil {
		l.Error("spill failed",
			"file", file,
			"elements", elements,
			"error", err,
		)
	} else {
		l.Debug("spill completed",
			"file", file,
			"elements", elements,
		)
	}
}

// LogCompaction logs a compaction call.
func (l *Logger) LogCompaction(before, after, rounds int, err error) {
	if err != nil {
		l.Error("compaction failed",
			"runs_before", before,
			"runs_after", after,
			"rounds", rounds,
			"error", err,
		)
	} else {
		l.Debug("compaction completed",
			"runs_before", before,
			"runs_after", after,
			"rounds", rounds,
		)
	}
}

// LogMutation logs a structural mutation that required file round trips.
func (l *Logger) LogMutation(op string, runs int, err error) {
	if err != nil {
		l.Error("mutation failed",
			"op", op,
			"runs", runs,
			"error", err,
		)
	} else {
		l.Debug("mutation completed",
			"op", op,
			"runs", runs,
		)
	}
}

// LogClear logs a clear.
func (l *Logger) LogClear(runs int, err error) {
	if err != nil {
		l.Error("clear failed",
			"runs", runs,
			"error", err,
		)
	} else {
		l.Debug("clear completed",
			"runs", runs,
		)
	}
}
