package logging

import (
	"io"
	"log/slog"
	"os"
)

// Verbose reports whether Setup was last called with verbose logging
// enabled. Debug-level records are discarded when false.
var Verbose bool

// Logger is the package-wide structured logger. It is replaced wholesale by
// Setup; callers that need a derived logger with extra attributes should use
// With instead of touching Logger directly.
var Logger *slog.Logger

// Setup configures the package logger. verbose lowers the minimum level to
// slog.LevelDebug; jsonOutput switches the handler from text to JSON. A nil
// writer defaults to os.Stderr.
func Setup(verbose bool, jsonOutput bool, w io.Writer) {
	Verbose = verbose
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
}

func init() {
	Setup(false, false, os.Stderr)
}

// Debug logs a debug-level message. Visible only when Setup was called with
// verbose=true.
func Debug(msg string, kvs ...any) {
	Logger.Debug(msg, kvs...)
}

// Info logs an info-level message.
func Info(msg string, kvs ...any) {
	Logger.Info(msg, kvs...)
}

// Warn logs a warning-level message.
func Warn(msg string, kvs ...any) {
	Logger.Warn(msg, kvs...)
}

// Error logs an error-level message.
func Error(msg string, kvs ...any) {
	Logger.Error(msg, kvs...)
}

// With returns a logger derived from the package logger with the given
// key-value attributes attached to every record it emits.
func With(kvs ...any) *slog.Logger {
	return Logger.With(kvs...)
}
