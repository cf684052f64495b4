// Package logger provides test helpers for structured logging.
package logger

import (
	"log/slog"
	"os"
	"testing"
)

// NewTestLogger creates a logger for tests, tagged with the test name.
// It logs at WARN to keep output quiet; set TEST_DEBUG to see everything.
func NewTestLogger(tb testing.TB) *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("TEST_DEBUG") != "" {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("test", tb.Name()))
}
