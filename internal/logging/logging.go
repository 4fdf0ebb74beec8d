// Package logging builds the diagnostic logger. User-facing progress is
// narrated separately; this logger carries detail useful when a run fails.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a tint-formatted logger writing to dest. Verbose enables
// debug records; otherwise only warnings and errors are written.
func New(dest io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(dest, &tint.Options{
		TimeFormat: time.TimeOnly,
		Level:      level,
	}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
