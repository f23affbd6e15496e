// Package obslog wires elfkit's structured logging: New builds a
// *slog.Logger fanning records out to a human-readable console handler
// and, when a log file is configured, a second JSON handler — via
// samber/slog-multi, a direct dependency the teacher repo carried but
// never imported from anywhere. No command under cmd/ imports this
// package.
package obslog

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures the logger New builds.
type Options struct {
	// Verbose enables slog.LevelDebug on the console handler; otherwise
	// the console handler is set to slog.LevelInfo.
	Verbose bool
	// LogFile, if non-nil, receives a second JSON-formatted stream of
	// every record regardless of the console handler's level.
	LogFile io.Writer
}

// New builds the shared logger for a CLI invocation.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	if opts.LogFile != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.LogFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

// WithFile attaches a "file" attribute to a logger; it attaches no section
// or offset.
func WithFile(l *slog.Logger, file string) *slog.Logger {
	return l.With(slog.String("file", file))
}
