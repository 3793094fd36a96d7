// backend/pkg/logger/logger.go
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON logger writing to stdout, tagged with the service name,
// and installs it as the slog default.
func New(service string, debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, service, debug)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer, service string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).
		With("service", service)
	slog.SetDefault(l)

	return l
}

// Nop returns a logger that discards all output.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
