// internal/logging/logger.go
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// NewLogger creates a new structured logger. Format "auto" writes text to a
// terminal and JSON to anything else.
func NewLogger(format string, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if resolveFormat(format, w) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolveFormat(format string, w io.Writer) string {
	if format != "auto" {
		return format
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "text"
	}
	return "json"
}

// Setup builds the process logger. With a file path, output goes through a
// RotatingWriter that the caller must close; otherwise to stderr.
func Setup(format, level, file string, maxSizeMB int) (*slog.Logger, io.Closer, error) {
	if file == "" {
		return NewLogger(format, level, os.Stderr), nopCloser{}, nil
	}
	w, err := NewRotatingWriter(file, int64(maxSizeMB)*1024*1024, DefaultBackups)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(format, level, w), w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// WithRequest returns a logger with the request id attached
func WithRequest(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
