// Package observability builds the process logger.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/njyeung/netplay/internal/config"
)

// NewLogger creates a logger writing to stderr.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stderr)
}

// NewLoggerWithWriter creates a logger that writes to w.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// OpenLogger creates a logger for cfg. A configured file is opened for
// appending and returned so the caller can close it. With no file, the
// logger writes to fallback.
func OpenLogger(cfg config.LoggingConfig, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	if cfg.File == "" {
		return NewLoggerWithWriter(cfg, fallback), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return NewLoggerWithWriter(cfg, f), f, nil
}

func parseLevel(level string) slog.Level {
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

// WithComponent adds a component name to the logger.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}
