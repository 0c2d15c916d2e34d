package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger with a component field attached.
func NewLogger(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

func WithScript(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil || name == "" {
		return logger
	}
	return logger.With("script", name)
}

func WithDriver(logger *slog.Logger, driver string) *slog.Logger {
	if logger == nil || driver == "" {
		return logger
	}
	return logger.With("driver", driver)
}
