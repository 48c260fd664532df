package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger with a component field attached.
func NewLogger(component string) *slog.Logger {
	return NewLoggerAt(component, slog.LevelInfo)
}

// NewLoggerAt returns a JSON logger at an explicit level.
func NewLoggerAt(component string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

func WithProject(logger *slog.Logger, projectID string) *slog.Logger {
	if logger == nil || projectID == "" {
		return logger
	}
	return logger.With("project_id", projectID)
}

func WithPlatform(logger *slog.Logger, platform string) *slog.Logger {
	if logger == nil || platform == "" {
		return logger
	}
	return logger.With("platform", platform)
}

func WithJob(logger *slog.Logger, jobID string) *slog.Logger {
	if logger == nil || jobID == "" {
		return logger
	}
	return logger.With("job_id", jobID)
}
