// Package logging configures structured, rotation-aware logging for the
// indexing and search core, shared by every component's injected
// *slog.Logger rather than the package-level default.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls how the core's logger is constructed.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string
	// FilePath is where logs are written. Empty disables file logging.
	FilePath string
	// MaxSizeMB is the rotation threshold in megabytes.
	MaxSizeMB int
	// MaxFiles is how many rotated files to retain.
	MaxFiles int
	// WriteToStderr additionally mirrors logs to stderr.
	WriteToStderr bool
}

// DefaultConfig returns sane defaults for a long-running supervisor.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup builds a *slog.Logger per cfg and returns a cleanup function
// that flushes and closes any open file handle.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var output io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.FilePath != "" {
		writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		if cfg.WriteToStderr {
			output = io.MultiWriter(writer, os.Stderr)
		} else {
			output = writer
		}
		cleanup = func() {
			_ = writer.Close()
		}
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	return slog.New(handler), cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
