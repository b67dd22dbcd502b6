package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"asterhunt/internal/config"
)

// New returns a slog.Logger at the given level string (debug, info, warn,
// error). format may be "json" or "text".
func New(level string, format string) *slog.Logger {
	return slog.New(handler(os.Stdout, level, format))
}

// Setup builds the process logger from configuration, optionally teeing to
// a dated file in the log directory, and installs it as the default.
func Setup(cfg *config.Config) (*slog.Logger, error) {
	var w io.Writer = os.Stdout

	if cfg.Logging.FileOutput {
		if err := os.MkdirAll(cfg.Logging.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		name := filepath.Join(cfg.Logging.LogDir,
			fmt.Sprintf("asterhunt-%s.log", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
	}

	log := slog.New(handler(w, cfg.Logging.Level, cfg.Logging.Format))
	slog.SetDefault(log)
	return log, nil
}

func handler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
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
