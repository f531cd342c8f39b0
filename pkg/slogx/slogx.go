package slogx

import (
	"log/slog"
	"os"
	"strings"
)

// Config controls handler construction for the service-wide logger.
type Config struct {
	Service string
	Version string
	Env     string
	Level   string // debug, info, warn, error
	Format  string // json, text

	// ErrorFile, when non-empty, mirrors warn and error records into an
	// append-only file in addition to stdout.
	ErrorFile string
}

// New returns a configured slog.Logger instance.
func New(cfg Config) *slog.Logger {
	var handler slog.Handler

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev", // Add source info in dev mode
		Level:     level,
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if cfg.ErrorFile != "" {
		if tee, err := newErrorFileHandler(cfg.ErrorFile, handler); err == nil {
			handler = tee
		} else {
			slog.Warn("error file logging disabled", "path", cfg.ErrorFile, "err", err)
		}
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	slog.SetDefault(logger)
	return logger
}

// parseLevel maps a string to slog.Level.
func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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
