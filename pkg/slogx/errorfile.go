package slogx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// errorFileHandler forwards every record to the primary handler and mirrors
// warn and error records into a plain-text file. Used for deployments where
// the dashboard operator wants a standalone error trail without shipping the
// full JSON stream anywhere.
type errorFileHandler struct {
	primary slog.Handler
	file    slog.Handler
}

func newErrorFileHandler(path string, primary slog.Handler) (slog.Handler, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create error log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log file: %w", err)
	}

	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})

	return &errorFileHandler{primary: primary, file: fileHandler}, nil
}

func (h *errorFileHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

func (h *errorFileHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.primary.Enabled(ctx, r.Level) {
		err = h.primary.Handle(ctx, r.Clone())
	}
	if r.Level >= slog.LevelWarn {
		if ferr := h.file.Handle(ctx, r); err == nil {
			err = ferr
		}
	}
	return err
}

func (h *errorFileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &errorFileHandler{
		primary: h.primary.WithAttrs(attrs),
		file:    h.file.WithAttrs(attrs),
	}
}

func (h *errorFileHandler) WithGroup(name string) slog.Handler {
	return &errorFileHandler{
		primary: h.primary.WithGroup(name),
		file:    h.file.WithGroup(name),
	}
}
