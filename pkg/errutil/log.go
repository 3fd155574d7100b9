// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package errutil provides helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error at ERROR level with structured context.
// For oops errors it adds the code and context; for standard errors the
// error string. Extra attrs are appended as key/value pairs.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(logger, slog.LevelError, msg, err, attrs)
}

// LogWarn is LogError at WARN level, for best-effort failures that do not
// fail the surrounding operation.
func LogWarn(logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(logger, slog.LevelWarn, msg, err, attrs)
}

func logAt(logger *slog.Logger, level slog.Level, msg string, err error, extra []any) {
	attrs := []any{"error", err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil && code != "" {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
	}
	attrs = append(attrs, extra...)
	logger.Log(context.Background(), level, msg, attrs...)
}
