// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

// Package errutil bridges oops and apperr errors into structured logs.
package errutil

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/fxg4n/m5/internal/apperr"
)

// LogError logs an error with structured context.
// For oops errors, it extracts and logs the code and context. When the chain
// carries an apperr.Error its kind is logged as well.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext is LogError with a context so handlers can attach trace
// and request identifiers.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, Attrs(err)...)
}

// Attrs returns the slog key/value pairs describing err.
func Attrs(err error) []any {
	attrs := []any{"error", err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil && code != "" {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		attrs = append(attrs, "kind", appErr.Kind.String())
	}
	return attrs
}
