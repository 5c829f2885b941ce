// SPDX-License-Identifier: MIT

// Package log wraps zerolog with the process-wide logger, canonical field
// names and request correlation used across the door.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type requestIDKey struct{}

// ContextWithRequestID returns ctx carrying id for later log lines.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by ContextWithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithContext adds the request id in ctx, if any, to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return logger
	}
	return logger.With().Str(FieldRequestID, id).Logger()
}

// WithComponentFromContext prefers a logger already attached to ctx by
// zerolog and falls back to Base.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := Base()
	if attached := zerolog.Ctx(ctx); attached.GetLevel() != zerolog.Disabled {
		l = *attached
	}
	return WithContext(ctx, l.With().Str(FieldComponent, component).Logger())
}
