package logger

import (
	"context"
	"log/slog"
)

// contextKey is a private type to prevent key collisions in the context map.
type contextKey struct{}

type requestIDKey struct{}

// WithContext returns a new context containing the provided logger.
// Middleware and interceptors use it to inject a request-scoped logger.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext retrieves the logger from the context.
// It never returns nil: without an injected logger it falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithRequestID stores the request ID and injects a child of base carrying it
// as the request_id attribute.
func WithRequestID(ctx context.Context, base *slog.Logger, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	return WithContext(ctx, base.With(slog.String("request_id", requestID)))
}

// RequestIDFromContext returns the request ID stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
