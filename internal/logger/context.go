package logger

import (
	"context"

	"go.uber.org/zap"
)

// contextKey is a private type so context values cannot collide with other packages.
type contextKey struct{}

// loggerContextKey stores the request-scoped logger inside a context.
//
//nolint:gochecknoglobals // Context keys are conventionally package-level values.
var loggerContextKey contextKey

// ToContext returns a new context carrying the provided logger.
func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerContextKey, l)
}

// FromContext extracts the logger from the context,
// falling back to the global logger when none is attached.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(loggerContextKey).(*zap.SugaredLogger); ok && l != nil {
		return l
	}

	return global
}

// WithName returns a context whose logger is named after a subsystem,
// so every line it produces is attributable to that subsystem.
func WithName(ctx context.Context, name string) context.Context {
	return ToContext(ctx, FromContext(ctx).Named(name))
}

// WithKV returns a context whose logger carries the provided key-value pairs
// on every subsequent log line.
func WithKV(ctx context.Context, kvs ...any) context.Context {
	return ToContext(ctx, FromContext(ctx).With(kvs...))
}
