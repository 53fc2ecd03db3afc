package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxLoggerKey struct{}

// ContextWithLogger attaches a logger to the context
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

// FromContext retrieves the logger from context, falling back to the
// global logger when none is attached
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxLoggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.L()
}

// With creates a child context carrying additional logger fields
func With(ctx context.Context, fields ...zap.Field) context.Context {
	return ContextWithLogger(ctx, FromContext(ctx).With(fields...))
}
