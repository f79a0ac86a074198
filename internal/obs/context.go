package obs

import (
	"context"
	"log/slog"
)

type ctxKey int

const ctxKeyLogger ctxKey = iota

// WithLogger attaches a request- or cycle-scoped logger to ctx.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, l)
}

// FromContext returns the scoped logger, or the global Logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok && l != nil {
		return l
	}
	return Logger
}
