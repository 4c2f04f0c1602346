package logger

import (
	"context"

	"go.uber.org/zap"
)

// ctxKey keys the request-scoped logger in a context.
type ctxKey struct{}

// NewContext returns a context carrying the logger. The transport layer
// attaches a logger tagged with the request id here.
func NewContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx. Contexts without one get
// a no-op logger, so callers never need a nil check.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
