package xcomm

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xcomm (prevents collisions).
type ctxKey string

const (
	loggerCtxKey ctxKey = "xcomm:logger"
	clockCtxKey  ctxKey = "xcomm:clock"
	eventCtxKey  ctxKey = "xcomm:event"
)

func injectLogger(ctx context.Context, l *xlog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

// LoggerFromContext returns the communicator logger handed to subscription handlers.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*xlog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}

func injectClock(ctx context.Context, c xclock.Clock) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clockCtxKey, c)
}

// ClockFromContext returns the communicator clock handed to subscription handlers.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if v := ctx.Value(clockCtxKey); v != nil {
		if c, ok := v.(xclock.Clock); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}

func injectEvent(ctx context.Context, k Key) context.Context {
	return context.WithValue(ctx, eventCtxKey, k)
}

// EventFromContext returns the key a subscription handler was registered for.
func EventFromContext(ctx context.Context) (Key, bool) {
	k, ok := ctx.Value(eventCtxKey).(Key)
	return k, ok
}
