// Package logger provides the context-aware logging surface used
// throughout the engine, wrapping loggo the way the teacher's Azure
// provider does (logger.Debugf(ctx, "...", args...)).
package logger

import (
	"context"

	"github.com/juju/loggo"
)

// Logger is the minimal interface every component depends on. It is
// satisfied by *ContextLogger and by test doubles.
type Logger interface {
	Debugf(ctx context.Context, format string, args ...interface{})
	Infof(ctx context.Context, format string, args ...interface{})
	Warningf(ctx context.Context, format string, args ...interface{})
	Errorf(ctx context.Context, format string, args ...interface{})
}

// ContextLogger adapts a loggo.Logger to the context-taking signature
// used across the engine. The context isn't (yet) used to derive
// per-request fields, but every call site threads it through so a
// future correlation-id decorator can hang off it without touching
// call sites.
type ContextLogger struct {
	underlying loggo.Logger
}

// GetLogger returns the ContextLogger for the given loggo module name,
// mirroring loggo.GetLogger's package-level singleton-by-name pattern.
func GetLogger(name string) *ContextLogger {
	return &ContextLogger{underlying: loggo.GetLogger(name)}
}

func (l *ContextLogger) Debugf(_ context.Context, format string, args ...interface{}) {
	l.underlying.Debugf(format, args...)
}

func (l *ContextLogger) Infof(_ context.Context, format string, args ...interface{}) {
	l.underlying.Infof(format, args...)
}

func (l *ContextLogger) Warningf(_ context.Context, format string, args ...interface{}) {
	l.underlying.Warningf(format, args...)
}

func (l *ContextLogger) Errorf(_ context.Context, format string, args ...interface{}) {
	l.underlying.Errorf(format, args...)
}
