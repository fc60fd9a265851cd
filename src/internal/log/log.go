// Package log manages the logger that is carried by every context in this
// module.  Code logs through the context (log.Info(ctx, ...)), never through
// a package-level or injected logger, so that fields added by callers follow
// the work they annotate.
package log

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Field is an alias for zap.Field, so that callers need not import zap
// alongside this package.
type Field = zap.Field

type loggerKey struct{}

// AddLogger adds the global zap logger to the provided context.  Most code
// should receive a context that already has a logger; this is for the very
// top of main and for tests.
func AddLogger(ctx context.Context) context.Context {
	return withLogger(ctx, zap.L())
}

// AddTestLogger adds a logger that writes to the test log to the provided
// context.
func AddTestLogger(ctx context.Context, tb zaptest.TestingT) context.Context {
	l := zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel))
	return withLogger(ctx, l)
}

func withLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func extract(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	// A context without a logger is a bug at the callsite that created the
	// context; complain loudly but do not lose the message.
	l := zap.L()
	l.DPanic("no logger in context", zap.Stack("stack"))
	return l
}

// LogOption modifies a child logger at creation time.
type LogOption func(l *zap.Logger) *zap.Logger

// WithFields adds fields that appear on every log line produced by the child.
func WithFields(fields ...Field) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.With(fields...)
	}
}

// WithOptions applies arbitrary zap options to the child.
func WithOptions(opts ...zap.Option) LogOption {
	return func(l *zap.Logger) *zap.Logger {
		return l.WithOptions(opts...)
	}
}

// ChildLogger returns a context whose logger is a named child of ctx's
// logger.  The name can be empty.
func ChildLogger(ctx context.Context, name string, opts ...LogOption) context.Context {
	l := extract(ctx)
	if name != "" {
		l = l.Named(name)
	}
	for _, opt := range opts {
		l = opt(l)
	}
	return withLogger(ctx, l)
}

// Debug logs a message at debug level.
func Debug(ctx context.Context, msg string, fields ...Field) {
	extract(ctx).WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info logs a message at info level.
func Info(ctx context.Context, msg string, fields ...Field) {
	extract(ctx).WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Error logs a message at error level.
func Error(ctx context.Context, msg string, fields ...Field) {
	extract(ctx).WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Debugf and friends exist for callers interoperating with printf-style
// collaborators; prefer the structured variants.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	extract(ctx).WithOptions(zap.AddCallerSkip(1)).Debug(fmt.Sprintf(format, args...))
}
