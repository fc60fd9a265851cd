package log

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EndSpanFunc is a function that ends a span.
type EndSpanFunc = func(fields ...Field)

const errorpType = zapcore.InlineMarshalerType + 100

// Errorp is a Field that marks a span as failed if *err is non-nil at the
// time the span ends.  Intended for use with named return values:
//
//	defer log.Span(ctx, "DoThing")(log.Errorp(&retErr))
func Errorp(err *error) Field {
	return zapcore.Field{
		Key:       "error",
		Type:      errorpType,
		Interface: err,
	}
}

// Span logs the start of an operation at debug level and returns a function
// that logs its end, with the duration and any extra fields.
func Span(ctx context.Context, event string, fields ...Field) EndSpanFunc {
	l := extract(ctx).Named(event)
	start := time.Now()
	l.Debug("span start", fields...)
	return func(rawFields ...Field) {
		fields := []Field{zap.Duration("spanDuration", time.Since(start))}
		msg := "span finished ok"
		failed := false
		for _, f := range rawFields {
			if f.Type == errorpType {
				if errp, ok := f.Interface.(*error); ok && errp != nil && *errp != nil {
					failed = true
					fields = append(fields, zap.Error(*errp))
				}
				continue
			}
			if _, ok := f.Interface.(error); ok {
				failed = true
			}
			fields = append(fields, f)
		}
		if failed {
			msg = "span failed"
			l.Error(msg, fields...)
			return
		}
		l.Debug(msg, fields...)
	}
}
