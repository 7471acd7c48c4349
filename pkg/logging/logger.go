package logging

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Logger is the application-facing logger. Every record carries the service
// identity and, when the context holds a recording span, the trace context;
// the record is also mirrored onto that span as a log.<level> event.
type Logger struct {
	zl zerolog.Logger
}

// Named returns a child logger whose records carry the given logger name.
func (l *Logger) Named(name string) *Logger {
	child := l.zl.With().Str("logger", name).Logger()

	return &Logger{zl: child}
}

// Debug logs msg at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	l.log(ctx, zerolog.DebugLevel, nil, msg, attrs)
}

// Info logs msg at info level.
func (l *Logger) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	l.log(ctx, zerolog.InfoLevel, nil, msg, attrs)
}

// Warn logs msg at warning level.
func (l *Logger) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	l.log(ctx, zerolog.WarnLevel, nil, msg, attrs)
}

// Error logs msg at error level. err may be nil.
func (l *Logger) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	l.log(ctx, zerolog.ErrorLevel, err, msg, attrs)
}

// Critical logs msg at the highest severity without terminating the process.
func (l *Logger) Critical(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	l.log(ctx, zerolog.FatalLevel, nil, msg, attrs)
}

func (l *Logger) log(ctx context.Context, level zerolog.Level, err error, msg string, attrs []attribute.KeyValue) {
	event := l.zl.WithLevel(level).Ctx(ctx)

	for _, attr := range attrs {
		event = event.Interface(string(attr.Key), attrValue(attr))
	}

	if err != nil {
		event = event.Err(err)
	}

	event.Msg(msg)
}
