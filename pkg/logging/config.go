package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/bridges/otelzerolog"
	otellog "go.opentelemetry.io/otel/log"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
)

const scopeName = "traceroot"

// NewLogger builds the application logger from configuration. Console export
// writes JSON records to stdout; cloud export bridges records into the
// supplied OpenTelemetry logger provider. Span-event mirroring is always on,
// so even a logger with both sinks disabled annotates the active span.
func NewLogger(cfg config.Config, provider otellog.LoggerProvider) *Logger {
	return newLoggerWithWriter(cfg, provider, consoleWriter(cfg))
}

func consoleWriter(cfg config.Config) io.Writer {
	if cfg.EnableLogConsoleExport {
		return os.Stdout
	}

	return io.Discard
}

func newLoggerWithWriter(cfg config.Config, provider otellog.LoggerProvider, w io.Writer) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()

	zl = zl.Hook(
		serviceHook{cfg: cfg},
		traceHook{},
		newSpanEventHook(),
	)

	if provider != nil && cfg.EnableLogCloudExport {
		zl = zl.Hook(otelzerolog.NewHook(scopeName, otelzerolog.WithLoggerProvider(provider)))
	}

	return &Logger{zl: zl}
}
