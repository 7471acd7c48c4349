package runtime

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	"github.com/traceroot-ai/traceroot-sdk/pkg/diagnostics"
)

const (
	traceQueueLimit      = 2048
	metricExportInterval = time.Minute
)

// exporterBundle holds the exporters selected by the export toggles. Each
// exporter is owned by the provider it is registered with, so the bundle
// carries no shutdown logic of its own.
type exporterBundle struct {
	traceExporter  sdktrace.SpanExporter
	consoleTrace   sdktrace.SpanExporter
	logExporter    sdklog.Exporter
	logBatching    bool
	metricExporter sdkmetric.Exporter
	metricReader   *sdkmetric.PeriodicReader
	traceStats     *traceExporterStats
	metricStats    *metricExporterStats
}

type traceExporterStats struct {
	queueLimit int64
	dropped    atomic.Int64
	protocol   string
	endpoint   string
	lastError  atomic.Pointer[exporterError]
}

type metricExporterStats struct {
	protocol  string
	endpoint  string
	lastError atomic.Pointer[exporterError]
}

type exporterError struct {
	message string
	time    time.Time
}

func newTraceExporterStats(protocol, endpoint string) *traceExporterStats {
	return &traceExporterStats{
		queueLimit: traceQueueLimit,
		protocol:   strings.ToLower(protocol),
		endpoint:   endpoint,
	}
}

func (s *traceExporterStats) recordDrop(n int64) {
	if s == nil || n <= 0 {
		return
	}

	s.dropped.Add(n)
}

func (s *traceExporterStats) recordError(err error) {
	if s == nil || err == nil {
		return
	}

	s.lastError.Store(&exporterError{
		message: err.Error(),
		time:    time.Now().UTC(),
	})
}

func (s *traceExporterStats) statusSnapshot() diagnostics.ExporterStatus {
	status := diagnostics.ExporterStatus{
		Protocol: s.protocol,
		Endpoint: s.endpoint,
	}
	if last := s.lastError.Load(); last != nil {
		status.LastError = last.message
		status.LastErrorTime = last.time
	}

	return status
}

func (s *metricExporterStats) recordError(err error) {
	if s == nil || err == nil {
		return
	}

	s.lastError.Store(&exporterError{
		message: err.Error(),
		time:    time.Now().UTC(),
	})
}

func (s *metricExporterStats) statusSnapshot() diagnostics.ExporterStatus {
	status := diagnostics.ExporterStatus{
		Protocol: s.protocol,
		Endpoint: s.endpoint,
	}
	if last := s.lastError.Load(); last != nil {
		status.LastError = last.message
		status.LastErrorTime = last.time
	}

	return status
}

// newExporterBundle builds the exporters demanded by the export toggles.
// endpoint is the effective OTLP endpoint, already resolved from the
// credential exchange when cloud export is active.
func newExporterBundle(ctx context.Context, cfg config.Config, endpoint string) (*exporterBundle, error) {
	bundle := &exporterBundle{}

	if cfg.EnableSpanCloudExport {
		exp, err := newOTLPTraceExporter(ctx, cfg.OTLPProtocol, endpoint)
		if err != nil {
			return nil, err
		}

		stats := newTraceExporterStats(cfg.OTLPProtocol, endpoint)
		bundle.traceExporter = &spanExporterWithStats{
			inner: exp,
			stats: stats,
		}
		bundle.traceStats = stats
	}

	if cfg.EnableSpanConsoleExport {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, ewrap.Wrap(err, "create console trace exporter")
		}

		bundle.consoleTrace = exp
	}

	if cfg.EnableLogCloudExport {
		err := bundle.attachLogExporter(ctx, cfg, endpoint)
		if err != nil {
			return nil, err
		}
	}

	if cfg.EnableRuntimeMetrics {
		metricEndpoint := signalURL(endpoint, "metrics")

		exp, err := newOTLPMetricExporter(ctx, cfg.OTLPProtocol, metricEndpoint)
		if err != nil {
			return nil, err
		}

		stats := &metricExporterStats{
			protocol: strings.ToLower(cfg.OTLPProtocol),
			endpoint: metricEndpoint,
		}
		wrapped := &metricExporterWithStats{
			inner: exp,
			stats: stats,
		}

		bundle.metricExporter = wrapped
		bundle.metricStats = stats
		bundle.metricReader = sdkmetric.NewPeriodicReader(
			wrapped,
			sdkmetric.WithInterval(metricExportInterval),
		)
	}

	return bundle, nil
}

// attachLogExporter selects the log record exporter. Local mode prints the
// records to stdout because local trace collectors rarely ingest the logs
// signal; cloud mode batches them to the OTLP endpoint.
func (b *exporterBundle) attachLogExporter(ctx context.Context, cfg config.Config, endpoint string) error {
	if cfg.LocalMode {
		exp, err := stdoutlog.New(stdoutlog.WithPrettyPrint())
		if err != nil {
			return ewrap.Wrap(err, "create console log exporter")
		}

		b.logExporter = exp

		return nil
	}

	exp, err := newOTLPLogExporter(ctx, cfg.OTLPProtocol, signalURL(endpoint, "logs"))
	if err != nil {
		return err
	}

	b.logExporter = exp
	b.logBatching = true

	return nil
}

func newOTLPTraceExporter(ctx context.Context, protocol, endpoint string) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(protocol) {
	case config.ProtocolGRPC:
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint))
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp grpc trace exporter")
		}

		return exp, nil
	default:
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp http trace exporter")
		}

		return exp, nil
	}
}

func newOTLPLogExporter(ctx context.Context, protocol, endpoint string) (sdklog.Exporter, error) {
	switch strings.ToLower(protocol) {
	case config.ProtocolGRPC:
		exp, err := otlploggrpc.New(ctx, otlploggrpc.WithEndpointURL(endpoint))
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp grpc log exporter")
		}

		return exp, nil
	default:
		exp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp http log exporter")
		}

		return exp, nil
	}
}

func newOTLPMetricExporter(ctx context.Context, protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(protocol) {
	case config.ProtocolGRPC:
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(endpoint))
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp grpc metric exporter")
		}

		return exp, nil
	default:
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, ewrap.Wrap(err, "create otlp http metric exporter")
		}

		return exp, nil
	}
}

// signalURL rewrites the trailing signal segment of an OTLP endpoint so the
// traces URL handed out by the credential exchange also serves the logs and
// metrics signals. Endpoints without a signal path gain one.
func signalURL(endpoint, signal string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return endpoint
	}

	switch {
	case strings.HasSuffix(parsed.Path, "/v1/traces"):
		parsed.Path = strings.TrimSuffix(parsed.Path, "traces") + signal
	case parsed.Path == "" || parsed.Path == "/":
		parsed.Path = "/v1/" + signal
	}

	return parsed.String()
}

type spanExporterWithStats struct {
	inner sdktrace.SpanExporter
	stats *traceExporterStats
}

func (s *spanExporterWithStats) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if s == nil || s.inner == nil {
		return nil
	}

	err := s.inner.ExportSpans(ctx, spans)
	if err != nil {
		if s.stats != nil {
			s.stats.recordDrop(int64(len(spans)))
			s.stats.recordError(err)
		}

		return ewrap.Wrap(err, "export spans")
	}

	return nil
}

func (s *spanExporterWithStats) Shutdown(ctx context.Context) error {
	if s == nil || s.inner == nil {
		return nil
	}

	err := s.inner.Shutdown(ctx)
	if err != nil {
		return ewrap.Wrap(err, "shutdown span exporter")
	}

	return nil
}

type metricExporterWithStats struct {
	inner sdkmetric.Exporter
	stats *metricExporterStats
}

func (m *metricExporterWithStats) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return m.inner.Temporality(kind)
}

func (m *metricExporterWithStats) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return m.inner.Aggregation(kind)
}

func (m *metricExporterWithStats) Export(ctx context.Context, metrics *metricdata.ResourceMetrics) error {
	err := m.inner.Export(ctx, metrics)
	if err != nil {
		m.stats.recordError(err)

		return ewrap.Wrap(err, "export metrics")
	}

	return nil
}

func (m *metricExporterWithStats) ForceFlush(ctx context.Context) error {
	err := m.inner.ForceFlush(ctx)
	if err != nil {
		return ewrap.Wrap(err, "force flush metric exporter")
	}

	return nil
}

func (m *metricExporterWithStats) Shutdown(ctx context.Context) error {
	err := m.inner.Shutdown(ctx)
	if err != nil {
		return ewrap.Wrap(err, "shutdown metric exporter")
	}

	return nil
}
