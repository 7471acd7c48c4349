// Package runtime assembles and manages the OpenTelemetry providers behind the SDK.
package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	"github.com/traceroot-ai/traceroot-sdk/pkg/credentials"
	"github.com/traceroot-ai/traceroot-sdk/pkg/diagnostics"
)

// Runtime encapsulates the active telemetry providers and lifecycle hooks.
// A Runtime is immutable after New; credential rotation is handled by
// building a replacement and shutting the old one down.
type Runtime struct {
	cfg      config.Config
	endpoint string

	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
	meterProvider  *sdkmetric.MeterProvider
	exporters      *exporterBundle
	metricsCtrl    *runtimeMetricsController
	startTime      time.Time

	mu    sync.RWMutex
	state runtimeState
	once  sync.Once
}

type runtimeState struct {
	shutdown bool
}

// Deps carries the cross-cutting collaborators a Runtime builds on. Both
// fields may be nil: Credentials is absent in local mode and Metrics is only
// needed when counters must survive a runtime swap.
type Deps struct {
	Credentials *credentials.Manager
	Metrics     *MetricsState
}

// New creates a Runtime from the supplied Config. When cloud export is
// active the credential exchange resolves the per-tenant exporter endpoint
// before any provider is built.
func New(ctx context.Context, cfg config.Config, deps Deps) (*Runtime, error) {
	effective, endpoint, err := resolveTarget(ctx, cfg, deps.Credentials)
	if err != nil {
		return nil, err
	}

	exporters, err := newExporterBundle(ctx, effective, endpoint)
	if err != nil {
		return nil, ewrap.Wrap(err, "build exporters")
	}

	res, err := buildResource(ctx, effective)
	if err != nil {
		return nil, ewrap.Wrap(err, "build resource")
	}

	tp := buildTracerProvider(res, exporters)
	lp := buildLoggerProvider(res, exporters)
	mp := buildMeterProvider(res, exporters.metricReader)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(newPropagator(effective))

	if lp != nil {
		global.SetLoggerProvider(lp)
	}

	rt := &Runtime{
		cfg:            effective,
		endpoint:       endpoint,
		tracerProvider: tp,
		loggerProvider: lp,
		meterProvider:  mp,
		exporters:      exporters,
		startTime:      time.Now().UTC(),
	}

	if effective.EnableRuntimeMetrics && exporters.metricReader != nil {
		ctrl := &runtimeMetricsController{state: deps.Metrics}

		err := ctrl.start(rt, mp)
		if err != nil {
			return nil, err
		}

		rt.metricsCtrl = ctrl
	}

	return rt, nil
}

// resolveTarget produces the effective configuration and exporter endpoint.
// In cloud mode the credential exchange supplies the per-tenant endpoint and
// the telemetry name derived from the token hash.
func resolveTarget(ctx context.Context, cfg config.Config, manager *credentials.Manager) (config.Config, string, error) {
	endpoint := cfg.OTLPEndpoint

	if manager == nil || !cfg.CloudExportActive() {
		return cfg, endpoint, nil
	}

	creds, err := manager.Get(ctx)
	if err != nil {
		return cfg, "", err
	}

	if creds.OTLPEndpoint != "" {
		endpoint = creds.OTLPEndpoint
	}

	if creds.Hash != "" {
		cfg.Name = creds.Hash
	}

	if creds.Region != "" {
		cfg.AWSRegion = creds.Region
	}

	return cfg, endpoint, nil
}

// Config returns a copy of the effective configuration.
func (r *Runtime) Config() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.cfg
}

// Endpoint returns the effective OTLP endpoint telemetry is exported to.
func (r *Runtime) Endpoint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoint
}

// Tracer returns an instrumented tracer for callers to use directly.
func (r *Runtime) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return r.tracerProvider.Tracer(name, opts...)
}

// Meter returns a configured meter for instrumentation libraries.
func (r *Runtime) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return r.meterProvider.Meter(name, opts...)
}

// TracerProvider exposes the underlying tracer provider.
func (r *Runtime) TracerProvider() *sdktrace.TracerProvider {
	return r.tracerProvider
}

// LoggerProvider exposes the log record provider. It is nil when log cloud
// export is disabled.
func (r *Runtime) LoggerProvider() *sdklog.LoggerProvider {
	return r.loggerProvider
}

// MeterProvider exposes the underlying meter provider.
func (r *Runtime) MeterProvider() *sdkmetric.MeterProvider {
	return r.meterProvider
}

// Shutdown releases resources and flushes telemetry.
//
//nolint:revive // cognitive-complexity: this is acceptable for a shutdown function. Breaking it up would reduce clarity.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var shutdownErr error

	r.once.Do(func() {
		var errs []error

		if r.metricsCtrl != nil {
			err := r.metricsCtrl.shutdown()
			if err != nil {
				errs = append(errs, err)
			}
		}

		if r.tracerProvider != nil {
			err := r.tracerProvider.Shutdown(ctx)
			if err != nil {
				errs = append(errs, err)
			}
		}

		if r.loggerProvider != nil {
			err := r.loggerProvider.Shutdown(ctx)
			if err != nil {
				errs = append(errs, err)
			}
		}

		if r.meterProvider != nil {
			err := r.meterProvider.Shutdown(ctx)
			if err != nil {
				errs = append(errs, err)
			}
		}

		if len(errs) > 0 {
			shutdownErr = errors.Join(errs...)
		}

		r.mu.Lock()
		r.state.shutdown = true
		r.mu.Unlock()
	})

	if shutdownErr != nil {
		return ewrap.Wrap(shutdownErr, "shutdown runtime")
	}

	return nil
}

// IsShutdown indicates whether the runtime has been terminated.
func (r *Runtime) IsShutdown() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state.shutdown
}

func buildTracerProvider(res *resource.Resource, exporters *exporterBundle) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithIDGenerator(xray.NewIDGenerator()),
	}

	if exporters.traceExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(
			exporters.traceExporter,
			sdktrace.WithMaxQueueSize(traceQueueLimit),
		))
	}

	if exporters.consoleTrace != nil {
		opts = append(opts, sdktrace.WithSyncer(exporters.consoleTrace))
	}

	return sdktrace.NewTracerProvider(opts...)
}

func buildLoggerProvider(res *resource.Resource, exporters *exporterBundle) *sdklog.LoggerProvider {
	if exporters.logExporter == nil {
		return nil
	}

	var processor sdklog.Processor
	if exporters.logBatching {
		processor = sdklog.NewBatchProcessor(exporters.logExporter)
	} else {
		processor = sdklog.NewSimpleProcessor(exporters.logExporter)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)
}

func buildMeterProvider(res *resource.Resource, reader *sdkmetric.PeriodicReader) *sdkmetric.MeterProvider {
	options := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	if reader != nil {
		options = append(options, sdkmetric.WithReader(reader))
	}

	return sdkmetric.NewMeterProvider(options...)
}

func buildResource(ctx context.Context, cfg config.Config) (*resource.Resource, error) {
	detected, err := resource.New(ctx,
		resource.WithContainer(),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithFromEnv(),
		resource.WithAttributes(cfg.ResourceAttributes()...),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "detect resource")
	}

	merged, err := resource.Merge(resource.Default(), detected)
	if err != nil {
		return nil, ewrap.Wrap(err, "merge resource")
	}

	return merged, nil
}

// newPropagator keeps W3C propagation everywhere and adds the X-Ray header
// format when telemetry flows to the managed backend.
func newPropagator(cfg config.Config) propagation.TextMapPropagator {
	props := []propagation.TextMapPropagator{
		propagation.TraceContext{},
		propagation.Baggage{},
	}
	if cfg.CloudExportActive() {
		props = append(props, xray.Propagator{})
	}

	return propagation.NewCompositeTextMapPropagator(props...)
}

// Snapshot implements diagnostics.SnapshotProvider for the runtime-scoped
// fields. Reload bookkeeping and credential expiry are layered on by the
// owning client.
func (r *Runtime) Snapshot() diagnostics.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := diagnostics.Snapshot{
		ServiceName:  r.cfg.ServiceName,
		Environment:  r.cfg.Environment,
		LocalMode:    r.cfg.LocalMode,
		OTLPEndpoint: r.endpoint,
		OTLPProtocol: r.cfg.OTLPProtocol,
		Exports: map[string]bool{
			"span_console":    r.cfg.EnableSpanConsoleExport,
			"log_console":     r.cfg.EnableLogConsoleExport,
			"span_cloud":      r.cfg.EnableSpanCloudExport,
			"log_cloud":       r.cfg.EnableLogCloudExport,
			"runtime_metrics": r.cfg.EnableRuntimeMetrics,
		},
		StartTime: r.startTime,
	}

	if r.exporters != nil && r.exporters.traceStats != nil {
		snap.TraceExporter = r.exporters.traceStats.statusSnapshot()
		snap.TraceQueueLimit = r.exporters.traceStats.queueLimit
		snap.TraceDroppedSpans = r.exporters.traceStats.dropped.Load()
	}

	if r.exporters != nil && r.exporters.metricStats != nil {
		snap.MetricExporter = r.exporters.metricStats.statusSnapshot()
	}

	return snap
}
