package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	"github.com/traceroot-ai/traceroot-sdk/pkg/credentials"
	"github.com/traceroot-ai/traceroot-sdk/pkg/logging"
)

const (
	collectorEndpoint = "collector:4318"
	droppedSpans      = 7
)

func TestSignalURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
		signal   string
		want     string
	}{
		{
			name:     "traces path rewritten for logs",
			endpoint: "http://localhost:4318/v1/traces",
			signal:   "logs",
			want:     "http://localhost:4318/v1/logs",
		},
		{
			name:     "traces path rewritten for metrics",
			endpoint: "https://otlp.traceroot.ai/v1/traces",
			signal:   "metrics",
			want:     "https://otlp.traceroot.ai/v1/metrics",
		},
		{
			name:     "bare host gains signal path",
			endpoint: "http://collector:4318",
			signal:   "logs",
			want:     "http://collector:4318/v1/logs",
		},
		{
			name:     "root path gains signal path",
			endpoint: "http://collector:4318/",
			signal:   "metrics",
			want:     "http://collector:4318/v1/metrics",
		},
		{
			name:     "custom path left untouched",
			endpoint: "http://collector:4318/custom/ingest",
			signal:   "logs",
			want:     "http://collector:4318/custom/ingest",
		},
		{
			name:     "unparseable endpoint left untouched",
			endpoint: "not a url",
			signal:   "logs",
			want:     "not a url",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := signalURL(tc.endpoint, tc.signal); got != tc.want {
				t.Fatalf("signalURL(%q, %q): got %q want %q", tc.endpoint, tc.signal, got, tc.want)
			}
		})
	}
}

func TestResolveTargetWithoutManager(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.ServiceName = "svc"
	cfg.LocalMode = true

	effective, endpoint, err := resolveTarget(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("resolveTarget returned error: %v", err)
	}

	if endpoint != cfg.OTLPEndpoint {
		t.Fatalf("expected configured endpoint, got %q", endpoint)
	}

	if effective.Name != cfg.Name {
		t.Fatalf("expected name untouched, got %q", effective.Name)
	}
}

func TestResolveTargetCloudMode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "traceroot-token" {
			w.WriteHeader(http.StatusForbidden)

			return
		}

		w.Header().Set("Content-Type", "application/json")

		//nolint:errcheck // test server response
		_ = json.NewEncoder(w).Encode(map[string]string{
			"hash":           "tenant-hash",
			"otlp_endpoint":  "https://otlp.traceroot.ai/v1/traces",
			"region":         "eu-central-1",
			"expiration_utc": time.Now().UTC().Add(4 * time.Hour).Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.ServiceName = "svc"
	cfg.Token = "traceroot-token"
	cfg.VerificationEndpoint = srv.URL

	manager := credentials.NewManager(cfg, logging.NewNoopAdapter())

	effective, endpoint, err := resolveTarget(context.Background(), cfg, manager)
	if err != nil {
		t.Fatalf("resolveTarget returned error: %v", err)
	}

	if endpoint != "https://otlp.traceroot.ai/v1/traces" {
		t.Fatalf("expected exchanged endpoint, got %q", endpoint)
	}

	if effective.Name != "tenant-hash" {
		t.Fatalf("expected name from credential hash, got %q", effective.Name)
	}

	if effective.AWSRegion != "eu-central-1" {
		t.Fatalf("expected region from credentials, got %q", effective.AWSRegion)
	}
}

func TestResolveTargetRequiresToken(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.ServiceName = "svc"

	manager := credentials.NewManager(cfg, logging.NewNoopAdapter())

	_, _, err := resolveTarget(context.Background(), cfg, manager)
	if err == nil {
		t.Fatal("expected error when token is missing")
	}

	if !config.IsMissingFieldError(err) {
		t.Fatalf("expected missing field error, got %v", err)
	}
}

func TestRuntimeConfigReturnsCopy(t *testing.T) {
	t.Parallel()

	initial := config.Config{ServiceName: "service-A"}

	rt := &Runtime{cfg: initial}

	cfgCopy := rt.Config()
	cfgCopy.ServiceName = "mutated"

	if rt.cfg.ServiceName != "service-A" {
		t.Fatal("runtime config should not be mutated by caller")
	}
}

func TestRuntimeShutdownSetsState(t *testing.T) {
	t.Parallel()

	rt := &Runtime{}

	ctx := context.Background()

	err := rt.Shutdown(ctx)
	if err != nil {
		t.Fatalf("unexpected error on shutdown: %v", err)
	}

	if !rt.IsShutdown() {
		t.Fatal("expected runtime to be marked as shutdown")
	}

	err = rt.Shutdown(ctx)
	if err != nil {
		t.Fatalf("second shutdown should not error, got %v", err)
	}
}

func TestSnapshotBasic(t *testing.T) {
	t.Parallel()

	start := time.Unix(1700000000, 0).UTC()

	cfg := config.DefaultConfig()
	cfg.ServiceName = "svc"
	cfg.Environment = "prod"
	cfg.EnableSpanConsoleExport = true

	rt := &Runtime{
		cfg:       cfg,
		endpoint:  "http://collector:4318/v1/traces",
		startTime: start,
	}

	snap := rt.Snapshot()

	if snap.ServiceName != "svc" {
		t.Fatalf("expected service name svc, got %s", snap.ServiceName)
	}

	if snap.Environment != "prod" {
		t.Fatalf("expected environment prod, got %s", snap.Environment)
	}

	if snap.OTLPEndpoint != "http://collector:4318/v1/traces" {
		t.Fatalf("expected effective endpoint, got %s", snap.OTLPEndpoint)
	}

	if !snap.StartTime.Equal(start) {
		t.Fatalf("expected start time %v, got %v", start, snap.StartTime)
	}

	if !snap.Exports["span_console"] || !snap.Exports["span_cloud"] {
		t.Fatalf("unexpected export toggles: %v", snap.Exports)
	}

	if snap.Exports["runtime_metrics"] {
		t.Fatal("expected runtime metrics export to be disabled")
	}

	if snap.TraceQueueLimit != 0 || snap.TraceDroppedSpans != 0 {
		t.Fatal("expected zero trace stats without an exporter")
	}
}

func TestSnapshotExporterStatus(t *testing.T) {
	t.Parallel()

	traceStats := &traceExporterStats{
		queueLimit: 512,
		protocol:   "grpc",
		endpoint:   "collector:4317",
	}
	traceStats.dropped.Store(droppedSpans)

	metricStats := &metricExporterStats{
		protocol: "http",
		endpoint: collectorEndpoint,
	}

	rt := &Runtime{
		cfg: config.Config{ServiceName: "svc"},
		exporters: &exporterBundle{
			traceStats:  traceStats,
			metricStats: metricStats,
		},
	}

	snap := rt.Snapshot()

	if snap.TraceQueueLimit != 512 {
		t.Fatalf("expected trace queue limit 512, got %d", snap.TraceQueueLimit)
	}

	if snap.TraceDroppedSpans != droppedSpans {
		t.Fatalf("expected dropped spans %d, got %d", droppedSpans, snap.TraceDroppedSpans)
	}

	if snap.TraceExporter.Endpoint != "collector:4317" {
		t.Fatalf("expected trace exporter endpoint collector:4317, got %s", snap.TraceExporter.Endpoint)
	}

	if snap.MetricExporter.Endpoint != collectorEndpoint {
		t.Fatalf("expected metric exporter endpoint collector:4318, got %s", snap.MetricExporter.Endpoint)
	}

	if snap.MetricExporter.Protocol != "http" {
		t.Fatalf("expected metric protocol http, got %s", snap.MetricExporter.Protocol)
	}
}

func TestNewPropagatorIncludesXRayInCloudMode(t *testing.T) {
	t.Parallel()

	cloud := config.DefaultConfig()

	fields := newPropagator(cloud).Fields()
	if !slices.Contains(fields, "X-Amzn-Trace-Id") {
		t.Fatalf("expected x-ray propagation field, got %v", fields)
	}

	local := config.DefaultConfig()
	local.LocalMode = true

	fields = newPropagator(local).Fields()
	if slices.Contains(fields, "X-Amzn-Trace-Id") {
		t.Fatalf("expected no x-ray propagation field in local mode, got %v", fields)
	}

	if !slices.Contains(fields, "traceparent") {
		t.Fatalf("expected w3c propagation field, got %v", fields)
	}
}

func TestBuildLoggerProvider(t *testing.T) {
	t.Parallel()

	res := resource.Default()

	if got := buildLoggerProvider(res, &exporterBundle{}); got != nil {
		t.Fatal("expected nil provider without a log exporter")
	}

	cfg := config.DefaultConfig()
	cfg.LocalMode = true

	bundle := &exporterBundle{}

	err := bundle.attachLogExporter(context.Background(), cfg, cfg.OTLPEndpoint)
	if err != nil {
		t.Fatalf("attach log exporter: %v", err)
	}

	if bundle.logBatching {
		t.Fatal("expected simple processing in local mode")
	}

	if provider := buildLoggerProvider(res, bundle); provider == nil {
		t.Fatal("expected logger provider with a log exporter")
	}
}
