package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	httpinstr "github.com/traceroot-ai/traceroot-sdk/pkg/instrumentation/http"
)

func newTestMiddleware(t *testing.T, opts httpinstr.Options) (*httpinstr.Middleware, *tracetest.SpanRecorder, *metric.ManualReader) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	cfg := config.Config{
		Name:        "tenant-hash",
		ServiceName: "checkout",
		Environment: "staging",
	}

	mw, err := httpinstr.NewMiddleware(tp, mp, cfg, opts)
	if err != nil {
		t.Fatalf("NewMiddleware returned error: %v", err)
	}

	return mw, recorder, reader
}

func TestMiddlewareRecordsSpanAndMetrics(t *testing.T) {
	t.Parallel()

	mw, recorder, reader := newTestMiddleware(t, httpinstr.Options{})

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name() != "GET /orders" {
		t.Fatalf("unexpected span name %q", span.Name())
	}

	if span.SpanKind() != trace.SpanKindServer {
		t.Fatalf("unexpected span kind %v", span.SpanKind())
	}

	if span.Status().Code != codes.Ok {
		t.Fatalf("unexpected span status %v", span.Status().Code)
	}

	if !hasStringAttr(span.Attributes(), "service_name", "checkout") {
		t.Fatal("expected service_name attribute on span")
	}

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	if err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	if !hasMetric(rm, "http.server.requests") {
		t.Fatal("expected http.server.requests metric")
	}

	if !hasMetric(rm, "http.server.duration.ms") {
		t.Fatal("expected http.server.duration.ms metric")
	}
}

func TestMiddlewareMarksServerErrors(t *testing.T) {
	t.Parallel()

	mw, recorder, _ := newTestMiddleware(t, httpinstr.Options{})

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/charge", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	if spans[0].Status().Code != codes.Error {
		t.Fatalf("unexpected span status %v", spans[0].Status().Code)
	}
}

func TestMiddlewareIgnoresRoutes(t *testing.T) {
	t.Parallel()

	mw, recorder, _ := newTestMiddleware(t, httpinstr.Options{
		IgnoredRoutes: []string{"/healthz"},
	})

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if spans := recorder.Ended(); len(spans) != 0 {
		t.Fatalf("expected no spans for ignored route, got %d", len(spans))
	}
}

func TestMiddlewareJoinsRemoteTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		otel.SetTextMapPropagator(prev)
	})

	mw, recorder, _ := newTestMiddleware(t, httpinstr.Options{})

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected span to join remote trace, got trace id %s", got)
	}
}

func hasStringAttr(attrs []attribute.KeyValue, key, want string) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key && kv.Value.AsString() == want {
			return true
		}
	}

	return false
}

func hasMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return true
			}
		}
	}

	return false
}
