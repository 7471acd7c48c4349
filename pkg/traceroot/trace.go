package traceroot

import (
	"context"
	"encoding/json"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
)

// SpanOptions controls how an operation is traced.
type SpanOptions struct {
	// SpanName overrides the span name. When empty the traced function's
	// name is used.
	SpanName string
	// SpanNameSuffix is appended to the resolved span name.
	SpanNameSuffix string
	// Attributes are recorded on the span and the operation metrics.
	Attributes []attribute.KeyValue
	// RecordReturn captures the function's JSON-encoded return value as a
	// span attribute when it completes without error.
	RecordReturn bool
}

// operationInstruments carries the tracer, the operation metrics, and the
// service identity attributes stamped on every traced operation. A new set is
// built whenever the runtime is swapped.
type operationInstruments struct {
	tracer  trace.Tracer
	counter metric.Int64Counter
	latency metric.Float64Histogram
	service []attribute.KeyValue
}

func newOperationInstruments(cfg config.Config, tp trace.TracerProvider, mp metric.MeterProvider) (*operationInstruments, error) {
	meter := mp.Meter("traceroot")

	counter, err := meter.Int64Counter(
		"traceroot.operation.count",
		metric.WithDescription("Number of operations executed under Trace"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create operation counter")
	}

	latency, err := meter.Float64Histogram(
		"traceroot.operation.duration_ms",
		metric.WithDescription("Latency of operations executed under Trace"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, ewrap.Wrap(err, "create operation latency histogram")
	}

	return &operationInstruments{
		tracer:  tp.Tracer("traceroot"),
		counter: counter,
		latency: latency,
		service: []attribute.KeyValue{
			attribute.String("hash", cfg.Name),
			attribute.String("service_name", cfg.ServiceName),
			attribute.String("service_environment", cfg.Environment),
		},
	}, nil
}

// Trace executes fn inside a span carrying the service identity, recording
// latency and outcome metrics for the operation.
func (c *Client) Trace(ctx context.Context, opts SpanOptions, fn func(context.Context) error) error {
	_, err := TraceValue(ctx, c, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// TraceValue executes fn inside a span like Client.Trace and passes the
// function's value through. With RecordReturn set, the value is recorded on
// the span as JSON.
func TraceValue[T any](ctx context.Context, c *Client, opts SpanOptions, fn func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return fn(ctx)
	}

	ops := c.operations()
	if ops == nil {
		return fn(ctx)
	}

	name := spanName(opts, fn)
	attrs := slices.Concat(ops.service, opts.Attributes)

	ctx, span := ops.tracer.Start(ctx, name)
	start := time.Now()

	span.SetAttributes(attrs...)

	value, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")

		if opts.RecordReturn {
			data, merr := json.Marshal(value)
			if merr == nil {
				span.SetAttributes(attribute.String("return_value", string(data)))
			}
		}
	}

	span.End()

	duration := float64(time.Since(start)) / float64(time.Millisecond)
	ops.latency.Record(ctx, duration, metric.WithAttributes(attrs...))

	countAttrs := append(attrs, attribute.String("operation.result", resultTag(err)))
	ops.counter.Add(ctx, 1, metric.WithAttributes(countAttrs...))

	return value, err
}

// WriteAttributes records attrs on the span active in ctx, if any.
func WriteAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attrs...)
}

func (c *Client) operations() *operationInstruments {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ops
}

func spanName(opts SpanOptions, fn any) string {
	name := opts.SpanName
	if name == "" {
		name = functionName(fn)
	}

	return name + opts.SpanNameSuffix
}

// functionName derives a readable span name from the traced function,
// trimming the package path and the method-value suffix.
func functionName(fn any) string {
	pc := reflect.ValueOf(fn).Pointer()

	f := runtime.FuncForPC(pc)
	if f == nil {
		return "anonymous"
	}

	name := f.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	return strings.TrimSuffix(name, "-fm")
}

func resultTag(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
