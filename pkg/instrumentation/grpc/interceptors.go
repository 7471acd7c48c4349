// Package grpc provides gRPC client and server instrumentation.
package grpc

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
)

// Options tunes the interceptors.
type Options struct {
	// MetadataAllowlist names the metadata keys copied onto spans. Nothing
	// is copied when empty.
	MetadataAllowlist []string
}

// Interceptors bundles unary server and client interceptors. Server spans
// join the trace carried in the incoming metadata; client spans propagate
// theirs on the outgoing metadata.
type Interceptors struct {
	unaryServer grpc.UnaryServerInterceptor
	unaryClient grpc.UnaryClientInterceptor
}

// NewInterceptors constructs interceptors backed by the supplied tracer
// provider. cfg supplies the service identity stamped on every span.
func NewInterceptors(tp trace.TracerProvider, cfg config.Config, opts Options) Interceptors {
	tracer := tp.Tracer("traceroot/grpc")
	allowlist := buildAllowlist(opts.MetadataAllowlist)
	service := serviceAttrs(cfg)

	return Interceptors{
		unaryServer: newUnaryServerInterceptor(tracer, service, allowlist),
		unaryClient: newUnaryClientInterceptor(tracer, service, allowlist),
	}
}

// UnaryServer returns the configured unary server interceptor.
func (i Interceptors) UnaryServer() grpc.UnaryServerInterceptor {
	return i.unaryServer
}

// UnaryClient returns the configured unary client interceptor.
func (i Interceptors) UnaryClient() grpc.UnaryClientInterceptor {
	return i.unaryClient
}

func newUnaryServerInterceptor(tracer trace.Tracer, service []attribute.KeyValue, allowlist map[string]struct{}) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		rpcService, method := splitFullMethod(info.FullMethod)

		md, hasMD := metadata.FromIncomingContext(ctx)
		if hasMD {
			ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))
		}

		ctx, span := tracer.Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		attrs := append([]attribute.KeyValue{
			semconv.RPCSystemGRPC,
			semconv.RPCServiceKey.String(rpcService),
			semconv.RPCMethodKey.String(method),
		}, service...)

		if hasMD {
			attrs = append(attrs, metadataAttrs(md, allowlist)...)
		}

		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return resp, err
	}
}

func newUnaryClientInterceptor(tracer trace.Tracer, service []attribute.KeyValue, allowlist map[string]struct{}) grpc.UnaryClientInterceptor {
	return func(ctx context.Context,
		method string, req,
		reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		rpcService, rpcMethod := splitFullMethod(method)

		ctx, span := tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()

		attrs := append([]attribute.KeyValue{
			semconv.RPCSystemGRPC,
			semconv.RPCServiceKey.String(rpcService),
			semconv.RPCMethodKey.String(rpcMethod),
		}, service...)

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()

			attrs = append(attrs, metadataAttrs(md, allowlist)...)
		} else {
			md = metadata.MD{}
		}

		otel.GetTextMapPropagator().Inject(ctx, metadataCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		span.SetAttributes(attrs...)

		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			return err
		}

		span.SetStatus(codes.Ok, "")

		return nil
	}
}

// metadataCarrier adapts gRPC metadata to the propagation carrier interface.
type metadataCarrier metadata.MD

// Get returns the first value for key.
func (mc metadataCarrier) Get(key string) string {
	values := metadata.MD(mc).Get(key)
	if len(values) == 0 {
		return ""
	}

	return values[0]
}

// Set stores a key/value pair, replacing existing values.
func (mc metadataCarrier) Set(key, value string) {
	metadata.MD(mc).Set(key, value)
}

// Keys lists the keys stored in the carrier.
func (mc metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for key := range mc {
		keys = append(keys, key)
	}

	return keys
}

func serviceAttrs(cfg config.Config) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("hash", cfg.Name),
		attribute.String("service_name", cfg.ServiceName),
		attribute.String("service_environment", cfg.Environment),
	}
}

func buildAllowlist(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}

	out := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}

		out[key] = struct{}{}
	}

	return out
}

func metadataAttrs(md metadata.MD, allowlist map[string]struct{}) []attribute.KeyValue {
	if len(md) == 0 || len(allowlist) == 0 {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, len(allowlist))
	for key := range allowlist {
		values := md.Get(key)
		if len(values) == 0 {
			continue
		}

		attrKey := attribute.Key("rpc.metadata." + key)
		attrs = append(attrs, attrKey.String(strings.Join(values, ",")))
	}

	return attrs
}

func splitFullMethod(full string) (service, method string) {
	full = strings.TrimPrefix(full, "/")
	if full == "" {
		service = "unknown"
		method = "unknown"

		return service, method
	}

	parts := strings.Split(full, "/")
	if len(parts) != 2 {
		service = full
		method = "unknown"

		return service, method
	}

	service = parts[0]
	method = parts[1]

	return service, method
}
