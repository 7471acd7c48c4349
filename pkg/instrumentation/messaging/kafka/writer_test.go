package kafka_test

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
	"github.com/traceroot-ai/traceroot-sdk/pkg/instrumentation/messaging"
	tracerootkafka "github.com/traceroot-ai/traceroot-sdk/pkg/instrumentation/messaging/kafka"
)

func testConfig() config.Config {
	return config.Config{
		Name:        "tenant-hash",
		ServiceName: "checkout",
		Environment: "staging",
	}
}

func TestWriterInstrumentsPublish(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	helper, err := messaging.NewHelper(tp, mp, testConfig())
	if err != nil {
		t.Fatalf("NewHelper returned error: %v", err)
	}

	stub := &stubKafkaWriter{}
	writer := tracerootkafka.NewWriterWith(stub, helper)

	msg := kafka.Message{Topic: "orders", Value: []byte("data")}

	err = writer.WriteMessages(ctx, msg)
	if err != nil {
		t.Fatalf("WriteMessages returned error: %v", err)
	}

	if !stub.called {
		t.Fatal("expected underlying writer to be called")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected span to be recorded, got %d", len(spans))
	}

	if spans[0].Name() != "orders" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
}

func TestWriterInjectsTraceHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		otel.SetTextMapPropagator(prev)
	})

	tp := trace.NewTracerProvider()
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewManualReader()))

	helper, err := messaging.NewHelper(tp, mp, testConfig())
	if err != nil {
		t.Fatalf("NewHelper returned error: %v", err)
	}

	stub := &stubKafkaWriter{}
	writer := tracerootkafka.NewWriterWith(stub, helper)

	err = writer.WriteMessages(context.Background(), kafka.Message{Topic: "orders"})
	if err != nil {
		t.Fatalf("WriteMessages returned error: %v", err)
	}

	if len(stub.messages) != 1 {
		t.Fatalf("expected 1 message written, got %d", len(stub.messages))
	}

	if !hasHeader(stub.messages[0], "traceparent") {
		t.Fatal("expected traceparent header on published message")
	}
}

func hasHeader(msg kafka.Message, key string) bool {
	for _, h := range msg.Headers {
		if h.Key == key {
			return true
		}
	}

	return false
}

type stubKafkaWriter struct {
	called   bool
	messages []kafka.Message
}

func (s *stubKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	s.called = true
	s.messages = append(s.messages, msgs...)

	return nil
}
