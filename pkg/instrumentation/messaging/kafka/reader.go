// Package kafka provides instrumentation for Kafka consumers and producers.
package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/traceroot-ai/traceroot-sdk/pkg/instrumentation/messaging"
)

// Reader wraps a kafka.Reader with instrumentation.
type Reader struct {
	reader kafkaReader
	helper *messaging.Helper
}

type kafkaReader interface {
	Config() kafka.ReaderConfig
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewReader instruments the provided kafka.Reader.
func NewReader(inner *kafka.Reader, helper *messaging.Helper) *Reader {
	return NewReaderWith(inner, helper)
}

// NewReaderWith instruments the provided kafka.Reader.
func NewReaderWith(inner kafkaReader, helper *messaging.Helper) *Reader {
	return &Reader{
		reader: inner,
		helper: helper,
	}
}

// FetchMessage instruments the fetch operation and returns the fetched
// message. Partition, offset, and key land on the span once the message is
// known.
func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.helper == nil {
		return r.reader.FetchMessage(ctx)
	}

	var (
		msg kafka.Message
		err error
	)

	cfg := r.reader.Config()
	info := messaging.ConsumeInfo{
		System:          "kafka",
		Destination:     cfg.Topic,
		DestinationKind: "topic",
		Group:           cfg.GroupID,
		Operation:       "fetch",
	}

	wrappedErr := r.helper.InstrumentConsume(ctx, info, func(ctx context.Context) error {
		msg, err = r.reader.FetchMessage(ctx)
		if err == nil {
			trace.SpanFromContext(ctx).SetAttributes(messageAttrs(msg)...)
		}

		return err
	})
	if wrappedErr != nil {
		return kafka.Message{}, wrappedErr
	}

	return msg, nil
}

// CommitMessages delegates to the underlying reader.
func (r *Reader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return r.reader.CommitMessages(ctx, msgs...)
}

func messageAttrs(msg kafka.Message) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int("kafka.partition", msg.Partition),
		attribute.Int64("kafka.offset", msg.Offset),
	}

	if len(msg.Key) > 0 {
		attrs = append(attrs, attribute.String("kafka.key", string(msg.Key)))
	}

	return attrs
}
