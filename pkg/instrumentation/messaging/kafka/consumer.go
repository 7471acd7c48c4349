package kafka

import (
	"context"
	"errors"

	"github.com/hyp3rd/ewrap"
	"github.com/segmentio/kafka-go"

	"github.com/traceroot-ai/traceroot-sdk/pkg/instrumentation/messaging"
)

// Handler processes a Kafka message.
type Handler func(context.Context, kafka.Message) error

// Consumer runs a fetch, process, commit loop over a kafka.Reader. Each
// message is handled under a consumer span that joins the producer's trace
// when the headers carry one.
type Consumer struct {
	reader kafkaReader
	helper *messaging.Helper
}

// NewConsumer wraps the provided kafka.Reader.
func NewConsumer(r *kafka.Reader, helper *messaging.Helper) *Consumer {
	return NewConsumerWith(r, helper)
}

// NewConsumerWith accepts any reader implementing the subset of kafka.Reader used by the consumer.
func NewConsumerWith(r kafkaReader, helper *messaging.Helper) *Consumer {
	return &Consumer{
		reader: r,
		helper: helper,
	}
}

// Run starts the consumption loop until the context is cancelled or the handler returns an error.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	err := c.validate(handler)
	if err != nil {
		return err
	}

	cfg := c.reader.Config()

	for {
		err := ctx.Err()
		if err != nil {
			return ewrap.Wrap(err, "context error")
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ewrap.Wrap(err, "context error")
			}

			return ewrap.Wrap(err, "fetch kafka message")
		}

		err = c.processMessage(ctx, cfg, msg, handler)
		if err != nil {
			return err
		}

		err = c.commit(ctx, msg)
		if err != nil {
			return err
		}
	}
}

func (c *Consumer) validate(handler Handler) error {
	if handler == nil {
		return ewrap.New("handler is nil")
	}

	if c.reader == nil {
		return ewrap.New("kafka reader is nil")
	}

	return nil
}

func (c *Consumer) processMessage(
	ctx context.Context,
	cfg kafka.ReaderConfig,
	msg kafka.Message,
	handler Handler,
) error {
	msgCtx := ExtractContext(ctx, msg)

	if c.helper == nil {
		return handler(msgCtx, msg)
	}

	info := messaging.ConsumeInfo{
		System:          "kafka",
		Destination:     cfg.Topic,
		DestinationKind: "topic",
		Group:           cfg.GroupID,
		Attributes:      messageAttrs(msg),
	}

	return c.helper.InstrumentConsume(msgCtx, info, func(ctx context.Context) error {
		return handler(ctx, msg)
	})
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	err := c.reader.CommitMessages(ctx, msg)
	if err != nil {
		return ewrap.Wrap(err, "commit kafka message")
	}

	return nil
}
