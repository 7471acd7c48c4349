package kafka

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// headerCarrier adapts kafka message headers to the propagation carrier
// interface.
type headerCarrier struct {
	headers *[]kafka.Header
}

// Get returns the value of the first header matching key.
func (hc headerCarrier) Get(key string) string {
	for _, h := range *hc.headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}

	return ""
}

// Set replaces any headers named key with a single header carrying value.
func (hc headerCarrier) Set(key, value string) {
	kept := (*hc.headers)[:0]

	for _, h := range *hc.headers {
		if !strings.EqualFold(h.Key, key) {
			kept = append(kept, h)
		}
	}

	*hc.headers = append(kept, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists the header keys.
func (hc headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*hc.headers))
	for _, h := range *hc.headers {
		keys = append(keys, h.Key)
	}

	return keys
}

// ExtractContext returns a context joined to the trace carried in msg's
// headers. The context is returned unchanged when no trace is present.
func ExtractContext(ctx context.Context, msg kafka.Message) context.Context {
	headers := msg.Headers

	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &headers})
}
