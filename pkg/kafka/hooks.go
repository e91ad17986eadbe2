package kafka

import (
	"context"
	"log"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook defines lifecycle hooks around message handling. Hooks can
// mutate context, message, and payload. A non-nil error from BeforeHandle
// skips the handler and routes the message through error processing.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

// NoopHook is the default hook.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

type ctxKey string

// CtxTraceID holds the correlation id extracted from message headers.
const CtxTraceID ctxKey = "kafka_trace_id"

// TraceIDFromContext returns the trace id placed by TracingHook, if any.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxTraceID).(string); ok {
		return v
	}
	return ""
}

// TracingHook propagates a trace_id message header into the handler
// context and logs handling failures with that id attached.
type TracingHook struct{}

func (TracingHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	for _, h := range km.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			ctx = context.WithValue(ctx, CtxTraceID, string(h.Value))
			break
		}
	}
	return ctx, km, data, nil
}

func (TracingHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (TracingHook) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if trace := TraceIDFromContext(ctx); trace != "" {
		log.Printf("kafka consumer: handle failed topic=%s trace_id=%s: %v", topic, trace, err)
	}
}
