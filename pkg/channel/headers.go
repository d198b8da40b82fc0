package channel

import (
	"context"
	"strings"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// headerCarrier adapts message headers to the otel TextMapCarrier. Brokers may
// change key case, so Get falls back to a case-insensitive match.
type headerCarrier map[string]string

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		return v
	}
	for k, v := range c {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) { c[key] = value }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// outboundHeaders carries the request id and trace context of ctx.
func outboundHeaders(ctx context.Context) map[string]string {
	h := make(map[string]string, 3)
	if rid := core.GetRequestID(ctx); rid != "" {
		h[core.RequestIDHeader] = rid
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(h))
	return h
}

// inboundContext restores the request id and trace context carried by headers.
func inboundContext(base context.Context, headers map[string]string) context.Context {
	carrier := headerCarrier(headers)
	ctx := otel.GetTextMapPropagator().Extract(base, carrier)
	if rid := carrier.Get(core.RequestIDHeader); rid != "" {
		ctx = core.WithRequestID(ctx, rid)
	}
	return ctx
}

func toNATSHeader(h map[string]string) nats.Header {
	out := nats.Header{}
	for k, v := range h {
		out[k] = []string{v}
	}
	return out
}

func fromNATSHeader(h nats.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// deliver runs handler and keeps a panicking handler from killing the
// dispatch goroutine.
func deliver(ctx context.Context, logger core.Logger, handler Handler, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("handler for %s panicked: %v", msg.Topic, r)
		}
	}()
	handler(ctx, msg)
}
