package otel

import (
	"net/http"

	"github.com/fluxorio/wordbridge/pkg/web"
	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type requestHeaderCarrier struct {
	c *web.RequestContext
}

func (h requestHeaderCarrier) Get(key string) string { return h.c.Header(key) }
func (h requestHeaderCarrier) Set(string, string)    {}
func (h requestHeaderCarrier) Keys() []string        { return nil }

var _ propagation.TextMapCarrier = requestHeaderCarrier{}

// Middleware starts a server span per request, continuing any incoming
// traceparent, and stores it in the request context.
func Middleware() web.Middleware {
	return func(next web.Handler) web.Handler {
		return func(c *web.RequestContext) error {
			ctx := gotel.GetTextMapPropagator().Extract(c.Context(), requestHeaderCarrier{c})
			ctx, span := Tracer().Start(ctx, c.Method()+" "+c.Path(),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", c.Method()),
					attribute.String("url.path", c.Path()),
					attribute.String("request.id", c.RequestID()),
				),
			)
			defer span.End()
			c.SetContext(ctx)

			err := next(c)
			if err != nil {
				web.WriteError(c, err)
			}

			status := c.RequestCtx.Response.StatusCode()
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if err != nil {
				span.RecordError(err)
			}
			if status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			return nil
		}
	}
}
