// Package frontend is the HTTP side of the bridge: it publishes submitted
// words as work units and hands buffered replies to pollers.
package frontend

import (
	"context"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/core/failfast"
	metrics "github.com/fluxorio/wordbridge/pkg/observability/prometheus"
	tracing "github.com/fluxorio/wordbridge/pkg/observability/otel"
	"github.com/fluxorio/wordbridge/pkg/reply"
	"github.com/fluxorio/wordbridge/pkg/web"
	"github.com/fluxorio/wordbridge/pkg/words"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultOrigin tags work units published by this front end.
const DefaultOrigin = "Go"

// Publisher is the publishing half of a channel.Channel.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Topic   string // publish topic
	Origin  string
	Logger  core.Logger
	Metrics *metrics.Metrics
}

// Service implements the submit and poll endpoints.
type Service struct {
	pub     Publisher
	buf     *reply.Buffer
	topic   string
	origin  string
	logger  core.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service publishing through pub and polling buf.
func NewService(pub Publisher, buf *reply.Buffer, opts ServiceOptions) *Service {
	failfast.NotNil(pub, "publisher")
	failfast.NotNil(buf, "reply buffer")

	if opts.Topic == "" {
		opts.Topic = words.DefaultPublishTopic
	}
	if opts.Origin == "" {
		opts.Origin = DefaultOrigin
	}
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger()
	}
	return &Service{
		pub:     pub,
		buf:     buf,
		topic:   opts.Topic,
		origin:  opts.Origin,
		logger:  opts.Logger.WithFields(map[string]interface{}{"component": "frontend", "topic": opts.Topic}),
		metrics: opts.Metrics,
	}
}

type submitRequest struct {
	Words string `json:"words"`
}

type submitResponse struct {
	MsgCount int `json:"msgCount"`
}

// Submit handles POST /rest/words.
func (s *Service) Submit(c *web.RequestContext) error {
	var req submitRequest
	if err := c.BindJSON(&req); err != nil {
		return err
	}
	n, err := s.SubmitWords(c.Context(), req.Words)
	if err != nil {
		return err
	}
	return c.JSON(200, submitResponse{MsgCount: n})
}

// SubmitWords publishes one work unit per space-separated token of text and
// returns the number of publish calls made. Publish failures are logged and
// counted but do not stop the remaining tokens.
func (s *Service) SubmitWords(ctx context.Context, text string) (int, error) {
	if text == "" {
		return 0, core.NewValidationError("words is required")
	}

	units := words.Units(text, s.origin)
	ctx, span := tracing.Tracer().Start(ctx, "words.submit",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", s.topic),
			attribute.Int("words.count", len(units)),
		),
	)
	defer span.End()

	failed := 0
	for _, u := range units {
		payload, err := u.Encode()
		if err == nil {
			err = s.pub.Publish(ctx, s.topic, payload)
		}
		s.metrics.RecordPublish(s.topic, err)
		if err != nil {
			failed++
			s.logger.WithFields(map[string]interface{}{"request_id": core.GetRequestID(ctx)}).
				Warnf("publish failed: %v", err)
		}
	}
	if failed > 0 {
		span.SetAttributes(attribute.Int("words.failed", failed))
	}

	s.metrics.RecordSubmission()
	return len(units), nil
}

// Poll handles GET /rest/wordsuppercase: one held reply, or 204 when none.
func (s *Service) Poll(c *web.RequestContext) error {
	payload, ok := s.buf.TakeOne()
	s.metrics.RecordPoll(ok)
	if !ok {
		return c.NoContent()
	}
	return c.Raw(200, "application/json", payload)
}
