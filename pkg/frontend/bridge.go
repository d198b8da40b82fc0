package frontend

import (
	"context"
	"sync"

	"github.com/fluxorio/wordbridge/pkg/channel"
	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/core/failfast"
	metrics "github.com/fluxorio/wordbridge/pkg/observability/prometheus"
	"github.com/fluxorio/wordbridge/pkg/reply"
	"github.com/fluxorio/wordbridge/pkg/words"
)

// Subscriber is the subscribing half of a channel.Channel.
type Subscriber interface {
	Subscribe(topic string, handler channel.Handler, opts ...channel.SubscribeOption) (channel.Subscription, error)
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Topic   string // reply topic
	Logger  core.Logger
	Metrics *metrics.Metrics
}

// Bridge moves replies from the reply topic into the reply buffer.
type Bridge struct {
	sub     Subscriber
	buf     *reply.Buffer
	topic   string
	logger  core.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	subscription channel.Subscription
}

// NewBridge creates a Bridge feeding buf.
func NewBridge(sub Subscriber, buf *reply.Buffer, opts BridgeOptions) *Bridge {
	failfast.NotNil(sub, "subscriber")
	failfast.NotNil(buf, "reply buffer")

	if opts.Topic == "" {
		opts.Topic = words.DefaultReplyTopic
	}
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger()
	}
	return &Bridge{
		sub:     sub,
		buf:     buf,
		topic:   opts.Topic,
		logger:  opts.Logger.WithFields(map[string]interface{}{"component": "bridge", "topic": opts.Topic}),
		metrics: opts.Metrics,
	}
}

// Start subscribes to the reply topic. The error is a SubscribeError; the
// caller decides whether to run without replies.
func (b *Bridge) Start() error {
	s, err := b.sub.Subscribe(b.topic, b.Handle)
	if err != nil {
		b.logger.Errorf("reply subscription failed: %v", err)
		return err
	}
	b.mu.Lock()
	b.subscription = s
	b.mu.Unlock()
	b.logger.Info("subscribed to replies")
	return nil
}

// Stop unsubscribes.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	s := b.subscription
	b.subscription = nil
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Unsubscribe()
}

// Handle offers a decoded reply to the buffer. Malformed payloads are logged
// and dropped.
func (b *Bridge) Handle(ctx context.Context, msg *channel.Message) {
	_, obj, err := words.DecodeReply(msg.Data)
	if err != nil {
		b.logger.WithFields(map[string]interface{}{"request_id": core.GetRequestID(ctx)}).
			Warnf("dropping reply: %v", err)
		b.metrics.RecordDrop("malformed")
		return
	}
	b.buf.Offer(obj)
	b.metrics.RecordReply()
}
