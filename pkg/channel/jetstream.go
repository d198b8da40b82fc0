package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/nats-io/nats.go"
)

// JetStream is a Channel backed by a JetStream stream with durable consumers.
// Messages published while a subscriber is away are retained for cfg.MaxAge
// and delivered when it comes back. Messages are acked after the handler
// returns, or nak'd for redelivery when the handler rejected them. A handler
// that queues work acks on hand-off, so work lost after that is not retried.
type JetStream struct {
	*NATS
	js     nats.JetStreamContext
	stream string

	mu    sync.Mutex
	ready bool
}

// DialJetStream connects and makes sure the stream exists. When the broker is
// not reachable yet, stream creation is retried on first use.
func DialJetStream(ctx context.Context, cfg Config) (*JetStream, error) {
	base, err := DialNATS(ctx, cfg)
	if err != nil {
		return nil, err
	}

	js, err := base.nc.JetStream()
	if err != nil {
		_ = base.Close()
		return nil, core.NewChannelConnectError(base.url, err)
	}

	j := &JetStream{
		NATS:   base,
		js:     js,
		stream: sanitizeStreamName(base.cfg.Prefix),
	}
	if base.Connected() {
		if err := j.ensureStream(); err != nil {
			j.logger.Warnf("stream %s not ready: %v", j.stream, err)
		}
	}
	return j, nil
}

func (j *JetStream) Kind() string { return KindJetStream }

// Stream returns the stream name.
func (j *JetStream) Stream() string { return j.stream }

func (j *JetStream) ensureStream() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ready {
		return nil
	}

	_, err := j.js.StreamInfo(j.stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = j.js.AddStream(&nats.StreamConfig{
			Name:      j.stream,
			Subjects:  []string{j.cfg.Prefix + ".>"},
			Storage:   nats.MemoryStorage,
			Retention: nats.LimitsPolicy,
			MaxAge:    j.cfg.MaxAge,
		})
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", j.stream, err)
	}
	j.ready = true
	return nil
}

// Publish stores the message in the stream. The broker ack is not awaited.
func (j *JetStream) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if err := j.ensureStream(); err != nil {
		return publishError(topic, err)
	}

	msg := &nats.Msg{
		Subject: j.subject(topic),
		Data:    payload,
		Header:  toNATSHeader(outboundHeaders(ctx)),
	}
	if _, err := j.js.PublishMsgAsync(msg); err != nil {
		return publishError(topic, err)
	}
	return nil
}

// Subscribe creates or resumes a durable consumer for topic. The consumer is
// named after the queue group when one is given, otherwise after cfg.Durable.
func (j *JetStream) Subscribe(topic string, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, core.NewSubscribeError(topic, err)
	}
	if handler == nil {
		return nil, core.NewSubscribeError(topic, errors.New("handler is nil"))
	}
	if err := j.ensureStream(); err != nil {
		return nil, core.NewSubscribeError(topic, err)
	}
	o := buildSubscribeOptions(opts)

	name := j.cfg.Durable
	if o.Queue != "" {
		name = o.Queue
	}
	durable := sanitizeConsumerName(name + "_" + topic)

	cb := func(nm *nats.Msg) {
		headers := fromNATSHeader(nm.Header)
		msg := &Message{Topic: topic, Data: nm.Data, Headers: headers}
		deliver(inboundContext(j.ctx, headers), j.logger, handler, msg)
		if msg.Rejected() {
			if err := nm.NakWithDelay(j.cfg.ReconnectWait); err != nil {
				j.logger.Warnf("nak on %s failed: %v", topic, err)
			}
			return
		}
		if err := nm.Ack(); err != nil {
			j.logger.Warnf("ack on %s failed: %v", topic, err)
		}
	}

	subOpts := []nats.SubOpt{
		nats.BindStream(j.stream),
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckWait(j.cfg.AckWait),
		nats.DeliverAll(),
	}

	var (
		sub *nats.Subscription
		err error
	)
	if o.Queue != "" {
		sub, err = j.js.QueueSubscribe(j.subject(topic), sanitizeConsumerName(o.Queue), cb, subOpts...)
	} else {
		sub, err = j.js.Subscribe(j.subject(topic), cb, subOpts...)
	}
	if err != nil {
		return nil, core.NewSubscribeError(topic, err)
	}
	return &natsSubscription{topic: topic, sub: sub}, nil
}

func sanitizeStreamName(prefix string) string {
	s := strings.TrimSpace(prefix)
	s = strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(s)
	return strings.ToUpper(s)
}

func sanitizeConsumerName(s string) string {
	x := strings.TrimSpace(s)
	return strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_", "/", "_").Replace(x)
}
