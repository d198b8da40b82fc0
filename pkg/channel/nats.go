package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/nats-io/nats.go"
)

// NATS is a Channel over core NATS publish/subscribe. Delivery is at most once;
// messages published while nobody subscribes are lost.
type NATS struct {
	ctx    context.Context
	cfg    Config
	url    string
	nc     *nats.Conn
	logger core.Logger
	closed chan struct{}
}

// DialNATS connects to cfg.URL. An unreachable broker is not an error: the
// connection keeps retrying in the background and publishes are buffered.
func DialNATS(ctx context.Context, cfg Config) (*NATS, error) {
	cfg = cfg.withDefaults()
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	c := &NATS{
		ctx:    ctx,
		cfg:    cfg,
		url:    url,
		logger: cfg.Logger,
		closed: make(chan struct{}),
	}

	nc, err := nats.Connect(url, c.options()...)
	if err != nil {
		return nil, core.NewChannelConnectError(url, err)
	}
	c.nc = nc

	if !nc.IsConnected() {
		c.logger.Warnf("%v; retrying every %s", core.NewChannelConnectError(url, nats.ErrNoServers), cfg.ReconnectWait)
	}
	return c, nil
}

func (c *NATS) options() []nats.Option {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.ConnectHandler(func(nc *nats.Conn) {
			c.logger.Infof("connected to %s", nc.ConnectedUrlRedacted())
			c.cfg.OnEvent(EventConnected)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warnf("disconnected from %s: %v", c.url, err)
			}
			c.cfg.OnEvent(EventDisconnected)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Infof("reconnected to %s", nc.ConnectedUrlRedacted())
			c.cfg.OnEvent(EventReconnected)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.cfg.OnEvent(EventClosed)
			close(c.closed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				c.logger.Errorf("async error on %s: %v", sub.Subject, err)
				return
			}
			c.logger.Errorf("async error: %v", err)
		}),
	}
	if c.cfg.Name != "" {
		opts = append(opts, nats.Name(c.cfg.Name))
	}
	return opts
}

func (c *NATS) Kind() string { return KindNATS }

func (c *NATS) Connected() bool { return c.nc.IsConnected() }

// Conn exposes the underlying connection.
func (c *NATS) Conn() *nats.Conn { return c.nc }

func (c *NATS) subject(topic string) string { return Subject(c.cfg.Prefix, topic) }

func (c *NATS) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: c.subject(topic),
		Data:    payload,
		Header:  toNATSHeader(outboundHeaders(ctx)),
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return publishError(topic, err)
	}
	return nil
}

func (c *NATS) Subscribe(topic string, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, core.NewSubscribeError(topic, err)
	}
	if handler == nil {
		return nil, core.NewSubscribeError(topic, errors.New("handler is nil"))
	}
	o := buildSubscribeOptions(opts)

	cb := func(nm *nats.Msg) {
		headers := fromNATSHeader(nm.Header)
		msg := &Message{Topic: topic, Data: nm.Data, Headers: headers}
		deliver(inboundContext(c.ctx, headers), c.logger, handler, msg)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if o.Queue != "" {
		sub, err = c.nc.QueueSubscribe(c.subject(topic), o.Queue, cb)
	} else {
		sub, err = c.nc.Subscribe(c.subject(topic), cb)
	}
	if err != nil {
		return nil, core.NewSubscribeError(topic, err)
	}
	return &natsSubscription{topic: topic, sub: sub}, nil
}

// Close drains subscriptions and pending publishes, then closes the connection.
func (c *NATS) Close() error {
	if c.nc.IsClosed() {
		return nil
	}
	if !c.nc.IsConnected() {
		c.nc.Close()
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return nil
	}

	select {
	case <-c.closed:
	case <-time.After(5 * time.Second):
		c.nc.Close()
	}
	return nil
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
}

func (s *natsSubscription) Topic() string { return s.topic }

func (s *natsSubscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		return fmt.Errorf("unsubscribe %s: %w", s.topic, err)
	}
	return nil
}

func publishError(topic string, err error) error {
	if errors.Is(err, nats.ErrConnectionClosed) {
		return &core.Error{Code: core.CodeChannelClosed, Message: "publish to " + topic, Err: err}
	}
	return fmt.Errorf("publish to %s: %w", topic, err)
}
