// Package channel is the publish/subscribe transport between the front end and
// the transform worker. Topics are slash-separated strings such as
// "mqlight/sample/words"; implementations map them onto their own addressing.
package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
)

// Kinds accepted by Open.
const (
	KindMemory    = "memory"
	KindNATS      = "nats"
	KindJetStream = "jetstream"
)

// Message is a delivered payload. Data must be treated as read-only.
type Message struct {
	Topic   string
	Data    []byte
	Headers map[string]string

	rejected bool
}

// Reject marks the message as not taken. It must be called before the
// handler returns. JetStream redelivers a rejected message; the other
// channels have no redelivery and ignore it.
func (m *Message) Reject() { m.rejected = true }

// Rejected reports whether Reject was called.
func (m *Message) Rejected() bool { return m.rejected }

// Handler receives messages on the subscription's dispatch goroutine. It must
// return quickly; long work belongs on an executor.
type Handler func(ctx context.Context, msg *Message)

// Subscription is an active subscription.
type Subscription interface {
	Topic() string
	Unsubscribe() error
}

// Channel publishes to and subscribes on topics.
type Channel interface {
	// Publish sends payload to topic without waiting for any consumer.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for topic.
	Subscribe(topic string, handler Handler, opts ...SubscribeOption) (Subscription, error)

	// Connected reports whether the transport is currently usable.
	Connected() bool

	// Kind returns the implementation name.
	Kind() string

	Close() error
}

// SubscribeOptions are set through SubscribeOption.
type SubscribeOptions struct {
	// Queue shares the topic between subscribers of the same group: each
	// message goes to one member.
	Queue string
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*SubscribeOptions)

// WithQueue joins the named queue group.
func WithQueue(group string) SubscribeOption {
	return func(o *SubscribeOptions) { o.Queue = group }
}

func buildSubscribeOptions(opts []SubscribeOption) SubscribeOptions {
	var o SubscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Event is a connection state change.
type Event string

const (
	EventConnected    Event = "connected"
	EventDisconnected Event = "disconnected"
	EventReconnected  Event = "reconnected"
	EventClosed       Event = "closed"
)

// Config configures Open.
type Config struct {
	Kind string

	// URL of the broker, e.g. "nats://127.0.0.1:4222".
	URL string

	// Prefix is prepended to every subject. Default: "wordbridge".
	Prefix string

	// Name identifies the connection on the broker.
	Name string

	// Durable is the base name of JetStream durable consumers.
	Durable string

	// MaxAge bounds how long JetStream retains unconsumed messages.
	MaxAge time.Duration

	// AckWait is the JetStream redelivery timeout.
	AckWait time.Duration

	ReconnectWait time.Duration
	MaxReconnects int

	// MailboxSize bounds each in-memory subscription queue.
	MailboxSize int

	Logger  core.Logger
	OnEvent func(Event)
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "wordbridge"
	}
	if c.Durable == "" {
		c.Durable = "wordbridge"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = time.Minute
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 1024
	}
	if c.Logger == nil {
		c.Logger = core.NewDefaultLogger()
	}
	if c.OnEvent == nil {
		c.OnEvent = func(Event) {}
	}
	return c
}

// Open creates the channel selected by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Channel, error) {
	switch strings.ToLower(cfg.Kind) {
	case KindMemory:
		return NewMemory(ctx, cfg), nil
	case "", KindNATS:
		return DialNATS(ctx, cfg)
	case KindJetStream:
		return DialJetStream(ctx, cfg)
	default:
		return nil, core.NewValidationError("unknown channel kind %q", cfg.Kind)
	}
}

// ValidateTopic rejects topics that cannot be mapped to a subject.
func ValidateTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return &core.Error{Code: core.CodeInvalidTopic, Message: "topic is empty"}
	}
	if strings.ContainsAny(topic, "*> \t\r\n") {
		return &core.Error{Code: core.CodeInvalidTopic, Message: fmt.Sprintf("topic %q contains wildcard or whitespace", topic)}
	}
	for _, part := range strings.Split(strings.Trim(topic, "/"), "/") {
		if part == "" {
			return &core.Error{Code: core.CodeInvalidTopic, Message: fmt.Sprintf("topic %q has an empty level", topic)}
		}
	}
	return nil
}

// Subject maps a topic to a NATS subject: "<prefix>.<levels joined by '.'>".
// Dots inside a level become underscores so levels stay distinct.
func Subject(prefix, topic string) string {
	levels := strings.Split(strings.Trim(topic, "/"), "/")
	for i, l := range levels {
		levels[i] = strings.ReplaceAll(l, ".", "_")
	}
	s := strings.Join(levels, ".")
	if prefix == "" {
		return s
	}
	return prefix + "." + s
}
