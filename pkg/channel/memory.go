package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/core/concurrency"
)

// Memory is an in-process Channel. Each subscription owns a bounded mailbox
// drained by one goroutine, so a subscriber sees messages one at a time in
// publish order.
type Memory struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger core.Logger

	mu     sync.RWMutex
	subs   map[string][]*memorySubscription
	rr     map[string]uint64 // round-robin cursor per topic|queue
	nextID uint64
	closed bool
}

// NewMemory creates an in-process channel.
func NewMemory(ctx context.Context, cfg Config) *Memory {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	return &Memory{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: cfg.Logger,
		subs:   make(map[string][]*memorySubscription),
		rr:     make(map[string]uint64),
	}
}

func (m *Memory) Kind() string { return KindMemory }

func (m *Memory) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// Publish enqueues the message for every plain subscriber and for one member
// of each queue group. It returns an OVERLOADED error when a subscriber's
// mailbox is full; other subscribers still receive the message.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	headers := outboundHeaders(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return core.ErrChannelClosed
	}
	targets := m.targetsLocked(topic)
	m.mu.Unlock()

	var overloaded error
	for _, s := range targets {
		msg := &Message{Topic: topic, Data: payload, Headers: copyHeaders(headers)}
		if err := s.mailbox.Send(msg); err != nil {
			if errors.Is(err, concurrency.ErrMailboxFull) && overloaded == nil {
				overloaded = &core.Error{Code: core.CodeOverloaded, Message: "subscriber mailbox full on " + topic, Err: err}
			}
		}
	}
	return overloaded
}

func (m *Memory) targetsLocked(topic string) []*memorySubscription {
	var (
		out    []*memorySubscription
		groups map[string][]*memorySubscription
	)
	for _, s := range m.subs[topic] {
		if s.queue == "" {
			out = append(out, s)
			continue
		}
		if groups == nil {
			groups = make(map[string][]*memorySubscription)
		}
		groups[s.queue] = append(groups[s.queue], s)
	}
	for q, members := range groups {
		key := topic + "|" + q
		out = append(out, members[m.rr[key]%uint64(len(members))])
		m.rr[key]++
	}
	return out
}

// Subscribe starts a dispatch goroutine for handler.
func (m *Memory) Subscribe(topic string, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, core.NewSubscribeError(topic, err)
	}
	if handler == nil {
		return nil, core.NewSubscribeError(topic, errors.New("handler is nil"))
	}
	o := buildSubscribeOptions(opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, core.NewSubscribeError(topic, core.ErrChannelClosed)
	}

	m.nextID++
	ctx, cancel := context.WithCancel(m.ctx)
	s := &memorySubscription{
		id:      m.nextID,
		topic:   topic,
		queue:   o.Queue,
		handler: handler,
		mailbox: concurrency.NewMailbox[*Message](m.cfg.MailboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		owner:   m,
	}
	m.subs[topic] = append(m.subs[topic], s)
	go s.run()
	return s, nil
}

// Close stops every subscription. Queued messages are discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var all []*memorySubscription
	for _, subs := range m.subs {
		all = append(all, subs...)
	}
	m.subs = make(map[string][]*memorySubscription)
	m.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	m.cancel()
	return nil
}

func (m *Memory) remove(s *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[s.topic]
	for i, cur := range subs {
		if cur.id == s.id {
			m.subs[s.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subs[s.topic]) == 0 {
		delete(m.subs, s.topic)
	}
}

type memorySubscription struct {
	id      uint64
	topic   string
	queue   string
	handler Handler
	mailbox *concurrency.Mailbox[*Message]
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	owner   *Memory
	once    sync.Once
}

func (s *memorySubscription) Topic() string { return s.topic }

func (s *memorySubscription) Unsubscribe() error {
	s.owner.remove(s)
	s.stop()
	return nil
}

func (s *memorySubscription) stop() {
	s.once.Do(func() {
		s.cancel()
		s.mailbox.Close()
	})
}

func (s *memorySubscription) run() {
	defer close(s.done)
	for {
		msg, err := s.mailbox.Receive(s.ctx)
		if err != nil {
			return
		}
		deliver(inboundContext(s.ctx, msg.Headers), s.owner.logger, s.handler, msg)
	}
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
