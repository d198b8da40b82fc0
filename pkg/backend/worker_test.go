package backend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fluxorio/wordbridge/pkg/channel"
	"github.com/fluxorio/wordbridge/pkg/core"
	metrics "github.com/fluxorio/wordbridge/pkg/observability/prometheus"
	"github.com/fluxorio/wordbridge/pkg/words"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	inTopic  = "test/words"
	outTopic = "test/wordsuppercase"
)

type collector struct {
	mu      sync.Mutex
	msgs    []*channel.Message
	arrived chan struct{}
}

func newCollector() *collector {
	return &collector{arrived: make(chan struct{}, 100)}
}

func (c *collector) handle(ctx context.Context, msg *channel.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.arrived <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []*channel.Message {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.arrived:
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of %d messages", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*channel.Message(nil), c.msgs...)
}

func setup(t *testing.T, opts Options) (channel.Channel, *Worker, *collector) {
	t.Helper()
	ch := channel.NewMemory(context.Background(), channel.Config{Logger: core.NewNopLogger()})
	t.Cleanup(func() { ch.Close() })

	out := newCollector()
	if _, err := ch.Subscribe(outTopic, out.handle); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	opts.InTopic, opts.OutTopic = inTopic, outTopic
	if opts.Logger == nil {
		opts.Logger = core.NewNopLogger()
	}
	w := NewWorker(ch, opts)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { w.Stop(context.Background()) })
	return ch, w, out
}

func publishUnit(t *testing.T, ch channel.Channel, ctx context.Context, text string) {
	t.Helper()
	payload, _ := words.WorkUnit{Text: text, Origin: "test"}.Encode()
	if err := ch.Publish(ctx, inTopic, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestWorker_UppercasesAndTagsOrigin(t *testing.T) {
	ch, w, out := setup(t, Options{Origin: "Go:test"})

	publishUnit(t, ch, context.Background(), "alpha")
	msgs := out.wait(t, 1)

	r, _, err := words.DecodeReply(msgs[0].Data)
	if err != nil {
		t.Fatalf("DecodeReply failed: %v", err)
	}
	if r.Text != "ALPHA" || r.Origin != "Go:test" || w.Origin() != "Go:test" {
		t.Errorf("reply = %+v", r)
	}
	if !strings.Contains(string(msgs[0].Data), `"backend":"Go:test"`) {
		t.Errorf("wire reply = %s", msgs[0].Data)
	}
}

func TestWorker_EmptyWordStillReplies(t *testing.T) {
	ch, _, out := setup(t, Options{})

	publishUnit(t, ch, context.Background(), "")
	msgs := out.wait(t, 1)
	if r, _, err := words.DecodeReply(msgs[0].Data); err != nil || r.Text != "" {
		t.Errorf("reply = %+v, %v", r, err)
	}
}

func TestWorker_PropagatesRequestID(t *testing.T) {
	ch, _, out := setup(t, Options{})

	publishUnit(t, ch, core.WithRequestID(context.Background(), "req-42"), "beta")
	msgs := out.wait(t, 1)
	if got := msgs[0].Headers[core.RequestIDHeader]; got != "req-42" {
		t.Errorf("reply request id = %q", got)
	}
}

func TestWorker_DropsMalformed(t *testing.T) {
	m := metrics.NewMetrics("test")
	ch, _, out := setup(t, Options{Metrics: m})

	ch.Publish(context.Background(), inTopic, []byte("not json"))
	ch.Publish(context.Background(), inTopic, []byte(`{"frontend":"x"}`))
	publishUnit(t, ch, context.Background(), "gamma")

	msgs := out.wait(t, 1)
	if r, _, _ := words.DecodeReply(msgs[0].Data); r.Text != "GAMMA" {
		t.Errorf("reply = %+v", r)
	}

	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(m.Transforms.WithLabelValues("malformed")) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("malformed count = %v", testutil.ToFloat64(m.Transforms.WithLabelValues("malformed")))
		}
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case <-out.arrived:
		t.Error("malformed unit produced a reply")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorker_DelayDoesNotBlockDispatch(t *testing.T) {
	ch, _, out := setup(t, Options{Delay: 200 * time.Millisecond, Workers: 8})

	start := time.Now()
	for _, w := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		publishUnit(t, ch, context.Background(), w)
	}
	out.wait(t, 8)

	// Serial handling on the dispatch goroutine would take 8 x 200ms.
	if elapsed := time.Since(start); elapsed > 1200*time.Millisecond {
		t.Errorf("8 delayed units took %v", elapsed)
	}
}

func TestWorker_StopFinishesQueuedUnits(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	ch, w, out := setup(t, Options{Workers: 1, Transform: func(s string) string {
		started <- struct{}{}
		<-release
		return strings.ToUpper(s)
	}})

	publishUnit(t, ch, context.Background(), "one")
	publishUnit(t, ch, context.Background(), "two")
	<-started

	deadline := time.Now().Add(5 * time.Second)
	for w.Executor().Stats().QueuedTasks != 1 {
		if time.Now().After(deadline) {
			t.Fatal("second unit never queued")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- w.Stop(ctx)
	}()
	close(release)

	out.wait(t, 2)
	if err := <-stopped; err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestWorker_OverloadedUnitIsRejected(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	m := metrics.NewMetrics("overload")
	ch, w, out := setup(t, Options{Workers: 1, QueueSize: 1, Metrics: m, Transform: func(s string) string {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return strings.ToUpper(s)
	}})

	publishUnit(t, ch, context.Background(), "busy")
	<-started

	payload, _ := words.WorkUnit{Text: "queued", Origin: "test"}.Encode()
	queued := &channel.Message{Topic: inTopic, Data: payload}
	w.Handle(context.Background(), queued)
	dropped := &channel.Message{Topic: inTopic, Data: payload}
	w.Handle(context.Background(), dropped)

	if queued.Rejected() {
		t.Error("queued unit should not be rejected")
	}
	if !dropped.Rejected() {
		t.Error("unit refused by a full executor should be rejected")
	}
	if got := testutil.ToFloat64(m.Transforms.WithLabelValues("overloaded")); got != 1 {
		t.Errorf("overloaded transforms = %v, want 1", got)
	}

	close(release)
	out.wait(t, 2)
}

func TestWorker_QueueGroupSharesWork(t *testing.T) {
	ch, _, out := setup(t, Options{Queue: "workers"})

	second := NewWorker(ch, Options{InTopic: inTopic, OutTopic: outTopic, Queue: "workers", Logger: core.NewNopLogger()})
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer second.Stop(context.Background())

	for i := 0; i < 4; i++ {
		publishUnit(t, ch, context.Background(), "w")
	}
	out.wait(t, 4)

	select {
	case <-out.arrived:
		t.Error("queue group delivered a unit twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDefaultOrigin(t *testing.T) {
	o := DefaultOrigin()
	if !strings.HasPrefix(o, "Go:") || len(o) != len("Go:")+8 {
		t.Errorf("DefaultOrigin() = %q", o)
	}
	if DefaultOrigin() == o {
		t.Error("DefaultOrigin() should differ per call")
	}
}

func TestWorker_StartFailsOnClosedChannel(t *testing.T) {
	ch := channel.NewMemory(context.Background(), channel.Config{Logger: core.NewNopLogger()})
	ch.Close()

	w := NewWorker(ch, Options{Logger: core.NewNopLogger()})
	err := w.Start(context.Background())
	if !errors.Is(err, core.ErrSubscribe) {
		t.Fatalf("Start error = %v, want subscribe error", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop after failed Start = %v", err)
	}
}
