// Package backend is the transform worker: it consumes work units, applies
// the transform off the channel's dispatch goroutine and publishes one reply
// per unit.
package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fluxorio/wordbridge/pkg/channel"
	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/core/concurrency"
	"github.com/fluxorio/wordbridge/pkg/core/failfast"
	metrics "github.com/fluxorio/wordbridge/pkg/observability/prometheus"
	tracing "github.com/fluxorio/wordbridge/pkg/observability/otel"
	"github.com/fluxorio/wordbridge/pkg/words"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Transform maps a word to its reply text.
type Transform func(string) string

// Options configures a Worker.
type Options struct {
	InTopic  string // work units
	OutTopic string // replies
	Queue    string // queue group shared by worker instances; empty for fan-out
	Origin   string

	// Delay simulates slow work before each reply.
	Delay time.Duration

	Workers   int
	QueueSize int
	Transform Transform

	Logger  core.Logger
	Metrics *metrics.Metrics
}

// DefaultOrigin tags replies with a per-process instance id.
func DefaultOrigin() string {
	return "Go:" + uuid.NewString()[:8]
}

// Worker consumes work units from a channel.
type Worker struct {
	ch      channel.Channel
	opts    Options
	logger  core.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	exec concurrency.Executor
	sub  channel.Subscription
}

// NewWorker creates a worker on ch.
func NewWorker(ch channel.Channel, opts Options) *Worker {
	failfast.NotNil(ch, "channel")

	if opts.InTopic == "" {
		opts.InTopic = words.DefaultPublishTopic
	}
	if opts.OutTopic == "" {
		opts.OutTopic = words.DefaultReplyTopic
	}
	if opts.Origin == "" {
		opts.Origin = DefaultOrigin()
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}
	if opts.Transform == nil {
		opts.Transform = words.Uppercase
	}
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger()
	}
	return &Worker{
		ch:      ch,
		opts:    opts,
		logger:  opts.Logger.WithFields(map[string]interface{}{"component": "backend", "topic": opts.InTopic}),
		metrics: opts.Metrics,
	}
}

func (w *Worker) Name() string { return "backend" }

// Origin is the tag put on replies.
func (w *Worker) Origin() string { return w.opts.Origin }

// Start creates the executor and subscribes. A subscribe failure is
// returned as a SubscribeError.
func (w *Worker) Start(ctx context.Context) error {
	// Queued units outlive the app context; Stop bounds them instead.
	exec := concurrency.NewExecutor(context.WithoutCancel(ctx), concurrency.ExecutorConfig{
		Name:      "transform",
		Workers:   w.opts.Workers,
		QueueSize: w.opts.QueueSize,
		Logger:    w.logger.Slog(),
	})

	var subOpts []channel.SubscribeOption
	if w.opts.Queue != "" {
		subOpts = append(subOpts, channel.WithQueue(w.opts.Queue))
	}

	w.mu.Lock()
	w.exec = exec
	w.mu.Unlock()

	sub, err := w.ch.Subscribe(w.opts.InTopic, w.Handle, subOpts...)
	if err != nil {
		_ = exec.Shutdown(ctx)
		w.logger.Errorf("work subscription failed: %v", err)
		return err
	}

	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()
	w.logger.Infof("transform worker started as %s", w.opts.Origin)
	return nil
}

// Stop unsubscribes, then lets queued units finish until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	sub, exec := w.sub, w.exec
	w.sub = nil
	w.mu.Unlock()

	var errs []error
	if sub != nil {
		errs = append(errs, sub.Unsubscribe())
	}
	if exec != nil {
		errs = append(errs, exec.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Executor exposes the worker's executor for metrics.
func (w *Worker) Executor() concurrency.Executor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exec
}

// Handle runs on the dispatch goroutine and only queues the unit.
func (w *Worker) Handle(ctx context.Context, msg *channel.Message) {
	w.mu.Lock()
	exec := w.exec
	w.mu.Unlock()
	if exec == nil {
		return
	}

	received := time.Now()
	data := msg.Data
	task := concurrency.NewNamedTask("transform", func(execCtx context.Context) error {
		return w.process(ctx, execCtx, data, received)
	})
	if err := exec.Submit(task); err != nil {
		// Channels with redelivery retry the unit later.
		msg.Reject()
		w.metrics.RecordTransform("overloaded", 0)
		w.logger.WithFields(map[string]interface{}{"request_id": core.GetRequestID(ctx)}).
			Warnf("work unit dropped: %v", err)
	}
}

// process decodes, waits the simulated delay, transforms and publishes.
// msgCtx carries the request id and trace of the unit but may be cancelled
// with its subscription; only execCtx, which ends when the executor is
// abandoned, interrupts the work.
func (w *Worker) process(msgCtx, execCtx context.Context, data []byte, received time.Time) error {
	ctx, span := tracing.Tracer().Start(context.WithoutCancel(msgCtx), "words.transform",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination.name", w.opts.InTopic)),
	)
	defer span.End()

	unit, err := words.DecodeWorkUnit(data)
	if err != nil {
		w.metrics.RecordTransform("malformed", 0)
		span.SetStatus(codes.Error, "malformed payload")
		return err
	}

	if w.opts.Delay > 0 {
		timer := time.NewTimer(w.opts.Delay)
		select {
		case <-timer.C:
		case <-execCtx.Done():
			timer.Stop()
			return execCtx.Err()
		}
	}

	out := words.ReplyPayload{Text: w.opts.Transform(unit.Text), Origin: w.opts.Origin}
	payload, err := out.Encode()
	if err == nil {
		err = w.ch.Publish(ctx, w.opts.OutTopic, payload)
	}
	if err != nil {
		w.metrics.RecordTransform("publish_error", 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}

	w.metrics.RecordTransform("ok", time.Since(received))
	w.logger.WithFields(map[string]interface{}{"request_id": core.GetRequestID(ctx)}).
		Debugf("transformed %q from %s", unit.Text, unit.Origin)
	return nil
}
