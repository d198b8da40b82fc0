package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wordbridge"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry   *prometheus.Registry
	registerer prometheus.Registerer

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Frontend metrics
	WordsPublished  *prometheus.CounterVec // topic, result
	Submissions     prometheus.Counter
	RepliesReceived prometheus.Counter
	RepliesDropped  *prometheus.CounterVec // reason
	Polls           *prometheus.CounterVec // result: hit, empty

	// Backend metrics
	Transforms        *prometheus.CounterVec // result
	TransformDuration prometheus.Histogram

	// Channel metrics
	ChannelEvents *prometheus.CounterVec // kind, event
}

// NewMetrics creates the collectors on a fresh registry labelled with the
// service name. Go runtime and process collectors are included.
func NewMetrics(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registerer := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, reg)
	factory := promauto.With(registerer)

	return &Metrics{
		registry:   reg,
		registerer: registerer,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		WordsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "words_published_total",
				Help:      "Work units published by the frontend",
			},
			[]string{"topic", "result"},
		),
		Submissions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Accepted word submissions",
			},
		),
		RepliesReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_received_total",
				Help:      "Replies offered to the reply buffer",
			},
		),
		RepliesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_dropped_total",
				Help:      "Replies discarded before being polled",
			},
			[]string{"reason"},
		),
		Polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Reply polls by outcome",
			},
			[]string{"result"},
		),

		Transforms: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transforms_total",
				Help:      "Work units handled by the backend",
			},
			[]string{"result"},
		),
		TransformDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transform_duration_seconds",
				Help:      "Time from work unit receipt to reply publish",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),

		ChannelEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_events_total",
				Help:      "Channel connection state changes",
			},
			[]string{"kind", "event"},
		),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordPublish counts one published work unit. The Record methods are
// no-ops on a nil *Metrics.
func (m *Metrics) RecordPublish(topic string, err error) {
	if m == nil {
		return
	}
	m.WordsPublished.WithLabelValues(topic, result(err)).Inc()
}

// RecordPoll counts a reply poll.
func (m *Metrics) RecordPoll(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.Polls.WithLabelValues("hit").Inc()
		return
	}
	m.Polls.WithLabelValues("empty").Inc()
}

// RecordTransform counts a handled work unit. result is one of ok,
// malformed, overloaded or publish_error.
func (m *Metrics) RecordTransform(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Transforms.WithLabelValues(result).Inc()
	if result == "ok" {
		m.TransformDuration.Observe(duration.Seconds())
	}
}

// RecordSubmission counts an accepted submission.
func (m *Metrics) RecordSubmission() {
	if m == nil {
		return
	}
	m.Submissions.Inc()
}

// RecordReply counts a reply offered to the buffer.
func (m *Metrics) RecordReply() {
	if m == nil {
		return
	}
	m.RepliesReceived.Inc()
}

// RecordDrop counts a reply discarded by the buffer.
func (m *Metrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	m.RepliesDropped.WithLabelValues(reason).Inc()
}

// RecordChannelEvent counts a channel connection event.
func (m *Metrics) RecordChannelEvent(kind, event string) {
	if m == nil {
		return
	}
	m.ChannelEvents.WithLabelValues(kind, event).Inc()
}

// GaugeFunc registers a gauge sampled from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registerer.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
