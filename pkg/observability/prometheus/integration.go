package prometheus

import (
	"time"

	"github.com/fluxorio/wordbridge/pkg/core/concurrency"
	"github.com/fluxorio/wordbridge/pkg/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() web.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return func(c *web.RequestContext) error {
		h(c.RequestCtx)
		return nil
	}
}

// Middleware records request count and latency. Routes outside known are
// reported as "other" to keep label cardinality bounded.
func (m *Metrics) Middleware(known ...string) web.Middleware {
	routes := make(map[string]struct{}, len(known))
	for _, r := range known {
		routes[r] = struct{}{}
	}

	return func(next web.Handler) web.Handler {
		return func(c *web.RequestContext) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				web.WriteError(c, err)
			}

			route := c.Path()
			if _, ok := routes[route]; !ok {
				route = "other"
			}
			m.RecordHTTPRequest(c.Method(), route, statusCodeString(c.RequestCtx.Response.StatusCode()), time.Since(start))
			return nil
		}
	}
}

// RegisterExecutor exposes executor queue depth and task counters.
func (m *Metrics) RegisterExecutor(name string, exec concurrency.Executor) {
	m.GaugeFunc(name+"_queued_tasks", "Tasks waiting in the "+name+" executor", func() float64 {
		return float64(exec.Stats().QueuedTasks)
	})
	m.GaugeFunc(name+"_workers", "Worker goroutines of the "+name+" executor", func() float64 {
		return float64(exec.Stats().ActiveWorkers)
	})
	m.GaugeFunc(name+"_rejected_tasks", "Tasks rejected by the "+name+" executor since start", func() float64 {
		return float64(exec.Stats().RejectedTasks)
	})
}

// RegisterServer exposes HTTP in-flight and backpressure rejections.
func (m *Metrics) RegisterServer(s *web.Server) {
	m.GaugeFunc("http_in_flight_requests", "Requests currently being served", func() float64 {
		return float64(s.Metrics().InFlight)
	})
	m.GaugeFunc("http_rejected_requests", "Requests rejected by backpressure since start", func() float64 {
		return float64(s.Metrics().RejectedRequests)
	})
}

// statusCodeString converts status code to string
func statusCodeString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
