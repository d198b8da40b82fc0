package web

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/valyala/fasthttp"
)

// ServerConfig configures the fasthttp server
type ServerConfig struct {
	Addr         string
	Name         string
	MaxInFlight  int // 0 disables backpressure
	MaxBodyBytes int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       core.Logger
}

// DefaultServerConfig returns defaults for addr.
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:         addr,
		Name:         "wordbridge",
		MaxInFlight:  1000,
		MaxBodyBytes: 1 << 20,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves a Router over fasthttp.
// Handlers run on the fasthttp connection goroutine; the RequestCtx must not
// be retained after the handler returns.
type Server struct {
	cfg          ServerConfig
	router       *Router
	server       *fasthttp.Server
	backpressure *BackpressureController
	logger       core.Logger

	mu       sync.Mutex
	listener net.Listener

	totalRequests    int64
	rejectedRequests int64
	errorRequests    int64
}

// NewServer creates a server for router.
func NewServer(cfg ServerConfig, router *Router) *Server {
	if cfg.Logger == nil {
		cfg.Logger = core.NewDefaultLogger()
	}
	if cfg.Name == "" {
		cfg.Name = "wordbridge"
	}
	s := &Server{
		cfg:          cfg,
		router:       router,
		backpressure: NewBackpressureController(cfg.MaxInFlight),
		logger:       cfg.Logger.WithFields(map[string]interface{}{"component": "http"}),
	}
	s.server = &fasthttp.Server{
		Handler:               s.handleRequest,
		Name:                  cfg.Name,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		MaxRequestBodySize:    cfg.MaxBodyBytes,
		NoDefaultServerHeader: true,
		CloseOnShutdown:       true,
		Logger:                serverLogger{s.logger},
	}
	return s
}

// serverLogger routes fasthttp's own messages (connection errors, files FS
// could not open) to the server logger.
type serverLogger struct{ l core.Logger }

func (sl serverLogger) Printf(format string, args ...interface{}) {
	sl.l.Warnf(format, args...)
}

// Router returns the router
func (s *Server) Router() *Router {
	return s.router
}

// Handler returns the request handler, for tests and embedding.
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.handleRequest
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp4", s.cfg.Addr)
	if err != nil {
		return err
	}
	// Addr must report the bound port as soon as Start returns.
	s.setListener(ln)
	go func() {
		if err := s.Serve(ln); err != nil {
			s.logger.Errorf("http server stopped: %v", err)
		}
	}()
	return nil
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.setListener(ln)
	s.logger.Infof("http server listening on %s", ln.Addr())
	err := s.server.Serve(ln)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) setListener(ln net.Listener) {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
}

// Addr returns the bound address, or the configured one before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stop waits for in-flight requests to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}

// Metrics returns current server metrics
func (s *Server) Metrics() ServerMetrics {
	bp := s.backpressure.GetMetrics()
	return ServerMetrics{
		InFlight:         bp.CurrentLoad,
		Capacity:         bp.Capacity,
		Utilization:      bp.Utilization,
		TotalRequests:    atomic.LoadInt64(&s.totalRequests),
		RejectedRequests: atomic.LoadInt64(&s.rejectedRequests),
		ErrorRequests:    atomic.LoadInt64(&s.errorRequests),
	}
}

// ServerMetrics provides server performance metrics
type ServerMetrics struct {
	InFlight         int64
	Capacity         int64
	Utilization      float64
	TotalRequests    int64
	RejectedRequests int64 // 503 from backpressure
	ErrorRequests    int64 // 5xx
}

func (s *Server) handleRequest(rc *fasthttp.RequestCtx) {
	atomic.AddInt64(&s.totalRequests, 1)

	if !s.backpressure.TryAcquire() {
		atomic.AddInt64(&s.rejectedRequests, 1)
		rc.SetStatusCode(fasthttp.StatusServiceUnavailable)
		rc.SetContentType("application/json")
		rc.SetBodyString(`{"error":"Service Unavailable","code":"BACKPRESSURE"}`)
		return
	}
	defer s.backpressure.Release()

	s.router.Serve(NewRequestContext(rc))

	if rc.Response.StatusCode() >= 500 {
		atomic.AddInt64(&s.errorRequests, 1)
	}
}
