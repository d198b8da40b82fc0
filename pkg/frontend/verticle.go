package frontend

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fluxorio/wordbridge/pkg/channel"
	"github.com/fluxorio/wordbridge/pkg/config"
	"github.com/fluxorio/wordbridge/pkg/core"
	metrics "github.com/fluxorio/wordbridge/pkg/observability/prometheus"
	tracing "github.com/fluxorio/wordbridge/pkg/observability/otel"
	"github.com/fluxorio/wordbridge/pkg/reply"
	"github.com/fluxorio/wordbridge/pkg/web"
	"github.com/fluxorio/wordbridge/pkg/web/middleware"
	"github.com/fluxorio/wordbridge/pkg/web/middleware/auth"
	"github.com/fluxorio/wordbridge/pkg/web/middleware/security"
	"github.com/valyala/fasthttp"
)

// Verticle runs the HTTP server, the reply bridge and the reply buffer.
type Verticle struct {
	cfg     config.AppConfig
	ch      channel.Channel
	logger  core.Logger
	metrics *metrics.Metrics

	buf    *reply.Buffer
	svc    *Service
	bridge *Bridge
	server *web.Server
}

// NewVerticle wires the front end over ch. m may be nil.
func NewVerticle(cfg config.AppConfig, ch channel.Channel, logger core.Logger, m *metrics.Metrics) (*Verticle, error) {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	policy, err := reply.ParsePolicy(cfg.Frontend.ReplyPolicy)
	if err != nil {
		return nil, err
	}

	v := &Verticle{cfg: cfg, ch: ch, logger: logger, metrics: m}
	v.buf = reply.New(reply.Options{
		Policy: policy,
		Limit:  cfg.Frontend.ReplyLimit,
		MaxAge: cfg.Frontend.ReplyMaxAge,
		OnDrop: func(reason reply.DropReason) { m.RecordDrop(string(reason)) },
	})
	v.svc = NewService(ch, v.buf, ServiceOptions{
		Topic:   cfg.Topics.Publish,
		Origin:  cfg.Frontend.Origin,
		Logger:  logger,
		Metrics: m,
	})
	v.bridge = NewBridge(ch, v.buf, BridgeOptions{
		Topic:   cfg.Topics.Subscribe,
		Logger:  logger,
		Metrics: m,
	})
	v.server = web.NewServer(web.ServerConfig{
		Addr:         cfg.Server.Addr(),
		Name:         "wordbridge",
		MaxInFlight:  cfg.Server.MaxInFlight,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       logger,
	}, v.router())

	if m != nil {
		m.GaugeFunc("reply_buffer_depth", "Replies waiting to be polled", func() float64 {
			return float64(v.buf.Len())
		})
		m.RegisterServer(v.server)
	}
	return v, nil
}

func (v *Verticle) router() *web.Router {
	router := web.NewRouter()
	router.Use(
		middleware.Logging(v.logger),
		middleware.Recovery(middleware.RecoveryConfig{Logger: v.logger}),
		tracing.Middleware(),
	)
	if v.metrics != nil {
		router.Use(v.metrics.Middleware(PathWords, PathWordsUppercase, PathHealth, v.metricsPath()))
	}
	router.Use(security.Headers(security.DefaultHeadersConfig()))
	if v.cfg.Frontend.AuthSecret != "" {
		router.Use(restOnly(auth.JWT(auth.DefaultJWTConfig(v.cfg.Frontend.AuthSecret))))
	}

	RegisterRoutes(router, v.svc, v.ch)
	if v.metrics != nil {
		router.GET(v.metricsPath(), v.metrics.Handler())
	}
	router.NotFound(StaticHandler(v.publicDir()))
	return router
}

func (v *Verticle) metricsPath() string {
	if v.cfg.Observability.MetricsPath == "" {
		return "/metrics"
	}
	return v.cfg.Observability.MetricsPath
}

func (v *Verticle) publicDir() string {
	dir, err := filepath.Abs(v.cfg.Server.PublicDir)
	if err != nil {
		return v.cfg.Server.PublicDir
	}
	return dir
}

func (v *Verticle) Name() string { return "frontend" }

// Start subscribes to replies and starts listening. A failed reply
// subscription is logged and the HTTP side still starts.
func (v *Verticle) Start(ctx context.Context) error {
	if err := v.bridge.Start(); err != nil {
		v.logger.Warnf("front end running without replies: %v", err)
	}
	if err := v.server.Start(); err != nil {
		v.bridge.Stop()
		return fmt.Errorf("listen on %s: %w", v.cfg.Server.Addr(), err)
	}
	return nil
}

// Stop drains HTTP requests, then unsubscribes.
func (v *Verticle) Stop(ctx context.Context) error {
	err := v.server.Stop(ctx)
	if berr := v.bridge.Stop(); err == nil {
		err = berr
	}
	return err
}

// Handler serves requests without a listener.
func (v *Verticle) Handler() fasthttp.RequestHandler { return v.server.Handler() }

// Addr is the bound listen address.
func (v *Verticle) Addr() string { return v.server.Addr() }

// Buffer returns the reply buffer.
func (v *Verticle) Buffer() *reply.Buffer { return v.buf }
