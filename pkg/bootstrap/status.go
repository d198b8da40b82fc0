package bootstrap

import (
	"context"

	"github.com/fluxorio/wordbridge/pkg/channel"
	"github.com/fluxorio/wordbridge/pkg/config"
	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/frontend"
	metrics "github.com/fluxorio/wordbridge/pkg/observability/prometheus"
	"github.com/fluxorio/wordbridge/pkg/web"
	"github.com/fluxorio/wordbridge/pkg/web/middleware"
)

// statusVerticle serves /health and /metrics for processes without the
// front end.
type statusVerticle struct {
	server *web.Server
}

func newStatusVerticle(cfg config.AppConfig, ch channel.Channel, logger core.Logger, m *metrics.Metrics) *statusVerticle {
	router := web.NewRouter()
	router.Use(
		middleware.Logging(logger),
		middleware.Recovery(middleware.RecoveryConfig{Logger: logger}),
	)
	router.GET(frontend.PathHealth, func(c *web.RequestContext) error {
		return c.JSON(200, frontend.Health{Status: "UP", Channel: ch.Kind(), Connected: ch.Connected()})
	})
	if m != nil {
		path := cfg.Observability.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, m.Handler())
	}

	server := web.NewServer(web.ServerConfig{
		Addr:         cfg.Server.Addr(),
		Name:         "wordbridge",
		MaxInFlight:  cfg.Server.MaxInFlight,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       logger,
	}, router)
	m.RegisterServer(server)
	return &statusVerticle{server: server}
}

func (s *statusVerticle) Name() string { return "status" }

func (s *statusVerticle) Start(context.Context) error { return s.server.Start() }

func (s *statusVerticle) Stop(ctx context.Context) error { return s.server.Stop(ctx) }
