// Package bootstrap assembles wordbridge processes from configuration. The
// binaries under cmd/ differ only in the Role they pass to Run.
package bootstrap

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fluxorio/wordbridge/pkg/backend"
	"github.com/fluxorio/wordbridge/pkg/broker"
	"github.com/fluxorio/wordbridge/pkg/channel"
	"github.com/fluxorio/wordbridge/pkg/config"
	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/fluxor"
	"github.com/fluxorio/wordbridge/pkg/frontend"
	metrics "github.com/fluxorio/wordbridge/pkg/observability/prometheus"
	tracing "github.com/fluxorio/wordbridge/pkg/observability/otel"
)

// Role selects which verticles a process deploys.
type Role string

const (
	RoleFrontend Role = "frontend"
	RoleBackend  Role = "backend"
	RoleAllInOne Role = "allinone"
)

func (r Role) runsFrontend() bool { return r == RoleFrontend || r == RoleAllInOne }
func (r Role) runsBackend() bool  { return r == RoleBackend || r == RoleAllInOne }

// Process is an assembled, running wordbridge process.
type Process struct {
	App      *fluxor.MainVerticle
	Channel  channel.Channel
	Metrics  *metrics.Metrics
	Frontend *frontend.Verticle
	Worker   *backend.Worker
	Broker   *broker.Broker
}

// Build deploys the verticles for role. On error everything already started
// is stopped.
func Build(cfg config.AppConfig, role Role, logger core.Logger) (p *Process, err error) {
	logger = logger.WithFields(map[string]interface{}{"service": "wordbridge-" + string(role)})
	app := fluxor.NewMainVerticle(fluxor.Options{Logger: logger, ShutdownTimeout: cfg.Server.ShutdownTimeout})
	p = &Process{App: app}
	defer func() {
		if err != nil {
			_ = app.Stop(context.Background())
		}
	}()

	shutdownTracing, err := tracing.Initialize(app.Context(), tracing.Config{
		ServiceName:    "wordbridge-" + string(role),
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		Exporter:       cfg.Observability.TraceExporter,
		Endpoint:       cfg.Observability.TraceEndpoint,
		Sample:         cfg.Observability.TraceSample,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	app.OnShutdown("tracing", shutdownTracing)

	if cfg.Observability.Metrics {
		p.Metrics = metrics.NewMetrics("wordbridge-" + string(role))
	}

	if role == RoleAllInOne && cfg.Broker.Embedded {
		b, err := broker.New(broker.Config{
			Host:      cfg.Broker.Host,
			Port:      cfg.Broker.Port,
			JetStream: cfg.Broker.JetStream || cfg.Channel.Kind == channel.KindJetStream,
			StoreDir:  cfg.Broker.StoreDir,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		if _, err := app.DeployVerticle(b); err != nil {
			return nil, err
		}
		p.Broker = b
		cfg.Channel.URL = b.ClientURL()
	}

	// The channel outlives app cancellation; the verticle below closes it.
	p.Channel = OpenChannel(context.Background(), cfg, role, logger, p.Metrics)
	ch := p.Channel
	// Deployed as a verticle so it closes after the HTTP side and worker
	// stop, and before the embedded broker.
	if _, err := app.DeployVerticle(fluxor.VerticleFunc{
		ID:     "channel",
		OnStop: func(context.Context) error { return ch.Close() },
	}); err != nil {
		return nil, err
	}

	if role.runsBackend() {
		origin := cfg.Backend.Origin
		if origin == "" {
			origin = backend.DefaultOrigin()
		}
		p.Worker = backend.NewWorker(ch, backend.Options{
			InTopic:   cfg.Topics.Publish,
			OutTopic:  cfg.Topics.Subscribe,
			Queue:     cfg.Backend.Queue,
			Origin:    origin,
			Delay:     cfg.Backend.Delay,
			Workers:   cfg.Backend.Workers,
			QueueSize: cfg.Backend.QueueSize,
			Logger:    logger,
			Metrics:   p.Metrics,
		})
		if _, err := app.DeployVerticle(p.Worker); err != nil {
			// Keep serving health so the failure stays visible.
			logger.Errorf("transform worker not running: %v", err)
		} else if p.Metrics != nil {
			p.Metrics.RegisterExecutor("transform", p.Worker.Executor())
		}
	}

	if role.runsFrontend() {
		fv, err := frontend.NewVerticle(cfg, ch, logger, p.Metrics)
		if err != nil {
			return nil, err
		}
		if _, err := app.DeployVerticle(fv); err != nil {
			return nil, err
		}
		p.Frontend = fv
	} else {
		sv := newStatusVerticle(cfg, ch, logger, p.Metrics)
		if _, err := app.DeployVerticle(sv); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// OpenChannel opens the configured channel. A channel that cannot be opened
// is replaced by an offline one so the process still starts and reports
// the failure on every use.
func OpenChannel(ctx context.Context, cfg config.AppConfig, role Role, logger core.Logger, m *metrics.Metrics) channel.Channel {
	kind := cfg.Channel.Kind
	ch, err := channel.Open(ctx, channel.Config{
		Kind:          kind,
		URL:           cfg.Channel.URL,
		Prefix:        cfg.Channel.Prefix,
		Name:          "wordbridge-" + string(role),
		Durable:       cfg.Channel.Durable,
		MaxAge:        cfg.Channel.MaxAge,
		AckWait:       cfg.Channel.AckWait,
		ReconnectWait: cfg.Channel.ReconnectWait,
		MaxReconnects: cfg.Channel.MaxReconnects,
		MailboxSize:   cfg.Channel.MailboxSize,
		Logger:        logger,
		OnEvent:       func(e channel.Event) { m.RecordChannelEvent(kind, string(e)) },
	})
	if err != nil {
		logger.Errorf("channel unavailable, continuing offline: %v", err)
		return channel.NewOffline(kind, err)
	}
	return ch
}

// Run is the body of a wordbridge binary. It returns the process exit code.
func Run(role Role, args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("wordbridge-"+string(role), flag.ContinueOnError)
	configPath := fs.String("config", envOr("CONFIG_PATH", "config.yaml"), "path to a YAML or JSON config file (optional)")
	printConfig := fs.Bool("print-config", false, "print the effective configuration and exit")
	var embedded *bool
	if role == RoleAllInOne {
		embedded = fs.Bool("embedded-broker", true, "run a NATS server in-process")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.LoadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if embedded != nil && *embedded {
		cfg.Broker.Embedded = true
	}
	if *printConfig {
		if err := config.WriteYAML(stdout, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return 1
		}
		return 0
	}

	logger := core.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	p, err := Build(cfg, role, logger)
	if err != nil {
		logger.Errorf("startup failed: %v", err)
		return 1
	}
	if p.Frontend != nil {
		logger.Infof("wordbridge %s listening on %s", role, p.Frontend.Addr())
	}
	if err := p.App.Start(); err != nil {
		logger.Errorf("shutdown: %v", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
