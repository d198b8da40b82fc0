// Package broker runs an embedded NATS server, used by the all-in-one binary
// and by tests.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
	natssrv "github.com/nats-io/nats-server/v2/server"
)

// Config configures the embedded server.
type Config struct {
	Host string
	// Port to listen on; -1 picks a random free port.
	Port      int
	JetStream bool
	// StoreDir holds JetStream data. Required when JetStream is enabled.
	StoreDir     string
	ReadyTimeout time.Duration
	Logger       core.Logger
}

// Broker is a running embedded NATS server.
type Broker struct {
	cfg    Config
	srv    *natssrv.Server
	logger core.Logger
}

// New validates cfg and creates the server without starting it.
func New(cfg Config) (*Broker, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = natssrv.DEFAULT_PORT
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewDefaultLogger()
	}
	if cfg.JetStream && cfg.StoreDir == "" {
		return nil, core.NewValidationError("broker store dir is required when JetStream is enabled")
	}

	srv, err := natssrv.NewServer(&natssrv.Options{
		ServerName: "wordbridge",
		Host:       cfg.Host,
		Port:       cfg.Port,
		JetStream:  cfg.JetStream,
		StoreDir:   cfg.StoreDir,
		NoSigs:     true,
		NoLog:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	return &Broker{cfg: cfg, srv: srv, logger: cfg.Logger}, nil
}

// Name implements fluxor.Verticle.
func (b *Broker) Name() string { return "broker" }

// Start runs the server and waits until it accepts connections.
func (b *Broker) Start(_ context.Context) error {
	go b.srv.Start()
	if !b.srv.ReadyForConnections(b.cfg.ReadyTimeout) {
		b.srv.Shutdown()
		return fmt.Errorf("nats server not ready after %s", b.cfg.ReadyTimeout)
	}
	b.logger.Infof("embedded broker listening on %s (jetstream=%t)", b.srv.ClientURL(), b.cfg.JetStream)
	return nil
}

// Stop shuts the server down.
func (b *Broker) Stop(ctx context.Context) error {
	b.srv.Shutdown()

	done := make(chan struct{})
	go func() {
		b.srv.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("broker shutdown: %w", ctx.Err())
	}
}

// ClientURL is the URL clients connect to.
func (b *Broker) ClientURL() string { return b.srv.ClientURL() }
