package fluxor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/google/uuid"
)

// MainVerticle is a convenience bootstrapper for "main-like" applications:
// deploy verticles -> Start() blocks until shutdown signal -> undeploy.
type MainVerticle struct {
	ctx    context.Context
	cancel context.CancelFunc

	logger          core.Logger
	shutdownTimeout time.Duration

	mu          sync.Mutex
	deployments []deployment
	closers     []closer

	stopOnce sync.Once
	stopErr  error
}

type deployment struct {
	id       string
	verticle Verticle
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Options configures a MainVerticle.
type Options struct {
	Logger          core.Logger
	ShutdownTimeout time.Duration
}

// NewMainVerticle creates an app runtime with a root context that is
// cancelled on Stop.
func NewMainVerticle(opts Options) *MainVerticle {
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MainVerticle{
		ctx:             ctx,
		cancel:          cancel,
		logger:          opts.Logger,
		shutdownTimeout: opts.ShutdownTimeout,
	}
}

// Context is cancelled when the app stops.
func (m *MainVerticle) Context() context.Context { return m.ctx }

// Logger returns the app logger.
func (m *MainVerticle) Logger() core.Logger { return m.logger }

// DeployVerticle starts v and records it for shutdown. A verticle that fails
// to start is not recorded.
func (m *MainVerticle) DeployVerticle(v Verticle) (string, error) {
	if v == nil {
		return "", &core.Error{Code: core.CodeInvalidInput, Message: "verticle cannot be nil"}
	}
	if m.ctx.Err() != nil {
		return "", &core.Error{Code: core.CodeInvalidInput, Message: "app is stopped"}
	}

	id := uuid.NewString()
	if err := v.Start(m.ctx); err != nil {
		return "", fmt.Errorf("deploy %s: %w", v.Name(), err)
	}

	m.mu.Lock()
	m.deployments = append(m.deployments, deployment{id: id, verticle: v})
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{"verticle": v.Name(), "deployment_id": id}).Info("verticle deployed")
	return id, nil
}

// OnShutdown registers fn to run after all verticles have stopped.
// Closers run in reverse registration order.
func (m *MainVerticle) OnShutdown(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, closer{name: name, fn: fn})
}

// DeploymentCount returns the number of running verticles.
func (m *MainVerticle) DeploymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deployments)
}

// Start blocks until SIGINT/SIGTERM or Stop, then stops the app.
func (m *MainVerticle) Start() error {
	sigCtx, stop := signal.NotifyContext(m.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	if m.ctx.Err() == nil {
		m.logger.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()
	return m.Stop(ctx)
}

// Stop undeploys verticles in reverse deployment order, then runs the
// shutdown closers. Errors are joined; every verticle gets its Stop call.
// Only the first call does work.
func (m *MainVerticle) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.cancel()

		m.mu.Lock()
		deployments := m.deployments
		closers := m.closers
		m.deployments = nil
		m.closers = nil
		m.mu.Unlock()

		var errs []error
		for i := len(deployments) - 1; i >= 0; i-- {
			d := deployments[i]
			if err := d.verticle.Stop(ctx); err != nil {
				m.logger.Errorf("stop %s failed: %v", d.verticle.Name(), err)
				errs = append(errs, fmt.Errorf("stop %s: %w", d.verticle.Name(), err))
			}
		}
		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			if err := c.fn(ctx); err != nil {
				m.logger.Errorf("close %s failed: %v", c.name, err)
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			}
		}
		m.stopErr = errors.Join(errs...)
		m.logger.Info("shutdown complete")
	})
	return m.stopErr
}
