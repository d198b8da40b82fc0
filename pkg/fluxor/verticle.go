// Package fluxor deploys the long-running parts of a wordbridge process
// (broker, HTTP server, transform worker) and stops them in reverse order.
package fluxor

import "context"

// Verticle is a deployable unit with a start/stop lifecycle.
// Start must not block past initialization; background work runs on
// goroutines owned by the verticle until Stop.
type Verticle interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// VerticleFunc adapts a pair of functions to a Verticle.
type VerticleFunc struct {
	ID      string
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

func (v VerticleFunc) Name() string { return v.ID }

func (v VerticleFunc) Start(ctx context.Context) error {
	if v.OnStart == nil {
		return nil
	}
	return v.OnStart(ctx)
}

func (v VerticleFunc) Stop(ctx context.Context) error {
	if v.OnStop == nil {
		return nil
	}
	return v.OnStop(ctx)
}
