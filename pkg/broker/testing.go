package broker

import (
	"context"
	"testing"

	"github.com/fluxorio/wordbridge/pkg/core"
)

// RunTest starts a broker on a random port for the duration of t.
func RunTest(t testing.TB, jetStream bool) *Broker {
	t.Helper()

	cfg := Config{Port: -1, JetStream: jetStream, Logger: core.NewNopLogger()}
	if jetStream {
		cfg.StoreDir = t.TempDir()
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("broker.New: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("broker.Start: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}
