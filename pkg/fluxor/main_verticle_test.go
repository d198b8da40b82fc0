package fluxor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
)

type recordingVerticle struct {
	name     string
	log      *[]string
	mu       *sync.Mutex
	startErr error
	stopErr  error
}

func (v *recordingVerticle) Name() string { return v.name }

func (v *recordingVerticle) Start(ctx context.Context) error {
	v.record("start " + v.name)
	return v.startErr
}

func (v *recordingVerticle) Stop(ctx context.Context) error {
	v.record("stop " + v.name)
	return v.stopErr
}

func (v *recordingVerticle) record(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	*v.log = append(*v.log, s)
}

func newTestApp() *MainVerticle {
	return NewMainVerticle(Options{Logger: core.NewNopLogger(), ShutdownTimeout: time.Second})
}

func TestMainVerticle_StopsInReverseOrder(t *testing.T) {
	var log []string
	var mu sync.Mutex
	app := newTestApp()

	for _, name := range []string{"broker", "backend", "frontend"} {
		if _, err := app.DeployVerticle(&recordingVerticle{name: name, log: &log, mu: &mu}); err != nil {
			t.Fatalf("DeployVerticle(%s): %v", name, err)
		}
	}
	app.OnShutdown("channel", func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		log = append(log, "close channel")
		return nil
	})
	if app.DeploymentCount() != 3 {
		t.Errorf("DeploymentCount = %d", app.DeploymentCount())
	}

	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := "start broker,start backend,start frontend,stop frontend,stop backend,stop broker,close channel"
	if got := strings.Join(log, ","); got != want {
		t.Errorf("order = %s\nwant    %s", got, want)
	}
	if app.Context().Err() == nil {
		t.Error("context should be cancelled after Stop")
	}
}

func TestMainVerticle_FailedStartNotRecorded(t *testing.T) {
	var log []string
	var mu sync.Mutex
	app := newTestApp()

	_, err := app.DeployVerticle(&recordingVerticle{name: "bad", log: &log, mu: &mu, startErr: errors.New("port in use")})
	if err == nil || !strings.Contains(err.Error(), "deploy bad") {
		t.Fatalf("DeployVerticle error = %v", err)
	}
	if app.DeploymentCount() != 0 {
		t.Errorf("DeploymentCount = %d, want 0", app.DeploymentCount())
	}
	if _, err := app.DeployVerticle(nil); err == nil {
		t.Error("DeployVerticle(nil) should fail")
	}
}

func TestMainVerticle_StopJoinsErrorsAndIsIdempotent(t *testing.T) {
	var log []string
	var mu sync.Mutex
	app := newTestApp()
	boom := errors.New("boom")

	app.DeployVerticle(&recordingVerticle{name: "a", log: &log, mu: &mu, stopErr: boom})
	app.DeployVerticle(&recordingVerticle{name: "b", log: &log, mu: &mu})

	err := app.Stop(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Stop error = %v, want boom", err)
	}
	if err2 := app.Stop(context.Background()); err2 != err {
		t.Errorf("second Stop = %v, want same error", err2)
	}
	if got := strings.Join(log, ","); got != "start a,start b,stop b,stop a" {
		t.Errorf("log = %s", got)
	}
	if _, err := app.DeployVerticle(VerticleFunc{ID: "late"}); err == nil {
		t.Error("DeployVerticle after Stop should fail")
	}
}

func TestMainVerticle_StartReturnsAfterStop(t *testing.T) {
	app := newTestApp()
	stopped := make(chan struct{})
	app.DeployVerticle(VerticleFunc{ID: "f", OnStop: func(ctx context.Context) error {
		close(stopped)
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- app.Start() }()

	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	<-stopped
}
