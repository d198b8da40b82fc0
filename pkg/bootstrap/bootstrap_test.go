package bootstrap

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fluxorio/wordbridge/pkg/channel"
	"github.com/fluxorio/wordbridge/pkg/config"
	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/valyala/fasthttp"
)

func testConfig(t *testing.T, kind string) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.PublicDir = t.TempDir()
	cfg.Channel.Kind = kind
	cfg.Backend.Delay = 0
	cfg.Log.Level = "error"
	return cfg
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	status, body, err := fasthttp.GetTimeout(nil, url, 2*time.Second)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return status, string(body)
}

func TestBuild_AllInOneMemory(t *testing.T) {
	p, err := Build(testConfig(t, channel.KindMemory), RoleAllInOne, core.NewNopLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer p.App.Stop(context.Background())

	if p.Frontend == nil || p.Worker == nil {
		t.Fatalf("all-in-one should run both sides: %+v", p)
	}
	if p.Broker != nil {
		t.Error("memory channel should not start a broker")
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(res)
	req.SetRequestURI("http://" + p.Frontend.Addr() + "/rest/words")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBodyString(`{"words":"hello"}`)
	if err := fasthttp.DoTimeout(req, res, 2*time.Second); err != nil {
		t.Fatalf("POST: %v", err)
	}
	if res.StatusCode() != 200 || !strings.Contains(string(res.Body()), `"msgCount":1`) {
		t.Fatalf("POST = %d %s", res.StatusCode(), res.Body())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, body := get(t, "http://"+p.Frontend.Addr()+"/rest/wordsuppercase")
		if status == 200 {
			if !strings.Contains(body, `"word":"HELLO"`) {
				t.Errorf("reply = %s", body)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no reply within 2s")
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, body := get(t, "http://"+p.Frontend.Addr()+"/metrics")
	if status != 200 || !strings.Contains(body, "wordbridge_submissions_total") {
		t.Errorf("metrics = %d", status)
	}

	if err := p.App.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestBuild_AllInOneEmbeddedBroker(t *testing.T) {
	cfg := testConfig(t, channel.KindNATS)
	cfg.Broker.Embedded = true
	cfg.Broker.Port = -1

	p, err := Build(cfg, RoleAllInOne, core.NewNopLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer p.App.Stop(context.Background())

	if p.Broker == nil {
		t.Fatal("embedded broker not started")
	}
	if !p.Channel.Connected() {
		t.Error("channel should be connected to the embedded broker")
	}
	// broker, channel, worker, frontend
	if got := p.App.DeploymentCount(); got != 4 {
		t.Errorf("DeploymentCount() = %d, want 4", got)
	}
}

func TestBuild_UnreachableBrokerStillServes(t *testing.T) {
	cfg := testConfig(t, channel.KindNATS)
	cfg.Channel.URL = "nats://127.0.0.1:1"
	cfg.Channel.MaxReconnects = 1
	cfg.Channel.ReconnectWait = 10 * time.Millisecond

	p, err := Build(cfg, RoleFrontend, core.NewNopLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer p.App.Stop(context.Background())

	if p.Channel.Connected() {
		t.Fatal("channel should report disconnected")
	}
	status, body := get(t, "http://"+p.Frontend.Addr()+"/health")
	if status != 200 || !strings.Contains(body, `"connected":false`) {
		t.Errorf("health = %d %s", status, body)
	}
}

func TestBuild_BackendServesHealth(t *testing.T) {
	p, err := Build(testConfig(t, channel.KindMemory), RoleBackend, core.NewNopLogger())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer p.App.Stop(context.Background())

	if p.Frontend != nil {
		t.Error("backend role should not run the frontend")
	}
	if p.Worker == nil || !strings.HasPrefix(p.Worker.Origin(), "Go:") {
		t.Errorf("worker = %+v", p.Worker)
	}
}

func TestRun_PrintConfig(t *testing.T) {
	t.Setenv("WORDBRIDGE_TOPICS_PUBLISH", "custom/words")

	var out bytes.Buffer
	code := Run(RoleAllInOne, []string{"-config", t.TempDir() + "/absent.yaml", "-print-config"}, &out)
	if code != 0 {
		t.Fatalf("Run() = %d", code)
	}
	if !strings.Contains(out.String(), "publish: custom/words") {
		t.Errorf("output missing env override:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "embedded: true") {
		t.Errorf("all-in-one should default to an embedded broker:\n%s", out.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("WORDBRIDGE_CHANNEL_KIND", "carrier-pigeon")

	if code := Run(RoleFrontend, []string{"-config", t.TempDir() + "/absent.yaml"}, &bytes.Buffer{}); code != 1 {
		t.Errorf("Run() = %d, want 1", code)
	}
}

func TestRun_BadFlag(t *testing.T) {
	if code := Run(RoleBackend, []string{"-nope"}, &bytes.Buffer{}); code != 2 {
		t.Errorf("Run() = %d, want 2", code)
	}
}
