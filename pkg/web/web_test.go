package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newRequest(method, uri, body string) *fasthttp.RequestCtx {
	var rc fasthttp.RequestCtx
	rc.Request.Header.SetMethod(method)
	rc.Request.SetRequestURI(uri)
	if body != "" {
		rc.Request.Header.SetContentType("application/json")
		rc.Request.SetBodyString(body)
	}
	return &rc
}

func testServer(router *Router, maxInFlight int) *Server {
	cfg := DefaultServerConfig(":0")
	cfg.MaxInFlight = maxInFlight
	cfg.Logger = core.NewNopLogger()
	return NewServer(cfg, router)
}

func TestRouter_PathsAndMethods(t *testing.T) {
	router := NewRouter()
	router.GET("/items", func(c *RequestContext) error {
		return c.JSON(200, map[string]string{"path": c.Path()})
	})
	router.POST("/items", func(c *RequestContext) error {
		return c.NoContent()
	})
	s := testServer(router, 0)

	rc := newRequest("GET", "/items", "")
	s.Handler()(rc)
	if rc.Response.StatusCode() != 200 || string(rc.Response.Body()) != `{"path":"/items"}` {
		t.Errorf("GET /items = %d %s", rc.Response.StatusCode(), rc.Response.Body())
	}

	rc = newRequest("HEAD", "/items", "")
	s.Handler()(rc)
	if rc.Response.StatusCode() != 200 {
		t.Errorf("HEAD /items status = %d, want 200", rc.Response.StatusCode())
	}

	rc = newRequest("GET", "/items/42", "")
	s.Handler()(rc)
	if rc.Response.StatusCode() != 404 {
		t.Errorf("GET /items/42 status = %d, want 404", rc.Response.StatusCode())
	}

	rc = newRequest("DELETE", "/items", "")
	s.Handler()(rc)
	if rc.Response.StatusCode() != 405 {
		t.Errorf("DELETE /items status = %d, want 405", rc.Response.StatusCode())
	}

	rc = newRequest("GET", "/nothing", "")
	s.Handler()(rc)
	if rc.Response.StatusCode() != 404 {
		t.Errorf("GET /nothing status = %d, want 404", rc.Response.StatusCode())
	}
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(c *RequestContext) error {
				order = append(order, name)
				return next(c)
			}
		}
	}
	router := NewRouter()
	router.Use(mw("a"), mw("b"))
	router.GET("/", func(c *RequestContext) error {
		order = append(order, "handler")
		return nil
	})
	testServer(router, 0).Handler()(newRequest("GET", "/", ""))

	if strings.Join(order, ",") != "a,b,handler" {
		t.Errorf("order = %v", order)
	}
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		body   string
	}{
		{core.NewValidationError("words is required"), 400, "words is required"},
		{NewHTTPError(418, "teapot"), 418, "teapot"},
		{&core.Error{Code: core.CodeOverloaded, Message: "full"}, 503, "Service Unavailable"},
		{errors.New("db password leaked"), 500, "Internal Server Error"},
	}
	for _, tt := range tests {
		c := NewRequestContext(newRequest("GET", "/", ""))
		WriteError(c, tt.err)

		if c.RequestCtx.Response.StatusCode() != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, c.RequestCtx.Response.StatusCode(), tt.status)
		}
		var body map[string]string
		if err := json.Unmarshal(c.RequestCtx.Response.Body(), &body); err != nil {
			t.Fatalf("body not JSON: %v", err)
		}
		if body["error"] != tt.body {
			t.Errorf("%v: error = %q, want %q", tt.err, body["error"], tt.body)
		}
	}
}

func TestRequestContext_BindJSON(t *testing.T) {
	var v struct {
		Words string `json:"words"`
	}

	c := NewRequestContext(newRequest("POST", "/", `{"words":"a b"}`))
	if err := c.BindJSON(&v); err != nil || v.Words != "a b" {
		t.Errorf("BindJSON = %v, %+v", err, v)
	}

	c = NewRequestContext(newRequest("POST", "/", ""))
	if err := c.BindJSON(&v); !core.IsValidation(err) {
		t.Errorf("BindJSON(empty) error = %v, want validation", err)
	}

	c = NewRequestContext(newRequest("POST", "/", "{nope"))
	if err := c.BindJSON(&v); !core.IsValidation(err) {
		t.Errorf("BindJSON(garbage) error = %v, want validation", err)
	}
}

func TestRequestContext_RequestID(t *testing.T) {
	rc := newRequest("GET", "/", "")
	rc.Request.Header.Set(core.RequestIDHeader, "req-1")
	c := NewRequestContext(rc)

	if c.RequestID() != "req-1" || core.GetRequestID(c.Context()) != "req-1" {
		t.Errorf("RequestID = %q", c.RequestID())
	}
	if got := string(rc.Response.Header.Peek(core.RequestIDHeader)); got != "req-1" {
		t.Errorf("response header = %q", got)
	}

	c = NewRequestContext(newRequest("GET", "/", ""))
	if c.RequestID() == "" {
		t.Error("RequestID should be generated")
	}
}

func TestBackpressureController(t *testing.T) {
	bc := NewBackpressureController(2)
	if !bc.TryAcquire() || !bc.TryAcquire() {
		t.Fatal("should acquire up to capacity")
	}
	if bc.TryAcquire() {
		t.Error("should reject over capacity")
	}
	bc.Release()
	if !bc.TryAcquire() {
		t.Error("should acquire after release")
	}

	m := bc.GetMetrics()
	if m.CurrentLoad != 2 || m.RejectedCount != 1 || m.Utilization != 100 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestServer_BackpressureRejects(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	router := NewRouter()
	router.GET("/slow", func(c *RequestContext) error {
		close(entered)
		<-release
		return c.NoContent()
	})
	s := testServer(router, 1)

	done := make(chan struct{})
	go func() {
		s.Handler()(newRequest("GET", "/slow", ""))
		close(done)
	}()
	<-entered

	rc := newRequest("GET", "/slow", "")
	s.Handler()(rc)
	if rc.Response.StatusCode() != 503 {
		t.Errorf("status = %d, want 503", rc.Response.StatusCode())
	}

	close(release)
	<-done
	if m := s.Metrics(); m.RejectedRequests != 1 || m.TotalRequests != 2 || m.InFlight != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestServer_ServeAndStop(t *testing.T) {
	router := NewRouter()
	router.GET("/ping", func(c *RequestContext) error {
		return c.Raw(200, "text/plain; charset=utf-8", []byte("pong"))
	})
	s := testServer(router, 10)

	ln := fasthttputil.NewInmemoryListener()
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(ln) }()

	client := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://wordbridge/ping")

	if err := client.Do(req, resp); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if string(resp.Body()) != "pong" {
		t.Errorf("body = %q", resp.Body())
	}
	if len(resp.Header.Peek(core.RequestIDHeader)) == 0 {
		t.Error("missing request id header")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServer_AddrReportsBoundPortAfterStart(t *testing.T) {
	router := NewRouter()
	router.GET("/ping", func(c *RequestContext) error { return c.NoContent() })
	cfg := DefaultServerConfig("127.0.0.1:0")
	cfg.Logger = core.NewNopLogger()
	s := NewServer(cfg, router)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	addr := s.Addr()
	if strings.HasSuffix(addr, ":0") {
		t.Fatalf("Addr() = %q, want the bound port", addr)
	}
	status, _, err := fasthttp.GetTimeout(nil, "http://"+addr+"/ping", 2*time.Second)
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	if status != 204 {
		t.Errorf("GET /ping = %d, want 204", status)
	}
}

func TestServer_FasthttpMessagesGoToLogger(t *testing.T) {
	var buf bytes.Buffer
	router := NewRouter()
	router.GET("/log", func(c *RequestContext) error {
		c.RequestCtx.Logger().Printf("cannot open file %q", "missing.html")
		return c.NoContent()
	})
	cfg := DefaultServerConfig(":0")
	cfg.Logger = core.NewLogger(&buf, "debug", "text")
	s := NewServer(cfg, router)

	ln := fasthttputil.NewInmemoryListener()
	go s.Serve(ln)
	defer s.Stop(context.Background())

	client := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
	status, _, err := client.Get(nil, "http://wordbridge/log")
	if err != nil {
		t.Fatalf("GET /log: %v", err)
	}
	if status != 204 {
		t.Errorf("GET /log = %d, want 204", status)
	}
	if !strings.Contains(buf.String(), "cannot open file") || !strings.Contains(buf.String(), "component=http") {
		t.Errorf("log output = %q", buf.String())
	}
}
