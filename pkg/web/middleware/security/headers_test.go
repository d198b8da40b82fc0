package security

import (
	"testing"

	"github.com/fluxorio/wordbridge/pkg/web"
	"github.com/valyala/fasthttp"
)

func TestHeaders(t *testing.T) {
	cfg := DefaultHeadersConfig()
	cfg.CustomHeaders = map[string]string{"X-Powered-By": "wordbridge"}

	router := web.NewRouter()
	router.Use(Headers(cfg))
	router.GET("/", func(c *web.RequestContext) error { return c.NoContent() })

	var rc fasthttp.RequestCtx
	rc.Request.SetRequestURI("/")
	router.Serve(web.NewRequestContext(&rc))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": cfg.CSP,
		"X-Powered-By":            "wordbridge",
	}
	for k, v := range want {
		if got := string(rc.Response.Header.Peek(k)); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if len(rc.Response.Header.Peek("Strict-Transport-Security")) != 0 {
		t.Error("HSTS should be off by default")
	}
}

func TestHeaders_HSTS(t *testing.T) {
	router := web.NewRouter()
	router.Use(Headers(HeadersConfig{HSTS: true, HSTSIncludeSub: true}))
	router.GET("/", func(c *web.RequestContext) error { return c.NoContent() })

	var rc fasthttp.RequestCtx
	rc.Request.SetRequestURI("/")
	router.Serve(web.NewRequestContext(&rc))

	if got := string(rc.Response.Header.Peek("Strict-Transport-Security")); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}
