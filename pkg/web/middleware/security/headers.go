package security

import (
	"strconv"

	"github.com/fluxorio/wordbridge/pkg/web"
)

// HeadersConfig configures security headers
type HeadersConfig struct {
	// HSTS is only meaningful behind TLS.
	HSTS           bool
	HSTSMaxAge     int // seconds
	HSTSIncludeSub bool

	CSP                       string
	XFrameOptions             string
	XContentTypeOptions       bool
	ReferrerPolicy            string
	CrossOriginOpenerPolicy   string
	CrossOriginResourcePolicy string

	CustomHeaders map[string]string
}

// DefaultHeadersConfig suits the bundled static page and the JSON API: the
// page may load its own scripts, styles and images and call back to the
// same origin, nothing else.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		HSTSMaxAge:                31536000,
		CSP:                       "default-src 'self'; img-src 'self' data:; frame-ancestors 'none'; base-uri 'none'",
		XFrameOptions:             "DENY",
		XContentTypeOptions:       true,
		ReferrerPolicy:            "no-referrer",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
	}
}

// Headers middleware adds security headers to responses
func Headers(config HeadersConfig) web.Middleware {
	hsts := ""
	if config.HSTS {
		maxAge := config.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 31536000
		}
		hsts = "max-age=" + strconv.Itoa(maxAge)
		if config.HSTSIncludeSub {
			hsts += "; includeSubDomains"
		}
	}

	headers := make([][2]string, 0, 8+len(config.CustomHeaders))
	add := func(name, value string) {
		if value != "" {
			headers = append(headers, [2]string{name, value})
		}
	}
	add("Strict-Transport-Security", hsts)
	add("Content-Security-Policy", config.CSP)
	add("X-Frame-Options", config.XFrameOptions)
	if config.XContentTypeOptions {
		add("X-Content-Type-Options", "nosniff")
	}
	add("Referrer-Policy", config.ReferrerPolicy)
	add("Cross-Origin-Opener-Policy", config.CrossOriginOpenerPolicy)
	add("Cross-Origin-Resource-Policy", config.CrossOriginResourcePolicy)
	for k, v := range config.CustomHeaders {
		add(k, v)
	}

	return func(next web.Handler) web.Handler {
		return func(c *web.RequestContext) error {
			for _, h := range headers {
				c.RequestCtx.Response.Header.Set(h[0], h[1])
			}
			return next(c)
		}
	}
}
