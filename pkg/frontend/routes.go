package frontend

import (
	"strings"

	"github.com/fluxorio/wordbridge/pkg/web"
	"github.com/valyala/fasthttp"
)

// Route paths.
const (
	PathWords          = "/rest/words"
	PathWordsUppercase = "/rest/wordsuppercase"
	PathHealth         = "/health"
)

// Health reports liveness and channel state.
type Health struct {
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	Connected bool   `json:"connected"`
	Held      int    `json:"held"`
}

// ChannelStatus is the state part of a channel.Channel.
type ChannelStatus interface {
	Kind() string
	Connected() bool
}

// RegisterRoutes mounts the REST endpoints and health check on router.
func RegisterRoutes(router *web.Router, svc *Service, status ChannelStatus) {
	router.POST(PathWords, svc.Submit)
	router.GET(PathWordsUppercase, svc.Poll)
	router.GET(PathHealth, func(c *web.RequestContext) error {
		return c.JSON(200, Health{
			Status:    "UP",
			Channel:   status.Kind(),
			Connected: status.Connected(),
			Held:      svc.buf.Len(),
		})
	})
}

// StaticHandler serves GET/HEAD for "/", "*.html", "*.css" and "/images/*"
// from root. Anything else, or a missing file, is 404.
func StaticHandler(root string) web.Handler {
	fs := &fasthttp.FS{
		Root:               root,
		IndexNames:         []string{"index.html"},
		AcceptByteRange:    false,
		Compress:           false,
		GenerateIndexPages: false,
		PathNotFound: func(rc *fasthttp.RequestCtx) {
			rc.ResetBody()
			rc.SetStatusCode(fasthttp.StatusNotFound)
			rc.SetContentType("text/plain; charset=utf-8")
			rc.SetBodyString("Not Found")
		},
	}
	serve := fs.NewRequestHandler()

	return func(c *web.RequestContext) error {
		if !staticAllowed(c.Method(), c.Path()) {
			return web.NewHTTPError(fasthttp.StatusNotFound, "Not Found")
		}
		serve(c.RequestCtx)
		return nil
	}
}

func staticAllowed(method, path string) bool {
	if method != fasthttp.MethodGet && method != fasthttp.MethodHead {
		return false
	}
	if strings.Contains(path, "..") {
		return false
	}
	switch {
	case path == "/":
		return true
	case strings.HasPrefix(path, "/images/") && len(path) > len("/images/"):
		return true
	case strings.HasSuffix(path, ".html"), strings.HasSuffix(path, ".css"):
		return true
	}
	return false
}

// restOnly applies mw to /rest/ paths only.
func restOnly(mw web.Middleware) web.Middleware {
	return func(next web.Handler) web.Handler {
		protected := mw(next)
		return func(c *web.RequestContext) error {
			if strings.HasPrefix(c.Path(), "/rest/") {
				return protected(c)
			}
			return next(c)
		}
	}
}
