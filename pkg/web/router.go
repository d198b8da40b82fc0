package web

import (
	"sync"

	"github.com/valyala/fasthttp"
)

// Handler handles a request. A returned error is written with WriteError.
type Handler func(c *RequestContext) error

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

type route struct {
	method  string
	path    string
	handler Handler
}

// Router matches method and exact path.
// Middleware registered with Use wraps every route and the not-found handler.
type Router struct {
	mu         sync.RWMutex
	routes     []route
	middleware []Middleware
	notFound   Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		notFound: func(c *RequestContext) error {
			return NewHTTPError(fasthttp.StatusNotFound, "Not Found")
		},
	}
}

// Use appends middleware. Earlier middleware runs first.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Handle registers handler for method and path.
func (r *Router) Handle(method, path string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{
		method:  method,
		path:    path,
		handler: handler,
	})
}

func (r *Router) GET(path string, handler Handler)  { r.Handle(fasthttp.MethodGet, path, handler) }
func (r *Router) POST(path string, handler Handler) { r.Handle(fasthttp.MethodPost, path, handler) }

// NotFound sets the handler for requests that match no route.
func (r *Router) NotFound(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = handler
}

// Serve dispatches c to the matching route.
func (r *Router) Serve(c *RequestContext) {
	r.mu.RLock()
	handler := r.match(c)
	mws := r.middleware
	r.mu.RUnlock()

	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	if err := handler(c); err != nil {
		WriteError(c, err)
	}
}

func (r *Router) match(c *RequestContext) Handler {
	method := c.Method()
	path := c.Path()

	pathMatched := false
	for _, rt := range r.routes {
		if rt.path != path {
			continue
		}
		pathMatched = true
		if rt.method == method || (method == fasthttp.MethodHead && rt.method == fasthttp.MethodGet) {
			return rt.handler
		}
	}
	if pathMatched {
		return func(c *RequestContext) error {
			return NewHTTPError(fasthttp.StatusMethodNotAllowed, "Method Not Allowed")
		}
	}
	return r.notFound
}
