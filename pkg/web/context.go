package web

import (
	"context"
	"fmt"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/valyala/fasthttp"
)

// RequestContext wraps a fasthttp request for handlers and middleware.
// It is only valid for the duration of the handler call.
type RequestContext struct {
	RequestCtx *fasthttp.RequestCtx

	requestID string
	ctx       context.Context
	values    map[string]interface{}
}

// NewRequestContext wraps rc, taking the request id from the X-Request-ID
// header or generating one. The id is echoed on the response.
func NewRequestContext(rc *fasthttp.RequestCtx) *RequestContext {
	requestID := string(rc.Request.Header.Peek(core.RequestIDHeader))
	if requestID == "" {
		requestID = core.GenerateRequestID()
	}
	rc.Response.Header.Set(core.RequestIDHeader, requestID)

	return &RequestContext{
		RequestCtx: rc,
		requestID:  requestID,
		ctx:        core.WithRequestID(context.Background(), requestID),
	}
}

// JSON writes data as a JSON response.
func (c *RequestContext) JSON(statusCode int, data interface{}) error {
	if statusCode < 100 || statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", statusCode)
	}

	body, err := core.JSONEncode(data)
	if err != nil {
		return fmt.Errorf("json encode error: %w", err)
	}
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json")
	c.RequestCtx.SetBody(body)
	return nil
}

// Raw writes body as is.
func (c *RequestContext) Raw(statusCode int, contentType string, body []byte) error {
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType(contentType)
	c.RequestCtx.SetBody(body)
	return nil
}

// NoContent writes an empty 204 response.
func (c *RequestContext) NoContent() error {
	c.RequestCtx.ResetBody()
	c.RequestCtx.SetStatusCode(fasthttp.StatusNoContent)
	return nil
}

// BindJSON decodes the request body into v. An empty or undecodable body is
// a validation error.
func (c *RequestContext) BindJSON(v interface{}) error {
	body := c.RequestCtx.PostBody()
	if len(body) == 0 {
		return core.NewValidationError("request body is empty")
	}
	if err := core.JSONDecode(body, v); err != nil {
		return &core.Error{Code: core.CodeValidation, Message: "request body is not valid JSON", Err: err}
	}
	return nil
}

// Method returns the HTTP method.
func (c *RequestContext) Method() string {
	return string(c.RequestCtx.Method())
}

// Path returns the request path.
func (c *RequestContext) Path() string {
	return string(c.RequestCtx.Path())
}

// Header returns a request header.
func (c *RequestContext) Header(key string) string {
	return string(c.RequestCtx.Request.Header.Peek(key))
}

// RequestID returns the request ID for this request
func (c *RequestContext) RequestID() string {
	return c.requestID
}

// Context carries the request id and, once tracing middleware ran, the span.
func (c *RequestContext) Context() context.Context {
	return c.ctx
}

// SetContext replaces the request's context.
func (c *RequestContext) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// Set stores a request-scoped value.
func (c *RequestContext) Set(key string, value interface{}) {
	if c.values == nil {
		c.values = make(map[string]interface{})
	}
	c.values[key] = value
}

// Get returns a value stored with Set.
func (c *RequestContext) Get(key string) interface{} {
	return c.values[key]
}
