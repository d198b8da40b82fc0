package web

import (
	"errors"
	"net/http"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/valyala/fasthttp"
)

// HTTPError is returned by handlers to choose the response status.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string { return e.Message }

// NewHTTPError creates an HTTPError.
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError turns a handler error into a JSON error response. Validation
// errors become 400; unclassified errors become 500 without internal detail.
func WriteError(c *RequestContext, err error) {
	status := fasthttp.StatusInternalServerError
	message := http.StatusText(status)

	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		status, message = httpErr.Status, httpErr.Message
	case core.IsValidation(err):
		status = fasthttp.StatusBadRequest
		var ce *core.Error
		errors.As(err, &ce)
		message = ce.Message
	case errors.Is(err, core.ErrOverloaded):
		status = fasthttp.StatusServiceUnavailable
		message = http.StatusText(status)
	}

	_ = c.JSON(status, errorBody{Error: message, RequestID: c.RequestID()})
}
