package middleware

import (
	"runtime/debug"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/web"
	"github.com/valyala/fasthttp"
)

// RecoveryConfig configures panic recovery middleware
type RecoveryConfig struct {
	Logger core.Logger

	// StackTrace logs the goroutine stack with the panic.
	StackTrace bool
}

// Recovery turns a handler panic into a 500 response.
func Recovery(config RecoveryConfig) web.Middleware {
	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.Handler) web.Handler {
		return func(c *web.RequestContext) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				fields := map[string]interface{}{
					"request_id": c.RequestID(),
					"method":     c.Method(),
					"path":       c.Path(),
				}
				if config.StackTrace {
					fields["stack"] = string(debug.Stack())
				}
				logger.WithFields(fields).Errorf("panic recovered: %v", r)

				c.RequestCtx.Response.Reset()
				c.RequestCtx.Response.Header.Set(core.RequestIDHeader, c.RequestID())
				err = web.NewHTTPError(fasthttp.StatusInternalServerError, "Internal Server Error")
			}()

			return next(c)
		}
	}
}
