package middleware

import (
	"time"

	"github.com/fluxorio/wordbridge/pkg/core"
	"github.com/fluxorio/wordbridge/pkg/web"
)

// Logging logs one line per request at debug level, or warn for 5xx.
func Logging(logger core.Logger) web.Middleware {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.Handler) web.Handler {
		return func(c *web.RequestContext) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				web.WriteError(c, err)
			}

			status := c.RequestCtx.Response.StatusCode()
			entry := logger.WithFields(map[string]interface{}{
				"request_id": c.RequestID(),
				"method":     c.Method(),
				"path":       c.Path(),
				"status":     status,
				"duration":   time.Since(start).String(),
			})
			switch {
			case status >= 500:
				entry.Warnf("request failed: %v", err)
			default:
				entry.Debug("request")
			}
			return nil
		}
	}
}
