package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger attaches a request scoped zerolog logger (tagged with the request
// id) to the request context and logs one line per request.  The level
// follows the status: error for 5xx, warn for 4xx, info otherwise.
func Logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			l := log.Logger.With().Str("request_id", GetRequestID(c)).Logger()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				// let Echo's error handler write the response so the status is final
				c.Error(err)
			}

			status := c.Response().Status
			var ev *zerolog.Event
			switch {
			case status >= 500:
				ev = l.Error()
			case status >= 400:
				ev = l.Warn()
			default:
				ev = l.Info()
			}
			ev.Int("status", status).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("query", req.URL.RawQuery).
				Str("ip", c.RealIP()).
				Dur("latency", time.Since(start))
			if err != nil {
				ev = ev.Err(err)
			}
			ev.Msg("request")
			return nil
		}
	}
}
