package middleware

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/class-reservation/internal/cache"
)

// summaryRecorder tees the response body so a 200 can be cached.
type summaryRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *summaryRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *summaryRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// CacheSessionSummary serves the summary of the session in the :id path
// parameter from sc and stores successful responses.  The service drops
// an entry whenever a reservation on that session changes.  A nil sc or
// a Redis failure falls through to the handler.
func CacheSessionSummary(sc *cache.SummaryCache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
			if sc == nil || err != nil {
				return next(c)
			}
			ctx := c.Request().Context()

			body, ok, err := sc.Get(ctx, sessionID)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Uint64("session_id", sessionID).Msg("summary cache read failed")
			}
			if ok {
				c.Response().Header().Set("X-Cache", "HIT")
				return c.JSONBlob(http.StatusOK, body)
			}

			rec := &summaryRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK {
				return nil
			}
			if err := sc.Put(context.WithoutCancel(ctx), sessionID, bytes.TrimSpace(rec.body.Bytes())); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Uint64("session_id", sessionID).Msg("summary cache write failed")
			}
			return nil
		}
	}
}
