// Package router registers the HTTP routes of the API on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/class-reservation/internal/cache"
	"github.com/iliyamo/class-reservation/internal/config"
	"github.com/iliyamo/class-reservation/internal/handler"
	"github.com/iliyamo/class-reservation/internal/middleware"
	"github.com/iliyamo/class-reservation/internal/model"
)

// Deps is everything the routes need.  Redis and Summaries may be nil,
// which turns rate limiting and summary caching into pass-throughs.
type Deps struct {
	Reservations handler.ReservationService
	DB           handler.Pinger
	Redis        *redis.Client
	Summaries    *cache.SummaryCache
	JWTSecret    string
	RateLimit    config.RateLimitConfig
}

// New builds the Echo instance with the shared middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())

	RegisterRoutes(e, d.DB)
	RegisterReservations(e, handler.NewReservationHandler(d.Reservations), d)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterReservations mounts the reservation API under /v1.  The session
// summary is public and cached per session; everything else requires a
// valid token.  Apply attempts are limited per learner and session on top
// of the per-client limit.
// Ownership checks happen in the service, roles are enforced here.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, d Deps) {
	rl := middleware.NewRateLimiter(d.RateLimit, d.Redis)
	perClient := rl.Limit(d.RateLimit.Requests, d.RateLimit.Window, middleware.ClientKey)
	perApply := rl.Limit(d.RateLimit.ApplyRequests, d.RateLimit.ApplyWindow, middleware.ApplyKey)

	e.GET("/v1/sessions/:id/summary", h.SessionSummary, perClient, middleware.CacheSessionSummary(d.Summaries))

	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret), perClient)

	learner := middleware.RequireRole(model.RoleLearner)
	instructor := middleware.RequireRole(model.RoleInstructor)
	either := middleware.RequireRole(model.RoleLearner, model.RoleInstructor)

	g.POST("/sessions/:id/reservations", h.Apply, learner, perApply)
	g.GET("/my-reservations", h.MyReservations, learner)
	g.GET("/sessions/:id/reservations", h.SessionReservations, instructor)
	g.GET("/reservations/:id", h.Get, either)
	g.POST("/reservations/:id/actions", h.Act, either)
	g.GET("/reservations/:id/history", h.History, either)
	g.POST("/sessions/:id/chat-room", h.OpenChatRoom, either)
}
