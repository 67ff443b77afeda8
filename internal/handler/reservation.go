// Package handler exposes the HTTP handlers of the class reservation API.
// Handlers parse and validate input, call the reservation service and map
// its error taxonomy onto status codes.  Authentication and role checks
// run earlier in middleware.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/class-reservation/internal/middleware"
	"github.com/iliyamo/class-reservation/internal/model"
)

// ReservationService is the subset of *service.ReservationService the
// handlers call.
type ReservationService interface {
	CreateReservation(ctx context.Context, sessionID, learnerID uint64) (*model.Reservation, error)
	ChangeReservationStatus(ctx context.Context, reservationID uint64, action model.Action, actor model.Actor, reason *string) (*model.Reservation, error)
	GetReservation(ctx context.Context, actor model.Actor, reservationID uint64) (*model.ReservationView, error)
	ListAuditTrail(ctx context.Context, actor model.Actor, reservationID uint64) ([]model.AuditEntry, error)
	ListSessionReservations(ctx context.Context, actor model.Actor, sessionID uint64) ([]model.ReservationView, error)
	ListLearnerReservations(ctx context.Context, learnerID uint64) ([]model.ReservationView, error)
	GetSessionSummary(ctx context.Context, sessionID uint64) (*model.SessionSummary, error)
	OpenChatRoom(ctx context.Context, actor model.Actor, sessionID uint64) (*model.ChatRoom, error)
}

// ReservationHandler serves the reservation endpoints.
type ReservationHandler struct {
	svc ReservationService
}

// NewReservationHandler panics if svc is nil.
func NewReservationHandler(svc ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{svc: svc}
}

// actionRequest is the body of POST /v1/reservations/:id/actions.
type actionRequest struct {
	Action string  `json:"action" validate:"required,oneof=approve reject cancel cancel_request cancel_approve cancel_deny"`
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// SessionSummary handles GET /v1/sessions/:id/summary.  Public.
func (h *ReservationHandler) SessionSummary(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid session id")
	}
	sum, err := h.svc.GetSessionSummary(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// Apply handles POST /v1/sessions/:id/reservations for the calling
// learner.  Returns 201 with the reservation; a re-entry returns the
// reused row.
func (h *ReservationHandler) Apply(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid session id")
	}
	r, err := h.svc.CreateReservation(c.Request().Context(), id, actor.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// MyReservations handles GET /v1/my-reservations.
func (h *ReservationHandler) MyReservations(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.svc.ListLearnerReservations(c.Request().Context(), actor.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": nonNil(items)})
}

// SessionReservations handles GET /v1/sessions/:id/reservations for the
// instructor owning the session.
func (h *ReservationHandler) SessionReservations(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid session id")
	}
	items, err := h.svc.ListSessionReservations(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": nonNil(items)})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	v, err := h.svc.GetReservation(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Act handles POST /v1/reservations/:id/actions with body
// {"action": ..., "reason": ...}.
func (h *ReservationHandler) Act(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body actionRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return badRequest(c, err.Error())
	}
	r, err := h.svc.ChangeReservationStatus(c.Request().Context(), id, model.Action(body.Action), actor, body.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// History handles GET /v1/reservations/:id/history, newest entry first.
func (h *ReservationHandler) History(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	items, err := h.svc.ListAuditTrail(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []model.AuditEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// OpenChatRoom handles POST /v1/sessions/:id/chat-room.
func (h *ReservationHandler) OpenChatRoom(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid session id")
	}
	room, err := h.svc.OpenChatRoom(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func nonNil(v []model.ReservationView) []model.ReservationView {
	if v == nil {
		return []model.ReservationView{}
	}
	return v
}
