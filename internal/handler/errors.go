package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/class-reservation/internal/lifecycle"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{lifecycle.ErrNotFound, http.StatusNotFound, "not_found"},
	{lifecycle.ErrForbidden, http.StatusForbidden, "forbidden"},
	{lifecycle.ErrWindowClosed, http.StatusConflict, "window_closed"},
	{lifecycle.ErrCapacityFull, http.StatusConflict, "capacity_full"},
	{lifecycle.ErrAlreadyReserved, http.StatusConflict, "already_reserved"},
	{lifecycle.ErrNotEligible, http.StatusForbidden, "not_eligible"},
	{lifecycle.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
}

// respondError writes err as {"error": code, "message": ...}.  Errors
// outside the lifecycle taxonomy are logged and reported as internal
// without detail.
func respondError(c echo.Context, err error) error {
	for _, m := range errorTable {
		if !errors.Is(err, m.err) {
			continue
		}
		body := echo.Map{"error": m.code, "message": m.err.Error()}
		var te *lifecycle.TransitionError
		if errors.As(err, &te) {
			body["message"] = te.Error()
			body["from"] = te.From
			body["action"] = te.Action
		}
		return c.JSON(m.status, body)
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": msg})
}
