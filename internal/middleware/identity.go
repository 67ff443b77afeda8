package middleware

// identity.go holds the helpers that move the authenticated actor in and
// out of the Echo context.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/class-reservation/internal/model"
)

const actorKey = "actor"

// SetActor stores the authenticated actor on the request.
func SetActor(c echo.Context, a model.Actor) {
	c.Set(actorKey, a)
}

// ActorFrom returns the actor stored by JWTAuth.  ok is false on routes
// that are not authenticated.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(actorKey).(model.Actor)
	return a, ok && a.ID != 0
}

// parseID accepts the shapes a JSON "sub" claim takes in practice.
func parseID(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 && t == float64(uint64(t)) {
			return uint64(t), true
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
