package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/class-reservation/internal/model"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// signed with HS256 and stores the caller as a model.Actor in the
// context.  The token must carry a numeric subject ("sub") and a "role"
// claim of learner, instructor or admin.  Token issuance lives elsewhere;
// this service only verifies.
func JWTAuth(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := parser.Parse(raw, keyFunc)
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid claims"})
			}
			actor, ok := actorFromClaims(claims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid claims"})
			}
			SetActor(c, actor)
			return next(c)
		}
	}
}

func actorFromClaims(claims jwt.MapClaims) (model.Actor, bool) {
	id, ok := parseID(claims["sub"])
	if !ok {
		return model.Actor{}, false
	}
	role, _ := claims["role"].(string)
	switch model.Role(role) {
	case model.RoleLearner, model.RoleInstructor, model.RoleAdmin:
	default:
		return model.Actor{}, false
	}
	return model.Actor{ID: id, Role: model.Role(role)}, true
}
