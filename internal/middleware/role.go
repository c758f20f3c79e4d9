package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/geocms/lab-reservation/internal/model"
)

// RequireRole aborts with 403 unless the caller holds one of roles.  It
// must run after JWTAuth.  Services still check capabilities; this only
// keeps whole route groups closed to roles that can never use them.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
    allowed := make(map[model.Role]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            actor, ok := ActorFrom(c)
            if !ok || !allowed[actor.Role] {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
