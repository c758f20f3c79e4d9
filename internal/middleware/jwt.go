package middleware // reusable HTTP middleware for the reservation API

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/geocms/lab-reservation/internal/model"
    "github.com/geocms/lab-reservation/internal/utils"
)

// Context keys set by JWTAuth.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// JWTAuth validates a Bearer access token and stores the caller's id and
// role in the echo context.  Handlers read them back through ActorFrom.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(ctxUserID, claims.UserID)
            c.Set(ctxRole, claims.Role)
            return next(c)
        }
    }
}

// ActorFrom returns the authenticated caller.  ok is false on routes not
// behind JWTAuth.
func ActorFrom(c echo.Context) (model.Actor, bool) {
    id, ok1 := c.Get(ctxUserID).(uint64)
    role, ok2 := c.Get(ctxRole).(model.Role)
    if !ok1 || !ok2 || id == 0 {
        return model.Actor{}, false
    }
    return model.Actor{UserID: id, Role: role}, true
}
