package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// userKey identifies the caller for rate limit keys.  Unauthenticated
// requests share the "anon" bucket per IP.
func userKey(c echo.Context) string {
    if a, ok := ActorFrom(c); ok {
        return strconv.FormatUint(a.UserID, 10)
    }
    return "anon"
}
