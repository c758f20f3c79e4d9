package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/geocms/lab-reservation/internal/middleware"
    "github.com/geocms/lab-reservation/internal/model"
    "github.com/geocms/lab-reservation/internal/service"
)

// requestTimeout bounds the storage work of one request.
const requestTimeout = 5 * time.Second

// bulkItemTimeout is the extra budget per reservation in a bulk request.
const bulkItemTimeout = 500 * time.Millisecond

// statusClientClosedRequest is the nginx convention for a request the
// client abandoned; nobody reads the response.
const statusClientClosedRequest = 499

// statusOf maps workflow error kinds to HTTP status codes.
var statusOf = map[service.Kind]int{
    service.KindValidation:   http.StatusBadRequest,
    service.KindConflict:     http.StatusConflict,
    service.KindNotFound:     http.StatusNotFound,
    service.KindForbidden:    http.StatusForbidden,
    service.KindInvalidState: http.StatusConflict,
}

// writeError renders err as {"error", "code"}.  Anything that is not a
// workflow rejection is logged and reported as a bare 500.
func writeError(c echo.Context, log *zap.Logger, err error) error {
    var e *service.Error
    if errors.As(err, &e) {
        code, ok := statusOf[e.Kind]
        if !ok {
            code = http.StatusInternalServerError
        }
        return c.JSON(code, echo.Map{"error": e.Reason, "code": e.Kind})
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "request timed out"})
    }
    if errors.Is(err, context.Canceled) {
        log.Debug("request cancelled by client", zap.String("route", c.Path()))
        return c.JSON(statusClientClosedRequest, echo.Map{"error": "request cancelled"})
    }
    log.Error("request failed", zap.String("route", c.Path()), zap.Error(err))
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": service.KindValidation})
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

// actorOf returns the authenticated caller.
func actorOf(c echo.Context) (model.Actor, bool) { return middleware.ActorFrom(c) }

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}
