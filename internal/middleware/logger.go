package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

// AccessLog writes one structured line per request.  5xx responses are
// logged at error level, 4xx at warn.
func AccessLog(log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // Let echo's error handler pick the status before we read it.
                c.Error(err)
            }
            status := c.Response().Status
            lvl := zapcore.InfoLevel
            switch {
            case status >= 500:
                lvl = zapcore.ErrorLevel
            case status >= 400:
                lvl = zapcore.WarnLevel
            }
            fields := []zap.Field{
                zap.String("method", c.Request().Method),
                zap.String("route", c.Path()),
                zap.String("uri", c.Request().RequestURI),
                zap.Int("status", status),
                zap.Duration("latency", time.Since(start)),
                zap.String("ip", c.RealIP()),
                zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
            }
            if a, ok := ActorFrom(c); ok {
                fields = append(fields, zap.Uint64("actor_id", a.UserID), zap.String("role", string(a.Role)))
            }
            if err != nil {
                fields = append(fields, zap.Error(err))
            }
            log.Log(lvl, "http request", fields...)
            return nil
        }
    }
}
