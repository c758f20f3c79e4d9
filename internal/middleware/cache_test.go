package middleware

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/geocms/lab-reservation/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { rdb.Close() })
    return mr, rdb
}

func cacheCfg() config.CacheConfig {
    return config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute,
        KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20}
}

func TestResponseCacheHitAndInvalidate(t *testing.T) {
    _, rdb := newRedis(t)
    rc := NewResponseCache(cacheCfg(), rdb, nil)

    calls := map[string]int{}
    e := echo.New()
    e.GET("/v1/labs/:id/timetable", func(c echo.Context) error {
        calls[c.Param("id")]++
        return c.JSON(http.StatusOK, echo.Map{"lab": c.Param("id")})
    }, rc.Middleware())
    e.GET("/v1/labs", func(c echo.Context) error {
        calls["list"]++
        return c.JSON(http.StatusOK, echo.Map{"items": []int{}})
    }, rc.Middleware())

    get := func(path string) *httptest.ResponseRecorder {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
        return rec
    }

    if rec := get("/v1/labs/7/timetable?from=2025-06-02"); rec.Header().Get("X-Cache") != "MISS" {
        t.Fatalf("first X-Cache = %q", rec.Header().Get("X-Cache"))
    }
    rec := get("/v1/labs/7/timetable?from=2025-06-02")
    if rec.Header().Get("X-Cache") != "HIT" || rec.Code != http.StatusOK {
        t.Fatalf("second X-Cache = %q code %d", rec.Header().Get("X-Cache"), rec.Code)
    }
    if rec.Header().Get(echo.HeaderContentType) == "" || rec.Body.Len() == 0 {
        t.Fatalf("cached response lost headers or body: %v %q", rec.Header(), rec.Body.String())
    }
    get("/v1/labs/8/timetable?from=2025-06-02")
    get("/v1/labs")
    get("/v1/labs")
    if calls["7"] != 1 || calls["list"] != 1 {
        t.Fatalf("calls = %v", calls)
    }

    rc.InvalidateLab(context.Background(), 7)
    get("/v1/labs/7/timetable?from=2025-06-02")
    get("/v1/labs/8/timetable?from=2025-06-02")
    get("/v1/labs")
    if calls["7"] != 2 || calls["8"] != 1 || calls["list"] != 2 {
        t.Fatalf("after InvalidateLab calls = %v", calls)
    }

    rc.InvalidateAll(context.Background())
    get("/v1/labs/8/timetable?from=2025-06-02")
    if calls["8"] != 2 {
        t.Fatalf("after InvalidateAll calls = %v", calls)
    }
}

func TestResponseCacheSkipsErrorsAndLargeBodies(t *testing.T) {
    mr, rdb := newRedis(t)
    cfg := cacheCfg()
    cfg.MaxBodyBytes = 8
    rc := NewResponseCache(cfg, rdb, nil)

    e := echo.New()
    e.GET("/missing", func(c echo.Context) error {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "Lab not found"})
    }, rc.Middleware())
    e.GET("/big", func(c echo.Context) error {
        return c.String(http.StatusOK, "a body longer than eight bytes")
    }, rc.Middleware())

    for _, p := range []string{"/missing", "/big"} {
        e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
    }
    if keys := mr.Keys(); len(keys) != 0 {
        t.Fatalf("stored keys = %v", keys)
    }
}

func TestResponseCacheDisabledWithoutRedis(t *testing.T) {
    rc := NewResponseCache(cacheCfg(), nil, nil)
    rc.InvalidateAll(context.Background())

    e := echo.New()
    e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, rc.Middleware())
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
    if rec.Header().Get("X-Cache") != "" {
        t.Fatalf("X-Cache = %q", rec.Header().Get("X-Cache"))
    }
}
