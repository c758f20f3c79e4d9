package config

// Redis backs the response cache and the rate limiter.  Both degrade to
// pass-through when the server is unreachable at startup.

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig holds the REDIS_* variables.  ADDR (host:port) wins over
// HOST and PORT when set.
type RedisConfig struct {
    Enabled  bool   `env:"ENABLED, default=true"`
    Addr     string `env:"ADDR"`
    Host     string `env:"HOST, default=localhost"`
    Port     string `env:"PORT, default=6379"`
    Password string `env:"PASSWORD"`
    DB       int    `env:"DB, default=0"`
    TLS      bool   `env:"TLS, default=false"`
}

func (c RedisConfig) address() string {
    if c.Addr != "" {
        return c.Addr
    }
    return c.Host + ":" + c.Port
}

// NewRedisClient connects to Redis and pings it with a short timeout.  It
// returns nil when Redis is disabled or unreachable.
func NewRedisClient(ctx context.Context, c RedisConfig) *redis.Client {
    if !c.Enabled {
        return nil
    }
    var tlsConf *tls.Config
    if c.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      c.address(),
        Password:  c.Password,
        DB:        c.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
