package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching will be disabled.
// Methods lists the HTTP methods to cache (e.g. GET, HEAD).  Keys are
// namespaced by Prefix and, for lab scoped routes, by lab id so a write to
// one lab drops only that lab's entries.
type CacheConfig struct {
    Enabled      bool          `env:"ENABLED, default=true"`
    Methods      []string      `env:"METHODS, default=GET"`
    TTL          time.Duration `env:"TTL, default=30s"`
    KeyStrategy  string        `env:"KEY_STRATEGY, default=route_query"`
    Prefix       string        `env:"PREFIX, default=cache"`
    MaxBodyBytes int           `env:"MAX_BODY_BYTES, default=1048576"`
}

// Caches reports whether responses to method are cached.
func (c CacheConfig) Caches(method string) bool {
    for _, m := range c.Methods {
        if strings.EqualFold(strings.TrimSpace(m), method) {
            return true
        }
    }
    return false
}
