package config

import "time"

type RateLimitConfig struct {
    Enabled        bool          `env:"ENABLED, default=true"`
    Capacity       int           `env:"CAPACITY, default=30"`
    Burst          int           `env:"BURST"`
    RefillTokens   int           `env:"REFILL_TOKENS, default=1"`
    RefillInterval time.Duration `env:"REFILL_INTERVAL, default=2s"`
    RefillEvery    time.Duration `env:"REFILL_EVERY"`
    TTL            time.Duration `env:"TTL, default=10m"`
    KeyStrategy    string        `env:"KEY_STRATEGY, default=user_route"`
    Prefix         string        `env:"PREFIX, default=rl"`
    Debug          bool          `env:"DEBUG, default=false"`
}

// normalize applies the BURST and REFILL_EVERY shorthands and clamps the
// bucket to sane values.
func (c *RateLimitConfig) normalize() {
    if c.Burst > 0 {
        c.Capacity = c.Burst
    }
    if c.RefillEvery > 0 {
        c.RefillTokens = 1
        c.RefillInterval = c.RefillEvery
    }
    if c.Capacity < 1 { c.Capacity = 1 }
    if c.RefillTokens < 1 { c.RefillTokens = 1 }
    if c.RefillInterval <= 0 { c.RefillInterval = time.Second }
    minTTL := 5 * c.RefillInterval
    if c.TTL < minTTL { c.TTL = minTTL }
}
