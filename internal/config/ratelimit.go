package config

import "time"

// RateLimitConfig drives the Redis token bucket that guards the /auth routes.
// Capacity is the bucket size, RefillTokens are added every RefillInterval and
// idle buckets expire after TTL.  Burst and RefillEvery are shorthands kept for
// older deployments: a positive Burst overrides Capacity and a positive
// RefillEvery means "one token every RefillEvery".
type RateLimitConfig struct {
	Enabled        bool          `env:"ENABLED"         envDefault:"true"`
	Capacity       int           `env:"CAPACITY"        envDefault:"20"`
	RefillTokens   int           `env:"REFILL_TOKENS"   envDefault:"1"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"3s"`
	TTL            time.Duration `env:"TTL"             envDefault:"10m"`
	KeyStrategy    string        `env:"KEY_STRATEGY"    envDefault:"ip_route"`
	Prefix         string        `env:"PREFIX"          envDefault:"rl:auth"`
	Debug          bool          `env:"DEBUG"           envDefault:"false"`
	Burst          int           `env:"BURST"           envDefault:"-1"`
	RefillEvery    time.Duration `env:"REFILL_EVERY"    envDefault:"0s"`
}

func (c *RateLimitConfig) normalize() {
	if c.Burst > 0 {
		c.Capacity = c.Burst
	}
	if c.RefillEvery > 0 {
		c.RefillTokens = 1
		c.RefillInterval = c.RefillEvery
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	// keep buckets alive for at least a few refill periods
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
}
