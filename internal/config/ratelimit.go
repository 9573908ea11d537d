package config

import (
	"strings"
	"time"
)

// Rate limit key strategies.
const (
	RateKeyEntity = "entity" // one bucket per caller and product/raffle
	RateKeyCaller = "caller" // one bucket per caller across all items
)

// RateLimitConfig drives the Redis token bucket in front of the sell and
// buy-ticket endpoints.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"ENABLED" default:"true"`
	Capacity       int           `envconfig:"CAPACITY" default:"20"`
	RefillTokens   int           `envconfig:"REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"REFILL_INTERVAL" default:"1s"`
	TTL            time.Duration `envconfig:"TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"KEY_STRATEGY" default:"entity"`
	Prefix         string        `envconfig:"PREFIX" default:"storefront:rl"`
	Debug          bool          `envconfig:"DEBUG" default:"false"`
}

func (r *RateLimitConfig) normalize() {
	if r.KeyStrategy = strings.ToLower(strings.TrimSpace(r.KeyStrategy)); r.KeyStrategy != RateKeyCaller {
		r.KeyStrategy = RateKeyEntity
	}
	if r.Capacity < 1 {
		r.Capacity = 1
	}
	if r.RefillTokens < 1 {
		r.RefillTokens = 1
	}
	if r.RefillInterval <= 0 {
		r.RefillInterval = time.Second
	}
	// keys must survive long enough to refill a few times
	if minTTL := 5 * r.RefillInterval; r.TTL < minTTL {
		r.TTL = minTTL
	}
}
