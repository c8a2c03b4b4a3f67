package config

import (
	"strconv"
	"strings"
	"time"
)

type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables. Booking and payment
// endpoints are low volume, so the default bucket is small.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        parseBoolEnv("RATE_LIMIT_ENABLED", "true"),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 20),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDuration("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
		TTL:            envDuration("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    strings.ToLower(getEnv("RATE_LIMIT_KEY_STRATEGY", "ip_route")),
		Prefix:         getEnv("RATE_LIMIT_PREFIX", "lulufarm:rl"),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}

func envInt(name string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(getEnv(name, ""))); err == nil {
		return n
	}
	return def
}

func envDuration(name string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(getEnv(name, ""))); err == nil {
		return d
	}
	return def
}
