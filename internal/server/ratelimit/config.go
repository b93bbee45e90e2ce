package ratelimit

import (
	"strings"
	"time"

	"github.com/jonathan/print-estimator/internal/config"
)

// EndpointConfig is the limit for one route. Path segments of "*" match any
// single segment and a trailing "/" matches any suffix.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
	// Burst is the bucket capacity; zero uses Limit
	Burst int
}

// Config holds rate limiting configuration
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Allowlist       map[string]bool
	Endpoints       []EndpointConfig
}

// Default returns limits equivalent to config.Default()
func Default() *Config {
	return FromSettings(config.Default().RateLimit)
}

// FromSettings builds a limiter configuration from loaded settings
func FromSettings(s config.RateLimitConfig) *Config {
	allow := make(map[string]bool, len(s.Allowlist))
	for _, ip := range s.Allowlist {
		if ip = strings.TrimSpace(ip); ip != "" {
			allow[ip] = true
		}
	}
	return &Config{
		Enabled:         s.Enabled,
		DefaultLimit:    s.DefaultLimit,
		DefaultWindow:   s.DefaultWindow,
		CleanupInterval: 5 * time.Minute,
		Allowlist:       allow,
		Endpoints:       EstimatorEndpoints(s.EstimateLimit),
	}
}

// EstimatorEndpoints returns the per-route tiers.
// Routes that call generative collaborators share estimateLimit per hour.
func EstimatorEndpoints(estimateLimit int) []EndpointConfig {
	burst := max(1, estimateLimit/10)
	return []EndpointConfig{
		// Tier 1: generative pipeline runs
		{Path: "/estimate", Method: "POST", Limit: estimateLimit, Window: time.Hour, Burst: burst},
		{Path: "/estimate/upload", Method: "POST", Limit: estimateLimit, Window: time.Hour, Burst: burst},
		{Path: "/orders/*/reestimate", Method: "POST", Limit: estimateLimit, Window: time.Hour, Burst: burst},

		// Tier 2: writes and exports
		{Path: "/orders/*/status", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/orders/*/quote.xlsx", Method: "GET", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/price", Method: "POST", Limit: 300, Window: time.Minute, Burst: 30},

		// Tier 3: reads use the default limit; /health is unlimited
	}
}
