package ratelimit

import (
	"testing"
	"time"

	"github.com/jonathan/print-estimator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	cfg.CleanupInterval = 0
	l := NewLimiter(cfg)
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l.now = clock.now
	return l, clock
}

func TestLimiter_EstimateBurstThenRefill(t *testing.T) {
	cfg := FromSettings(config.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EstimateLimit: 60,
	})
	l, clock := newTestLimiter(cfg)
	defer l.Stop()

	// Burst is 60/10 = 6
	for i := 0; i < 6; i++ {
		ok, info := l.Allow("10.0.0.1", "/estimate", "POST")
		require.True(t, ok, "request %d", i)
		assert.Equal(t, 60, info.Limit)
	}

	ok, info := l.Allow("10.0.0.1", "/estimate", "POST")
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)
	assert.InDelta(t, time.Minute.Seconds(), info.RetryAfter.Seconds(), 0.01)

	// Other clients have their own bucket
	ok, _ = l.Allow("10.0.0.2", "/estimate", "POST")
	assert.True(t, ok)

	clock.advance(61 * time.Second)
	ok, _ = l.Allow("10.0.0.1", "/estimate", "POST")
	assert.True(t, ok)
}

func TestLimiter_WildcardRoutesShareBucket(t *testing.T) {
	cfg := FromSettings(config.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EstimateLimit: 10,
	})
	l, _ := newTestLimiter(cfg)
	defer l.Stop()

	// Burst is max(1, 10/10) = 1
	ok, _ := l.Allow("c", "/orders/aaa/reestimate", "POST")
	assert.True(t, ok)
	ok, _ = l.Allow("c", "/orders/bbb/reestimate", "POST")
	assert.False(t, ok)
}

func TestLimiter_DisabledAndAllowlist(t *testing.T) {
	l, _ := newTestLimiter(FromSettings(config.RateLimitConfig{}))
	defer l.Stop()
	for i := 0; i < 100; i++ {
		ok, info := l.Allow("c", "/estimate", "POST")
		require.True(t, ok)
		assert.True(t, info.Allowed)
	}

	cfg := FromSettings(config.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		EstimateLimit: 1,
		Allowlist:     []string{" 127.0.0.1 ", ""},
	})
	l2, _ := newTestLimiter(cfg)
	defer l2.Stop()
	for i := 0; i < 10; i++ {
		ok, _ := l2.Allow("127.0.0.1", "/estimate", "POST")
		require.True(t, ok)
	}
	assert.Len(t, cfg.Allowlist, 1)
}

func TestLimiter_HealthUnlimited(t *testing.T) {
	cfg := FromSettings(config.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		EstimateLimit: 1,
	})
	l, _ := newTestLimiter(cfg)
	defer l.Stop()
	for i := 0; i < 20; i++ {
		ok, _ := l.Allow("c", "/health", "GET")
		require.True(t, ok)
	}
}

func TestLimiter_DefaultLimitForUnmatchedRoutes(t *testing.T) {
	cfg := FromSettings(config.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  2,
		DefaultWindow: time.Minute,
		EstimateLimit: 60,
	})
	l, _ := newTestLimiter(cfg)
	defer l.Stop()

	ok, info := l.Allow("c", "/orders/abc", "GET")
	assert.True(t, ok)
	assert.Equal(t, 2, info.Limit)
	ok, _ = l.Allow("c", "/orders/abc", "GET")
	assert.True(t, ok)
	ok, _ = l.Allow("c", "/orders/abc", "GET")
	assert.False(t, ok)
}

func TestLimiter_DropIdle(t *testing.T) {
	l, clock := newTestLimiter(FromSettings(config.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  5,
		DefaultWindow: time.Minute,
		EstimateLimit: 5,
	}))
	defer l.Stop()

	l.Allow("a", "/estimate", "POST")
	clock.advance(30 * time.Minute)
	l.Allow("b", "/estimate", "POST")
	clock.advance(45 * time.Minute)
	l.dropIdle()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.buckets, 1)
	_, ok := l.buckets["b|POST|/estimate"]
	assert.True(t, ok)
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	cfg := Default()
	l := NewLimiter(cfg)
	l.Stop()
	assert.NotPanics(t, l.Stop)
}

func TestMatchEndpoint(t *testing.T) {
	endpoints := EstimatorEndpoints(60)
	tests := []struct {
		name     string
		path     string
		method   string
		wantPath string
	}{
		{"exact estimate", "/estimate", "POST", "/estimate"},
		{"exact upload", "/estimate/upload", "POST", "/estimate/upload"},
		{"wildcard reestimate", "/orders/123/reestimate", "POST", "/orders/*/reestimate"},
		{"wildcard status", "/orders/123/status", "POST", "/orders/*/status"},
		{"wildcard quote", "/orders/123/quote.xlsx", "GET", "/orders/*/quote.xlsx"},
		{"health", "/health", "GET", "/health"},
		{"method mismatch", "/estimate", "GET", ""},
		{"order read", "/orders/123", "GET", ""},
		{"empty segment", "/orders//status", "POST", ""},
		{"too deep", "/orders/1/2/status", "POST", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, endpoints)
			if tt.wantPath == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantPath, got.Path)
		})
	}
}

func TestMatchPattern_Prefix(t *testing.T) {
	assert.True(t, matchPattern("/orders/", "/orders/abc/status"))
	assert.False(t, matchPattern("/orders/", "/order"))
	assert.False(t, matchPattern("/estimate", "/estimate/upload"))
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.Default().RateLimit)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1000, cfg.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.DefaultWindow)
	require.NotEmpty(t, cfg.Endpoints)
	assert.Equal(t, 60, cfg.Endpoints[0].Limit)
	assert.Equal(t, time.Hour, cfg.Endpoints[0].Window)
}
