package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Extraction)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.Pricing)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Advisory)
	assert.Equal(t, DefaultRates(), cfg.Rates)
	assert.Equal(t, DefaultRules(), cfg.Rules)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.GenerativeEnabled())
}

func TestLoad_YAMLFile(t *testing.T) {
	content := `
server:
  port: 9090
database:
  url: postgres://localhost/print
logging:
  level: debug
  format: console
timeouts:
  pricing: 5s
rates:
  digital_setup: 350
rules:
  max_quantity: 20000
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/print", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Pricing)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Extraction, "unset keys keep defaults")
	assert.Equal(t, 350.0, cfg.Rates.DigitalSetup)
	assert.Equal(t, 1.5, cfg.Rates.DigitalPerUnit)
	assert.Equal(t, 20000, cfg.Rules.MaxQuantity)
	assert.Equal(t, 400, cfg.Rules.MaxGSM)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PRINT_ESTIMATOR_SERVER_PORT", "7070")
	t.Setenv("PRINT_ESTIMATOR_LLM_API_KEY", "test-key")
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.True(t, cfg.GenerativeEnabled())
}

func TestLoad_GeminiKeyFallback(t *testing.T) {
	t.Setenv("PRINT_ESTIMATOR_LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "empty database", mutate: func(c *Config) { c.Database.URL = " " }, wantErr: "database.url"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeouts.Advisory = 0 }, wantErr: "timeouts.advisory"},
		{name: "zero estimate limit", mutate: func(c *Config) { c.RateLimit.EstimateLimit = 0 }, wantErr: "rate_limit"},
		{name: "disabled rate limit", mutate: func(c *Config) { c.RateLimit = RateLimitConfig{} }},
		{name: "zero reference gsm", mutate: func(c *Config) { c.Rates.ReferenceGSM = 0 }, wantErr: "reference_gsm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRates_Tiers(t *testing.T) {
	r := DefaultRates()

	assert.Equal(t, 0.22, r.MarginRate(99))
	assert.Equal(t, 0.20, r.MarginRate(100))
	assert.Equal(t, 0.20, r.MarginRate(1000))
	assert.Equal(t, 0.18, r.MarginRate(1001))

	assert.Equal(t, 0.15, r.RushPremium(1))
	assert.Equal(t, 0.10, r.RushPremium(2))
	assert.Equal(t, 0.0, r.RushPremium(3))
}

func TestRates_CloneIsDeep(t *testing.T) {
	r := DefaultRates()
	c := r.Clone()
	c.PhotoKeywords[0] = "changed"
	c.Competitors[0].Markup = 9

	assert.Equal(t, "photo", r.PhotoKeywords[0])
	assert.Equal(t, 0.10, r.Competitors[0].Markup)
}
