// Package config provides configuration loading and validation for the estimator.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. PRINT_ESTIMATOR_SERVER_PORT.
const EnvPrefix = "PRINT_ESTIMATOR"

// Config holds all configuration for the estimator service and CLI.
// Every section is optional in the file; missing values use defaults.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Rates     Rates           `mapstructure:"rates"`
	Rules     Rules           `mapstructure:"rules"`
}

// ServerConfig holds HTTP server options
type ServerConfig struct {
	Port          int   `mapstructure:"port"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"` // bytes
}

// DatabaseConfig holds the store connection URL.
// postgres:// selects the pgx store, sqlite: or file: selects SQLite.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LLMConfig holds generative model options
type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"` // overrides every tier when set
	Enabled bool   `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputFile string `mapstructure:"output_file"` // optional file output
}

// TimeoutConfig bounds each generative collaborator call
type TimeoutConfig struct {
	Extraction time.Duration `mapstructure:"extraction"`
	Pricing    time.Duration `mapstructure:"pricing"`
	Advisory   time.Duration `mapstructure:"advisory"`
	Webhook    time.Duration `mapstructure:"webhook"`
}

// WebhookConfig holds the default notification target
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// RateLimitConfig holds per-client request limits.
// Estimation endpoints use EstimateLimit per hour; everything else DefaultLimit per DefaultWindow.
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DefaultLimit  int           `mapstructure:"default_limit"`
	DefaultWindow time.Duration `mapstructure:"default_window"`
	EstimateLimit int           `mapstructure:"estimate_limit"`
	Allowlist     []string      `mapstructure:"allowlist"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:          8080,
			MaxUploadSize: 10 << 20,
		},
		Database: DatabaseConfig{URL: "sqlite:print_estimator.db"},
		LLM:      LLMConfig{Enabled: true},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Timeouts: TimeoutConfig{
			Extraction: 30 * time.Second,
			Pricing:    20 * time.Second,
			Advisory:   15 * time.Second,
			Webhook:    5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			DefaultLimit:  1000,
			DefaultWindow: time.Minute,
			EstimateLimit: 60,
		},
		Rates: DefaultRates(),
		Rules: DefaultRules(),
	}
}

// Load reads configuration from an optional file and applies environment overrides.
// An empty path skips the file. GEMINI_API_KEY and DATABASE_URL are honored when the
// prefixed variables are unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	registerDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if os.Getenv(EnvPrefix+"_DATABASE_URL") == "" && !v.InConfig("database.url") {
		if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
			cfg.Database.URL = dsn
		}
	}

	return &cfg, nil
}

// registerDefaults makes scalar keys visible to AutomaticEnv
func registerDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_upload_size", d.Server.MaxUploadSize)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.enabled", d.LLM.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_file", d.Logging.OutputFile)
	v.SetDefault("timeouts.extraction", d.Timeouts.Extraction)
	v.SetDefault("timeouts.pricing", d.Timeouts.Pricing)
	v.SetDefault("timeouts.advisory", d.Timeouts.Advisory)
	v.SetDefault("timeouts.webhook", d.Timeouts.Webhook)
	v.SetDefault("webhook.url", d.Webhook.URL)
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.default_limit", d.RateLimit.DefaultLimit)
	v.SetDefault("rate_limit.default_window", d.RateLimit.DefaultWindow)
	v.SetDefault("rate_limit.estimate_limit", d.RateLimit.EstimateLimit)
}

// Validate checks that the configuration has usable values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' must be between 1 and 65535")
	}
	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("config error: 'server.max_upload_size' must be positive")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("config error: 'database.url' is required")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config error: invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config error: invalid log format: %s", c.Logging.Format)
	}

	for name, d := range map[string]time.Duration{
		"extraction": c.Timeouts.Extraction,
		"pricing":    c.Timeouts.Pricing,
		"advisory":   c.Timeouts.Advisory,
		"webhook":    c.Timeouts.Webhook,
	} {
		if d <= 0 {
			return fmt.Errorf("config error: 'timeouts.%s' must be positive", name)
		}
	}

	if c.RateLimit.Enabled && (c.RateLimit.DefaultLimit <= 0 || c.RateLimit.EstimateLimit <= 0 || c.RateLimit.DefaultWindow <= 0) {
		return fmt.Errorf("config error: 'rate_limit' limits and window must be positive when enabled")
	}

	if c.Rates.ReferenceGSM <= 0 {
		return fmt.Errorf("config error: 'rates.reference_gsm' must be positive")
	}
	if c.Rules.AnomalyBand <= 0 {
		return fmt.Errorf("config error: 'rules.anomaly_band' must be positive")
	}

	return nil
}

// GenerativeEnabled reports whether the generative collaborators can be constructed
func (c *Config) GenerativeEnabled() bool {
	return c.LLM.Enabled && c.LLM.APIKey != ""
}
