// Package llm provides centralized LLM configuration and client abstractions.
// Pipeline collaborators depend on the Client interface so every stage can run with
// the model absent or replaced by a test double.
package llm

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for simple tasks: specification extraction, document transcription
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning: candidate pricing, advisory validation
	TierStandard ModelTier = "standard"
	// TierAdvanced is reserved for tasks that need deeper reasoning
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// Config holds the model configuration for the application
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: 0.1,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := c.clone()
	out.Models[tier] = model
	return out
}

// WithAllModels returns a new Config that uses model for every tier.
// An empty model returns an unchanged copy.
func (c *Config) WithAllModels(model string) *Config {
	out := c.clone()
	if model == "" {
		return out
	}
	for _, tier := range []ModelTier{TierLite, TierStandard, TierAdvanced} {
		out.Models[tier] = model
	}
	return out
}

func (c *Config) clone() *Config {
	out := &Config{
		Provider:    c.Provider,
		Models:      make(map[ModelTier]string, len(c.Models)),
		Temperature: c.Temperature,
	}
	for k, v := range c.Models {
		out.Models[k] = v
	}
	return out
}
