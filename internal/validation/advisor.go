package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/print-estimator/internal/llm"
	"github.com/jonathan/print-estimator/internal/observability"
	"github.com/jonathan/print-estimator/internal/prompts"
	"github.com/jonathan/print-estimator/internal/schemas"
	"github.com/jonathan/print-estimator/internal/types"
	schemafiles "github.com/jonathan/print-estimator/schemas"
	"go.uber.org/zap"
)

// Advice is the response of a generative validation pass
type Advice struct {
	Valid bool         `json:"valid"`
	Flags []types.Flag `json:"flags"`
}

// Advisor suggests additional issue flags for an order
type Advisor interface {
	Advise(ctx context.Context, spec types.Specification, price types.PriceBreakdown) (Advice, error)
}

// LLMAdvisor asks a generative model to review an order
type LLMAdvisor struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMAdvisor creates an advisor backed by client
func NewLLMAdvisor(client llm.Client, logger *zap.Logger) *LLMAdvisor {
	return &LLMAdvisor{client: client, logger: observability.OrNop(logger)}
}

// Advise returns the model's advice. Malformed output is an *AdvisoryError.
func (a *LLMAdvisor) Advise(ctx context.Context, spec types.Specification, price types.PriceBreakdown) (Advice, error) {
	if a.client == nil {
		return Advice{}, &AdvisoryError{Message: "no generative client configured"}
	}

	prompt, err := prompts.Render(prompts.ValidationFile, "advise-order", map[string]string{
		"Order": FormatOrder(spec, price),
	})
	if err != nil {
		return Advice{}, &AdvisoryError{Message: "failed to load prompt", Cause: err}
	}

	resp, err := a.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return Advice{}, &AdvisoryError{Message: "LLM generation failed", Cause: err}
	}

	advice, err := DecodeAdvice(resp)
	if err != nil {
		return Advice{}, err
	}

	a.logger.Debug("advisory validation completed",
		zap.String("op", "validation.Advise"),
		zap.Bool("valid", advice.Valid),
		zap.Int("flags", len(advice.Flags)))
	return advice, nil
}

// DecodeAdvice validates and decodes an advisory payload
func DecodeAdvice(payload string) (Advice, error) {
	cleaned := llm.CleanJSONBlock(payload)
	if err := schemas.Validate(schemafiles.Advice, cleaned); err != nil {
		return Advice{}, &AdvisoryError{Message: "response failed schema validation", Cause: err}
	}

	var advice Advice
	if err := json.Unmarshal([]byte(cleaned), &advice); err != nil {
		return Advice{}, &AdvisoryError{Message: "failed to parse advisory response", Cause: err}
	}
	if advice.Flags == nil {
		advice.Flags = []types.Flag{}
	}
	return advice, nil
}

// FormatOrder renders a specification and price as readable text for review prompts
func FormatOrder(spec types.Specification, price types.PriceBreakdown) string {
	artwork := "Not provided"
	if spec.HasArtwork() {
		artwork = "Provided"
	}

	var sb strings.Builder
	sb.WriteString("SPECIFICATIONS:\n")
	fmt.Fprintf(&sb, "- Quantity: %d\n", spec.Quantity)
	fmt.Fprintf(&sb, "- Dimensions: %gmm x %gmm\n", spec.WidthMM, spec.HeightMM)
	fmt.Fprintf(&sb, "- Paper: %dgsm\n", spec.MaterialGSM)
	fmt.Fprintf(&sb, "- Sides: %s\n", spec.Sides)
	fmt.Fprintf(&sb, "- Finishing: %s\n", spec.Finishing)
	fmt.Fprintf(&sb, "- Print Method: %s\n", spec.PrintMethod)
	fmt.Fprintf(&sb, "- Turnaround: %d days\n", spec.TurnaroundDays)
	fmt.Fprintf(&sb, "- Artwork: %s\n\n", artwork)

	b := price.Breakdown
	sb.WriteString("PRICING:\n")
	fmt.Fprintf(&sb, "- Total Price: Rs. %.2f\n", price.TotalPrice)
	fmt.Fprintf(&sb, "- Paper Cost: Rs. %.2f\n", b.PaperCost)
	fmt.Fprintf(&sb, "- Printing Cost: Rs. %.2f\n", b.PrintingCost)
	fmt.Fprintf(&sb, "- Setup Cost: Rs. %.2f\n", b.SetupCost)
	fmt.Fprintf(&sb, "- Finishing Cost: Rs. %.2f\n", b.FinishingCost)
	fmt.Fprintf(&sb, "- Rush Fee: Rs. %.2f", b.RushFee)
	return sb.String()
}
