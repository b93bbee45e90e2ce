package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/print-estimator/internal/llm"
	"github.com/jonathan/print-estimator/internal/observability"
	"github.com/jonathan/print-estimator/internal/prompts"
	"github.com/jonathan/print-estimator/internal/schemas"
	"github.com/jonathan/print-estimator/internal/types"
	schemafiles "github.com/jonathan/print-estimator/schemas"
	"go.uber.org/zap"
)

// CandidateSource produces an untrusted candidate price for a specification
type CandidateSource interface {
	PriceCandidate(ctx context.Context, spec types.Specification) (types.PriceBreakdown, error)
}

// LLMPricer asks a generative model for a candidate price breakdown.
// Every failure is reported as *UnavailableError.
type LLMPricer struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMPricer creates a candidate source backed by client
func NewLLMPricer(client llm.Client, logger *zap.Logger) *LLMPricer {
	return &LLMPricer{client: client, logger: observability.OrNop(logger)}
}

// PriceCandidate requests, validates and decodes a candidate price
func (p *LLMPricer) PriceCandidate(ctx context.Context, spec types.Specification) (types.PriceBreakdown, error) {
	if p.client == nil {
		return types.PriceBreakdown{}, &UnavailableError{Message: "no generative client configured"}
	}

	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return types.PriceBreakdown{}, &UnavailableError{Message: "failed to encode specification", Cause: err}
	}

	prompt, err := prompts.Render(prompts.PricingFile, "price-candidate", map[string]string{
		"Specification": string(specJSON),
	})
	if err != nil {
		return types.PriceBreakdown{}, &UnavailableError{Message: "failed to load prompt", Cause: err}
	}

	resp, err := p.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return types.PriceBreakdown{}, &UnavailableError{Message: "LLM generation failed", Cause: err}
	}

	candidate, err := DecodeCandidate(resp)
	if err != nil {
		p.logger.Warn("discarding malformed price candidate",
			zap.String("op", "pricing.PriceCandidate"),
			zap.Error(err))
		return types.PriceBreakdown{}, err
	}
	return candidate, nil
}

// DecodeCandidate validates and coerces a candidate price payload
func DecodeCandidate(payload string) (types.PriceBreakdown, error) {
	cleaned := llm.CleanJSONBlock(payload)
	if err := schemas.Validate(schemafiles.PriceCandidate, cleaned); err != nil {
		return types.PriceBreakdown{}, &UnavailableError{Message: "candidate failed schema validation", Cause: err}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()
	var raw struct {
		TotalPrice  any            `json:"total_price"`
		Breakdown   map[string]any `json:"breakdown"`
		Competitors []struct {
			Name  string `json:"name"`
			Price any    `json:"price"`
		} `json:"competitors"`
	}
	if err := dec.Decode(&raw); err != nil {
		return types.PriceBreakdown{}, &UnavailableError{Message: "failed to parse candidate", Cause: err}
	}

	total, ok := parseAmount(raw.TotalPrice)
	if !ok {
		return types.PriceBreakdown{}, &UnavailableError{Message: fmt.Sprintf("total_price %v is not numeric", raw.TotalPrice)}
	}

	component := func(key string) float64 {
		v, _ := parseAmount(raw.Breakdown[key])
		return v
	}

	out := types.PriceBreakdown{
		TotalPrice: total,
		Breakdown: types.Components{
			PaperCost:     component("paper_cost"),
			PrintingCost:  component("printing_cost"),
			SetupCost:     component("setup_cost"),
			FinishingCost: component("finishing_cost"),
			RushFee:       component("rush_fee"),
			Margin:        component("margin"),
		},
		Competitors: make([]types.Competitor, 0, len(raw.Competitors)),
		Source:      types.SourceGenerative,
	}
	for _, c := range raw.Competitors {
		if price, ok := parseAmount(c.Price); ok && price > 0 {
			out.Competitors = append(out.Competitors, types.Competitor{Name: c.Name, Price: price})
		}
	}
	return out, nil
}

// parseAmount coerces a JSON number or currency string such as "₹1,250.00"
func parseAmount(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case string:
		s := strings.NewReplacer("₹", "", "$", "", ",", "", " ", "").Replace(n)
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
