package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/jonathan/print-estimator/internal/llm"
	"github.com/jonathan/print-estimator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLLMClient is a mock implementation of llm.Client for testing
type MockLLMClient struct {
	GenerateContentFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	GenerateJSONFunc    func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, prompt, tier)
	}
	return "", nil
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, tier)
	}
	return "{}", nil
}

func (m *MockLLMClient) GetModel(_ llm.ModelTier) string {
	return "mock-model"
}

func (m *MockLLMClient) Close() error {
	return nil
}

func TestLLMPricer_Success(t *testing.T) {
	var gotPrompt string
	var gotTier llm.ModelTier
	client := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			gotPrompt, gotTier = prompt, tier
			return "```json\n" + `{
				"total_price": 1450.25,
				"breakdown": {"paper_cost": "78", "printing_cost": 600, "setup_cost": 300, "finishing_cost": 200, "rush_fee": 0, "margin": 272.25},
				"competitors": [{"name": "PrintMaster Pro", "price": "₹1,595.28"}, {"name": "Ghost", "price": 0}]
			}` + "\n```", nil
		},
	}

	p, err := NewLLMPricer(client, nil).PriceCandidate(context.Background(), a4Flyers())
	require.NoError(t, err)

	assert.Equal(t, llm.TierStandard, gotTier)
	assert.Contains(t, gotPrompt, `"quantity": 250`)
	assert.NotContains(t, gotPrompt, "{{.Specification}}")

	assert.Equal(t, types.SourceGenerative, p.Source)
	assert.InDelta(t, 1450.25, p.TotalPrice, 0.001)
	assert.InDelta(t, 78.0, p.Breakdown.PaperCost, 0.001)
	assert.InDelta(t, 272.25, p.Breakdown.Margin, 0.001)
	require.Len(t, p.Competitors, 1, "non-positive competitor prices are dropped")
	assert.InDelta(t, 1595.28, p.Competitors[0].Price, 0.001)
}

func TestLLMPricer_Failures(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
	}{
		{name: "transport error", err: errors.New("503 service unavailable")},
		{name: "missing total", response: `{"breakdown": {"paper_cost": 5}}`},
		{name: "non numeric total", response: `{"total_price": "call us"}`},
		{name: "not json", response: "I cannot price this order."},
		{name: "array", response: `[{"total_price": 5}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockLLMClient{
				GenerateJSONFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
					return tt.response, tt.err
				},
			}

			_, err := NewLLMPricer(client, nil).PriceCandidate(context.Background(), a4Flyers())
			require.Error(t, err)

			var unavailable *UnavailableError
			assert.True(t, errors.As(err, &unavailable), "expected UnavailableError, got %T", err)
		})
	}
}

func TestLLMPricer_ContextCanceled(t *testing.T) {
	client := &MockLLMClient{
		GenerateJSONFunc: func(ctx context.Context, _ string, _ llm.ModelTier) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLLMPricer(client, nil).PriceCandidate(ctx, a4Flyers())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLLMPricer_NilClient(t *testing.T) {
	_, err := NewLLMPricer(nil, nil).PriceCandidate(context.Background(), a4Flyers())
	var unavailable *UnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestParseAmount(t *testing.T) {
	v, ok := parseAmount("$ 1,200.50")
	assert.True(t, ok)
	assert.InDelta(t, 1200.5, v, 0.001)

	_, ok = parseAmount(nil)
	assert.False(t, ok)

	_, ok = parseAmount(true)
	assert.False(t, ok)
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("timeout")
	err := &UnavailableError{Message: "LLM generation failed", Cause: cause}

	assert.Equal(t, "pricing unavailable: LLM generation failed: timeout", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "pricing unavailable: no client", (&UnavailableError{Message: "no client"}).Error())
}
