// Package pricing provides the deterministic print pricing model and the
// generative pricing collaborator whose candidates are reconciled against it.
package pricing

import (
	"math"
	"strings"

	"github.com/jonathan/print-estimator/internal/config"
	"github.com/jonathan/print-estimator/internal/observability"
	"github.com/jonathan/print-estimator/internal/types"
	"go.uber.org/zap"
)

// sqmPerSqmm converts mm² to m²
const sqmPerSqmm = 1.0 / 1_000_000

// Model is the deterministic pricing model. It is safe for concurrent use.
type Model struct {
	rates  config.Rates
	logger *zap.Logger
}

// NewModel creates a pricing model over a private copy of rates
func NewModel(rates config.Rates, logger *zap.Logger) *Model {
	return &Model{
		rates:  rates.Clone(),
		logger: observability.OrNop(logger),
	}
}

// Rates returns a copy of the model's pricing constants
func (m *Model) Rates() config.Rates {
	return m.rates.Clone()
}

// Price computes the authoritative price breakdown for spec.
// It never fails: unusable input degrades to the flat-rate fallback.
func (m *Model) Price(spec types.Specification) (result types.PriceBreakdown) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("pricing calculation panicked, using fallback",
				zap.String("op", "pricing.Price"),
				zap.Any("panic", r))
			result = m.Fallback(spec.Quantity)
		}
	}()

	if !priceable(spec) {
		m.logger.Warn("specification not priceable, using fallback",
			zap.String("op", "pricing.Price"),
			zap.Int("quantity", spec.Quantity),
			zap.Float64("width_mm", spec.WidthMM),
			zap.Float64("height_mm", spec.HeightMM),
			zap.Int("material_gsm", spec.MaterialGSM))
		return m.Fallback(spec.Quantity)
	}

	qty := float64(spec.Quantity)
	area := spec.WidthMM * spec.HeightMM * sqmPerSqmm

	paper := m.paperCost(spec, area, qty)
	setup, unitRate := m.pressRates(spec.PrintMethod)
	sides := 1.0
	if spec.Sides == types.SidesDouble {
		sides = m.rates.DoubleSidedMultiplier
	}
	printing := qty * unitRate * sides
	finishing := qty * m.rates.FinishingRate(spec.Finishing)

	subtotal := paper + setup + printing + finishing
	rush := subtotal * m.rates.RushPremium(spec.TurnaroundDays)
	margin := (subtotal + rush) * m.rates.MarginRate(spec.Quantity)

	breakdown := types.Components{
		PaperCost:     round2(paper),
		PrintingCost:  round2(printing),
		SetupCost:     round2(setup),
		FinishingCost: round2(finishing),
		RushFee:       round2(rush),
	}
	total := round2(subtotal + rush + margin)
	// Margin absorbs the rounding residual so the components add up to the total.
	breakdown.Margin = round2(total - breakdown.Sum())

	m.logger.Debug("calculated price",
		zap.String("op", "pricing.Price"),
		zap.Int("quantity", spec.Quantity),
		zap.Float64("unrounded_total", subtotal+rush+margin),
		zap.Float64("total", total))

	return types.PriceBreakdown{
		TotalPrice:  total,
		Breakdown:   breakdown,
		Competitors: m.competitors(total, m.rates.Competitors),
		Source:      types.SourceDeterministic,
	}
}

// Fallback returns the flat-rate breakdown used when a specification cannot be priced
func (m *Model) Fallback(quantity int) types.PriceBreakdown {
	qty := float64(max(quantity, 0))
	base := qty*m.rates.FallbackUnitRate + m.rates.FallbackSetup

	breakdown := types.Components{
		PaperCost:    round2(qty * m.rates.FallbackPaperRate),
		PrintingCost: round2(qty * (m.rates.FallbackUnitRate - m.rates.FallbackPaperRate)),
		SetupCost:    round2(m.rates.FallbackSetup),
	}
	total := round2(base * (1 + m.rates.FallbackMargin))
	breakdown.Margin = round2(total - breakdown.Sum())

	return types.PriceBreakdown{
		TotalPrice:  total,
		Breakdown:   breakdown,
		Competitors: m.competitors(base, m.rates.Fallbacks),
		Source:      types.SourceFallback,
	}
}

// IsPhotoPaper reports whether the photo-paper premium applies to spec
func (m *Model) IsPhotoPaper(spec types.Specification) bool {
	large := spec.WidthMM >= m.rates.PhotoMinWidthMM || spec.HeightMM >= m.rates.PhotoMinHeightMM
	if !large {
		return false
	}
	if spec.MaterialGSM >= m.rates.PhotoMinGSM {
		return true
	}

	text := strings.Join(spec.TextValues(), " ")
	for _, kw := range m.rates.PhotoKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (m *Model) paperCost(spec types.Specification, area, qty float64) float64 {
	cost := area * qty * m.rates.BasePaperPerSqm * (float64(spec.MaterialGSM) / m.rates.ReferenceGSM)
	if m.IsPhotoPaper(spec) {
		cost += area * qty * m.rates.PhotoPremiumSqm
	}
	return cost
}

// pressRates returns setup cost and per-unit rate for a print method
func (m *Model) pressRates(method types.PrintMethod) (float64, float64) {
	if method == types.PrintMethodOffset {
		return m.rates.OffsetSetup, m.rates.OffsetPerUnit
	}
	return m.rates.DigitalSetup, m.rates.DigitalPerUnit
}

func (m *Model) competitors(base float64, rates []config.CompetitorRate) []types.Competitor {
	out := make([]types.Competitor, 0, len(rates))
	for _, c := range rates {
		out = append(out, types.Competitor{Name: c.Name, Price: round2(base * (1 + c.Markup))})
	}
	return out
}

// priceable reports whether every numeric input is finite and positive
func priceable(spec types.Specification) bool {
	return spec.Quantity > 0 &&
		spec.MaterialGSM > 0 &&
		positive(spec.WidthMM) &&
		positive(spec.HeightMM)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// round2 rounds to currency precision
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
