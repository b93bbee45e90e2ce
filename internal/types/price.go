package types

import "math"

// PriceSource records which path produced a price breakdown
type PriceSource string

// PriceSource values
const (
	SourceDeterministic PriceSource = "deterministic"
	SourceGenerative    PriceSource = "generative"
	SourceFallback      PriceSource = "fallback"
)

// Components is the named decomposition of a total price
type Components struct {
	PaperCost     float64 `json:"paper_cost"`
	PrintingCost  float64 `json:"printing_cost"` // variable portion, excludes setup
	SetupCost     float64 `json:"setup_cost"`
	FinishingCost float64 `json:"finishing_cost"`
	RushFee       float64 `json:"rush_fee"`
	Margin        float64 `json:"margin"`
}

// Sum returns the sum of all components
func (c Components) Sum() float64 {
	return c.PaperCost + c.PrintingCost + c.SetupCost + c.FinishingCost + c.RushFee + c.Margin
}

// Competitor is an illustrative competing quote
type Competitor struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// PriceBreakdown is the result of pricing a specification
type PriceBreakdown struct {
	TotalPrice     float64      `json:"total_price"`
	Breakdown      Components   `json:"breakdown"`
	Competitors    []Competitor `json:"competitors"`
	CorrectionNote string       `json:"correction_note,omitempty"`
	Source         PriceSource  `json:"source,omitempty"`
}

// Consistent reports whether the components add up to the total within tolerance
func (p PriceBreakdown) Consistent(tolerance float64) bool {
	return math.Abs(p.Breakdown.Sum()-p.TotalPrice) <= tolerance
}
