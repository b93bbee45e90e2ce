package config

import "github.com/jonathan/print-estimator/internal/types"

// Rates holds the deterministic pricing constants (in ₹).
// Values are copied into the pricing model on construction and never mutated.
type Rates struct {
	BasePaperPerSqm  float64 `mapstructure:"base_paper_per_sqm" json:"base_paper_per_sqm"`
	ReferenceGSM     float64 `mapstructure:"reference_gsm" json:"reference_gsm"`
	PhotoPremiumSqm  float64 `mapstructure:"photo_premium_per_sqm" json:"photo_premium_per_sqm"`
	PhotoMinWidthMM  float64 `mapstructure:"photo_min_width_mm" json:"photo_min_width_mm"`
	PhotoMinHeightMM float64 `mapstructure:"photo_min_height_mm" json:"photo_min_height_mm"`
	PhotoMinGSM      int     `mapstructure:"photo_min_gsm" json:"photo_min_gsm"`

	DigitalSetup   float64 `mapstructure:"digital_setup" json:"digital_setup"`
	DigitalPerUnit float64 `mapstructure:"digital_per_unit" json:"digital_per_unit"`
	OffsetSetup    float64 `mapstructure:"offset_setup" json:"offset_setup"`
	OffsetPerUnit  float64 `mapstructure:"offset_per_unit" json:"offset_per_unit"`

	// DoubleSidedMultiplier is below 2.0 to model press efficiency on the second pass
	DoubleSidedMultiplier float64 `mapstructure:"double_sided_multiplier" json:"double_sided_multiplier"`

	LaminatePerUnit float64 `mapstructure:"laminate_per_unit" json:"laminate_per_unit"`
	CutPerUnit      float64 `mapstructure:"cut_per_unit" json:"cut_per_unit"`
	FoldPerUnit     float64 `mapstructure:"fold_per_unit" json:"fold_per_unit"`

	RushOneDay float64 `mapstructure:"rush_one_day" json:"rush_one_day"`
	RushTwoDay float64 `mapstructure:"rush_two_day" json:"rush_two_day"`

	SmallOrderQty    int     `mapstructure:"small_order_qty" json:"small_order_qty"`
	BulkOrderQty     int     `mapstructure:"bulk_order_qty" json:"bulk_order_qty"`
	SmallOrderMargin float64 `mapstructure:"small_order_margin" json:"small_order_margin"`
	BulkOrderMargin  float64 `mapstructure:"bulk_order_margin" json:"bulk_order_margin"`
	DefaultMargin    float64 `mapstructure:"default_margin" json:"default_margin"`

	// FallbackUnitRate is split into FallbackPaperRate and the printing remainder
	FallbackUnitRate  float64 `mapstructure:"fallback_unit_rate" json:"fallback_unit_rate"`
	FallbackPaperRate float64 `mapstructure:"fallback_paper_rate" json:"fallback_paper_rate"`
	FallbackSetup     float64 `mapstructure:"fallback_setup" json:"fallback_setup"`
	FallbackMargin    float64 `mapstructure:"fallback_margin" json:"fallback_margin"`

	PhotoKeywords []string         `mapstructure:"photo_keywords" json:"photo_keywords"`
	Competitors   []CompetitorRate `mapstructure:"competitors" json:"competitors"`
	Fallbacks     []CompetitorRate `mapstructure:"fallback_competitors" json:"fallback_competitors"`
}

// CompetitorRate is an illustrative competitor expressed as a markup over our price
type CompetitorRate struct {
	Name   string  `mapstructure:"name" json:"name"`
	Markup float64 `mapstructure:"markup" json:"markup"`
}

// DefaultRates returns the production pricing constants
func DefaultRates() Rates {
	return Rates{
		BasePaperPerSqm:  2.0,
		ReferenceGSM:     80,
		PhotoPremiumSqm:  1.0,
		PhotoMinWidthMM:  297,
		PhotoMinHeightMM: 420,
		PhotoMinGSM:      200,

		DigitalSetup:   300,
		DigitalPerUnit: 1.5,
		OffsetSetup:    5000,
		OffsetPerUnit:  0.6,

		DoubleSidedMultiplier: 1.6,

		LaminatePerUnit: 0.8,
		CutPerUnit:      0.5,
		FoldPerUnit:     0.3,

		RushOneDay: 0.15,
		RushTwoDay: 0.10,

		SmallOrderQty:    100,
		BulkOrderQty:     1000,
		SmallOrderMargin: 0.22,
		BulkOrderMargin:  0.18,
		DefaultMargin:    0.20,

		FallbackUnitRate:  5.0,
		FallbackPaperRate: 2.0,
		FallbackSetup:     300,
		FallbackMargin:    0.20,

		PhotoKeywords: []string{"photo", "poster", "a3", "a2", "canvas", "premium"},
		Competitors: []CompetitorRate{
			{Name: "PrintMaster Pro", Markup: 0.10},
			{Name: "QuickPrint Solutions", Markup: 0.15},
		},
		Fallbacks: []CompetitorRate{
			{Name: "PrintMaster Pro", Markup: 0.15},
			{Name: "QuickPrint Solutions", Markup: 0.20},
		},
	}
}

// FinishingRate returns the per-unit rate for a finishing option
func (r Rates) FinishingRate(f types.Finishing) float64 {
	switch f {
	case types.FinishingLaminate:
		return r.LaminatePerUnit
	case types.FinishingCut:
		return r.CutPerUnit
	case types.FinishingFold:
		return r.FoldPerUnit
	default:
		return 0
	}
}

// RushPremium returns the rush premium fraction for a turnaround
func (r Rates) RushPremium(days int) float64 {
	switch days {
	case 1:
		return r.RushOneDay
	case 2:
		return r.RushTwoDay
	default:
		return 0
	}
}

// MarginRate returns the margin fraction tiered by order size
func (r Rates) MarginRate(quantity int) float64 {
	switch {
	case quantity < r.SmallOrderQty:
		return r.SmallOrderMargin
	case quantity > r.BulkOrderQty:
		return r.BulkOrderMargin
	default:
		return r.DefaultMargin
	}
}

// Clone returns a deep copy so callers cannot mutate shared slices
func (r Rates) Clone() Rates {
	out := r
	out.PhotoKeywords = append([]string(nil), r.PhotoKeywords...)
	out.Competitors = append([]CompetitorRate(nil), r.Competitors...)
	out.Fallbacks = append([]CompetitorRate(nil), r.Fallbacks...)
	return out
}

// Rules holds the feasibility validator thresholds
type Rules struct {
	MaxQuantity        int     `mapstructure:"max_quantity" json:"max_quantity"`
	MinSideMM          float64 `mapstructure:"min_side_mm" json:"min_side_mm"`
	MaxWidthMM         float64 `mapstructure:"max_width_mm" json:"max_width_mm"`
	MaxHeightMM        float64 `mapstructure:"max_height_mm" json:"max_height_mm"`
	MinGSM             int     `mapstructure:"min_gsm" json:"min_gsm"`
	MaxGSM             int     `mapstructure:"max_gsm" json:"max_gsm"`
	DigitalMaxQuantity int     `mapstructure:"digital_max_quantity" json:"digital_max_quantity"`
	OffsetMinQuantity  int     `mapstructure:"offset_min_quantity" json:"offset_min_quantity"`
	RushMaxQuantity    int     `mapstructure:"rush_max_quantity" json:"rush_max_quantity"`
	LaminateMinGSM     int     `mapstructure:"laminate_min_gsm" json:"laminate_min_gsm"`
	AnomalyBand        float64 `mapstructure:"anomaly_band" json:"anomaly_band"`
	SmallOrderQty      int     `mapstructure:"small_order_qty" json:"small_order_qty"`
	SmallOrderLeniency float64 `mapstructure:"small_order_leniency" json:"small_order_leniency"`
	ArtworkMinQuantity int     `mapstructure:"artwork_min_quantity" json:"artwork_min_quantity"`
}

// DefaultRules returns the production feasibility thresholds
func DefaultRules() Rules {
	return Rules{
		MaxQuantity:        50000,
		MinSideMM:          50,
		MaxWidthMM:         1000,
		MaxHeightMM:        1500,
		MinGSM:             60,
		MaxGSM:             400,
		DigitalMaxQuantity: 5000,
		OffsetMinQuantity:  500,
		RushMaxQuantity:    5000,
		LaminateMinGSM:     100,
		AnomalyBand:        0.50,
		SmallOrderQty:      100,
		SmallOrderLeniency: 3.0,
		ArtworkMinQuantity: 250,
	}
}
