package validation

import (
	"math"

	"github.com/jonathan/print-estimator/internal/config"
	"github.com/jonathan/print-estimator/internal/types"
)

// Pricer produces the authoritative price used by the anomaly check
type Pricer interface {
	Price(spec types.Specification) types.PriceBreakdown
}

// Validator runs the rule-based feasibility checks.
// It holds only immutable configuration and is safe for concurrent use.
type Validator struct {
	rules config.Rules
	model Pricer
}

// NewValidator creates a validator with the given thresholds
func NewValidator(rules config.Rules, model Pricer) *Validator {
	return &Validator{rules: rules, model: model}
}

// Rules returns the thresholds in use
func (v *Validator) Rules() config.Rules {
	return v.rules
}

// Validate evaluates every rule against spec and price
func (v *Validator) Validate(spec types.Specification, price types.PriceBreakdown) types.ValidationResult {
	var flags []types.Flag
	add := func(flag types.Flag, hit bool) {
		if hit {
			flags = append(flags, flag)
		}
	}

	add(types.FlagMissingQty, v.quantityOutOfRange(spec))
	add(types.FlagInvalidSize, v.sizeOutOfRange(spec))
	add(types.FlagMaterialMismatch, v.materialMismatch(spec))
	add(types.FlagRushConflict, v.rushConflict(spec))
	add(types.FlagFinishingConflict, v.finishingConflict(spec))
	add(types.FlagPriceAnomaly, v.priceAnomaly(spec, price))
	add(types.FlagLowResArt, v.missingArtwork(spec))

	return types.NewValidationResult(flags...)
}

func (v *Validator) quantityOutOfRange(spec types.Specification) bool {
	return spec.Quantity <= 0 || spec.Quantity > v.rules.MaxQuantity
}

func (v *Validator) sizeOutOfRange(spec types.Specification) bool {
	if math.IsNaN(spec.WidthMM) || math.IsNaN(spec.HeightMM) {
		return true
	}
	if spec.WidthMM < v.rules.MinSideMM || spec.HeightMM < v.rules.MinSideMM {
		return true
	}
	return spec.WidthMM > v.rules.MaxWidthMM || spec.HeightMM > v.rules.MaxHeightMM
}

// materialMismatch covers stock weight and each press method's efficient quantity range
func (v *Validator) materialMismatch(spec types.Specification) bool {
	if spec.MaterialGSM < v.rules.MinGSM || spec.MaterialGSM > v.rules.MaxGSM {
		return true
	}
	switch spec.PrintMethod {
	case types.PrintMethodDigital:
		return spec.Quantity > v.rules.DigitalMaxQuantity
	case types.PrintMethodOffset:
		return spec.Quantity < v.rules.OffsetMinQuantity
	}
	return false
}

func (v *Validator) rushConflict(spec types.Specification) bool {
	if spec.TurnaroundDays < 1 {
		return true
	}
	return spec.TurnaroundDays < 2 && spec.Quantity > v.rules.RushMaxQuantity
}

func (v *Validator) finishingConflict(spec types.Specification) bool {
	return spec.Finishing == types.FinishingLaminate && spec.MaterialGSM < v.rules.LaminateMinGSM
}

// priceAnomaly compares price against an independent computation from spec.
// Small orders may run up to SmallOrderLeniency times the expected price.
func (v *Validator) priceAnomaly(spec types.Specification, price types.PriceBreakdown) bool {
	total := price.TotalPrice
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return true
	}
	if v.model == nil {
		return false
	}

	expected := v.model.Price(spec).TotalPrice
	lower := expected * (1 - v.rules.AnomalyBand)
	upper := expected * (1 + v.rules.AnomalyBand)
	if total >= lower && total <= upper {
		return false
	}

	if spec.Quantity < v.rules.SmallOrderQty && total < expected*v.rules.SmallOrderLeniency {
		return false
	}
	return true
}

func (v *Validator) missingArtwork(spec types.Specification) bool {
	return !spec.HasArtwork() && spec.Quantity >= v.rules.ArtworkMinQuantity
}
