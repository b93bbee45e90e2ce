// Package reconcile decides whether an untrusted candidate price is kept or
// replaced by the deterministic pricing model.
package reconcile

import (
	"fmt"
	"math"

	"github.com/jonathan/print-estimator/internal/types"
)

// DeviationThreshold is the largest relative deviation a candidate may have and still be accepted
const DeviationThreshold = 0.30

// Pricer produces the authoritative price for a specification
type Pricer interface {
	Price(spec types.Specification) types.PriceBreakdown
}

// Decision is the outcome of reconciling one candidate
type Decision struct {
	Price         types.PriceBreakdown // the price to use
	Accepted      bool                 // candidate kept as-is
	Deviation     float64              // |candidate - authoritative| / authoritative, +Inf when undefined
	Authoritative types.PriceBreakdown
}

// Engine applies a binary accept/reject rule. It never blends prices.
type Engine struct {
	model     Pricer
	threshold float64
}

// NewEngine creates an engine. A non-positive threshold selects DeviationThreshold.
func NewEngine(model Pricer, threshold float64) *Engine {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DeviationThreshold
	}
	return &Engine{model: model, threshold: threshold}
}

// Threshold returns the deviation limit in use
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Reconcile compares candidate against the authoritative price for spec
func (e *Engine) Reconcile(candidate types.PriceBreakdown, spec types.Specification) Decision {
	authoritative := e.model.Price(spec)
	deviation := Deviation(candidate.TotalPrice, authoritative.TotalPrice)

	if deviation > e.threshold || math.IsInf(deviation, 0) {
		corrected := authoritative
		corrected.CorrectionNote = fmt.Sprintf("generative pricing corrected (was %.2f)", candidate.TotalPrice)
		return Decision{
			Price:         corrected,
			Accepted:      false,
			Deviation:     deviation,
			Authoritative: authoritative,
		}
	}

	accepted := candidate
	if accepted.Source == "" {
		accepted.Source = types.SourceGenerative
	}
	return Decision{
		Price:         accepted,
		Accepted:      true,
		Deviation:     deviation,
		Authoritative: authoritative,
	}
}

// Unavailable returns the authoritative price when no candidate could be obtained.
// No candidate was rejected, so the price carries no correction note; its
// Source already says the rule-based model produced it.
func (e *Engine) Unavailable(spec types.Specification) Decision {
	authoritative := e.model.Price(spec)
	return Decision{
		Price:         authoritative,
		Accepted:      false,
		Deviation:     math.Inf(1),
		Authoritative: authoritative,
	}
}

// Deviation returns the relative deviation of candidate from authoritative.
// A zero, negative or non-finite authoritative total, or a non-finite or
// negative candidate, yields +Inf so the candidate is always rejected.
func Deviation(candidate, authoritative float64) float64 {
	if authoritative <= 0 || math.IsNaN(authoritative) || math.IsInf(authoritative, 0) {
		return math.Inf(1)
	}
	if candidate < 0 || math.IsNaN(candidate) || math.IsInf(candidate, 0) {
		return math.Inf(1)
	}
	return math.Abs(candidate-authoritative) / authoritative
}
