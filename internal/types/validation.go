package types

import (
	"fmt"
	"sort"
	"strings"
)

// Flag identifies one specific feasibility or pricing concern
type Flag string

// Known flag tokens
const (
	FlagMissingQty        Flag = "missing_qty"
	FlagInvalidSize       Flag = "invalid_size"
	FlagMaterialMismatch  Flag = "material_mismatch"
	FlagRushConflict      Flag = "rush_conflict"
	FlagFinishingConflict Flag = "finishing_conflict"
	FlagPriceAnomaly      Flag = "price_anomaly"
	FlagLowResArt         Flag = "low_res_art"
)

// flagMessages maps flags to user-facing descriptions
var flagMessages = map[Flag]string{
	FlagMissingQty:        "Quantity appears unusual or missing",
	FlagLowResArt:         "Artwork may be low resolution or missing",
	FlagInvalidSize:       "Dimensions are non-standard",
	FlagRushConflict:      "Turnaround time may not be feasible",
	FlagPriceAnomaly:      "Pricing appears unusual",
	FlagMaterialMismatch:  "Material specifications may not be compatible",
	FlagFinishingConflict: "Finishing option may not be feasible",
}

// Message returns the user-facing description of a flag
func (f Flag) Message() string {
	if msg, ok := flagMessages[f]; ok {
		return msg
	}
	return string(f)
}

// Known reports whether f is one of the rule-based flag tokens
func (f Flag) Known() bool {
	_, ok := flagMessages[f]
	return ok
}

// ValidationResult is the outcome of the feasibility check
type ValidationResult struct {
	IsValid  bool   `json:"is_valid"`
	Flags    []Flag `json:"flags"`
	Advisory []Flag `json:"advisory,omitempty"` // flags contributed only by the advisory pass
}

// NewValidationResult builds a result from flags, deduplicating and sorting them.
// IsValid is derived from the flag set and cannot be set independently.
func NewValidationResult(flags ...Flag) ValidationResult {
	deduped := dedupFlags(flags)
	return ValidationResult{
		IsValid: len(deduped) == 0,
		Flags:   deduped,
	}
}

// Has reports whether the result contains flag f
func (r ValidationResult) Has(f Flag) bool {
	for _, flag := range r.Flags {
		if flag == f {
			return true
		}
	}
	return false
}

// Summary returns a human-readable summary of the result
func (r ValidationResult) Summary() string {
	if len(r.Flags) == 0 {
		return "Order validation passed. No issues detected."
	}

	var sb strings.Builder
	sb.WriteString("Order validation failed. Issues detected:")
	for _, flag := range r.Flags {
		sb.WriteString(fmt.Sprintf("\n- %s", flag.Message()))
	}
	return sb.String()
}

// dedupFlags normalizes, deduplicates and sorts flags
func dedupFlags(flags []Flag) []Flag {
	seen := make(map[Flag]bool, len(flags))
	out := make([]Flag, 0, len(flags))
	for _, f := range flags {
		f = Flag(strings.ToLower(strings.TrimSpace(string(f))))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
