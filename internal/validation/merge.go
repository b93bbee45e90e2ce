package validation

import "github.com/jonathan/print-estimator/internal/types"

// Merge unions advisory flags into a rule-based result.
// Rule flags are never removed. Flags only the advisory pass raised are
// listed in Advisory, including tokens the rules do not know.
func Merge(rule types.ValidationResult, advisory []types.Flag) types.ValidationResult {
	all := make([]types.Flag, 0, len(rule.Flags)+len(advisory))
	all = append(all, rule.Flags...)
	all = append(all, advisory...)
	merged := types.NewValidationResult(all...)

	for _, f := range types.NewValidationResult(advisory...).Flags {
		if !rule.Has(f) {
			merged.Advisory = append(merged.Advisory, f)
		}
	}
	return merged
}
