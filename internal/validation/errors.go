// Package validation checks print specifications and prices for feasibility.
package validation

import "fmt"

// AdvisoryError represents a malformed or failed advisory response.
// The orchestrator discards advisory flags when it sees one.
type AdvisoryError struct {
	Message string
	Cause   error
}

func (e *AdvisoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("advisory validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("advisory validation error: %s", e.Message)
}

func (e *AdvisoryError) Unwrap() error {
	return e.Cause
}
