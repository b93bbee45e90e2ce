package pricing

import "fmt"

// UnavailableError reports that the generative pricing collaborator produced no usable candidate.
// It is always recoverable by falling back to the deterministic model.
type UnavailableError struct {
	Message string
	Cause   error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pricing unavailable: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("pricing unavailable: %s", e.Message)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}
