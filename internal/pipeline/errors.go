package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Pipeline stages reported by PipelineError
const (
	StageIntake      = "intake"
	StageExtraction  = "extraction"
	StagePricing     = "pricing"
	StageValidation  = "validation"
	StagePersistence = "persistence"
	StageLoad        = "load"
)

// ErrUnsupportedInput is the cause of an intake failure for an unknown input type
var ErrUnsupportedInput = errors.New("unsupported input type")

// PipelineError is the single error returned when an estimation run aborts.
// OrderID is uuid.Nil when no order record was created.
type PipelineError struct {
	Stage   string
	OrderID uuid.UUID
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.OrderID != uuid.Nil {
		return fmt.Sprintf("estimation failed at %s stage for order %s: %v", e.Stage, e.OrderID, e.Cause)
	}
	return fmt.Sprintf("estimation failed at %s stage: %v", e.Stage, e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}
