package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// OrderStatus values
const (
	StatusPending    OrderStatus = "pending"
	StatusEstimated  OrderStatus = "estimated"
	StatusReview     OrderStatus = "review"
	StatusApproved   OrderStatus = "approved"
	StatusRejected   OrderStatus = "rejected"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
)

// Audit actions recorded over an order's history
const (
	AuditOrderCreated          = "order_created"
	AuditSpecificationRecorded = "specification_recorded"
	AuditEstimateCreated       = "estimate_created"
	AuditValidated             = "validated"
	AuditReestimated           = "reestimated"
	AuditEstimationFailed      = "estimation_failed"
	AuditStatusChanged         = "status_changed"
)

// ActorSystem is the actor recorded for pipeline-driven changes
const ActorSystem = "system"

// Order is a persisted print order
type Order struct {
	ID            uuid.UUID         `json:"id"`
	InputType     InputType         `json:"input_type"`
	RawInput      string            `json:"raw_input"`
	Status        OrderStatus       `json:"status"`
	Specification *Specification    `json:"specification,omitempty"`
	Validation    *ValidationResult `json:"validation,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Estimate is one versioned price for an order
type Estimate struct {
	ID         uuid.UUID      `json:"id"`
	OrderID    uuid.UUID      `json:"order_id"`
	Version    int            `json:"version"`
	Pricing    PriceBreakdown `json:"pricing"`
	TotalPrice float64        `json:"total_price"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditEntry is one row of an order's audit trail
type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EstimateRequest is the request body for a text estimate
type EstimateRequest struct {
	Input     string    `json:"input" validate:"required"`
	InputType InputType `json:"input_type" validate:"required,oneof=text email pdf image"`
}

// StatusUpdateRequest is the request body for an order status change
type StatusUpdateRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=pending estimated review approved rejected processing completed"`
	Notes  string      `json:"notes,omitempty"`
}

// Validate validates the EstimateRequest using the validator.
func (r *EstimateRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the StatusUpdateRequest using the validator.
func (r *StatusUpdateRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
