package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/print-estimator/internal/db"
	"github.com/jonathan/print-estimator/internal/types"
)

// Store is the persistence the orchestrator needs. db.DB and db.SQLite satisfy it.
type Store interface {
	CreateOrder(ctx context.Context, inputType types.InputType, raw, actor string) (*types.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*types.Order, error)
	Persist(ctx context.Context, in db.PersistInput) (*types.Estimate, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	RecordAudit(ctx context.Context, id uuid.UUID, action, actor, notes string) error
}

// Notifier delivers lifecycle events without blocking the caller
type Notifier interface {
	Dispatch(ctx context.Context, event string, data any, url string) <-chan struct{}
}
