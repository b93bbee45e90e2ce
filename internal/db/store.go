// Package db persists orders, versioned estimates and the audit trail.
// Postgres (pgxpool) is the production backend; SQLite backs local development and tests.
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/print-estimator/internal/types"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// ErrNotFound is returned by writes that target a missing order
var ErrNotFound = errors.New("order not found")

// Store is the persistence surface shared by both backends
type Store interface {
	CreateOrder(ctx context.Context, inputType types.InputType, raw, actor string) (*types.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*types.Order, error)
	Persist(ctx context.Context, in PersistInput) (*types.Estimate, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	RecordAudit(ctx context.Context, id uuid.UUID, action, actor, notes string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status types.OrderStatus, actor, notes string) (*types.Order, error)
	ListAudit(ctx context.Context, id uuid.UUID) ([]types.AuditEntry, error)
	LatestEstimate(ctx context.Context, id uuid.UUID) (*types.Estimate, error)
	ListEstimates(ctx context.Context, id uuid.UUID) ([]types.Estimate, error)
	Migrate(ctx context.Context) error
	Close()
}

// PersistInput is everything written atomically at the end of one estimation run
type PersistInput struct {
	OrderID       uuid.UUID
	Specification types.Specification
	Price         types.PriceBreakdown
	Validation    types.ValidationResult
	Status        types.OrderStatus
	Actor         string
	RawInput      *string // replaces the stored raw input when non-nil
	Reestimate    bool    // adds a reestimated audit entry
}

// Open connects to the backend selected by the URL scheme.
// "sqlite:" and "file:" URLs (or paths ending in .db) use SQLite; postgres URLs use pgx.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case isSQLiteURL(databaseURL):
		return OpenSQLite(ctx, sqliteDSN(databaseURL))
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return Connect(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database URL %q", redactURL(databaseURL))
	}
}

func isSQLiteURL(u string) bool {
	return strings.HasPrefix(u, "sqlite:") || strings.HasPrefix(u, "file:") ||
		strings.HasSuffix(u, ".db") || u == ":memory:"
}

// sqliteDSN converts sqlite:path, sqlite://path and sqlite:///path into a driver DSN.
// As with SQLAlchemy URLs, sqlite:///x.db is relative and sqlite:////x.db absolute.
func sqliteDSN(u string) string {
	if !strings.HasPrefix(u, "sqlite:") {
		return u
	}
	dsn := strings.TrimPrefix(u, "sqlite:")
	if strings.HasPrefix(dsn, "///") {
		return strings.TrimPrefix(dsn, "///")
	}
	return strings.TrimPrefix(dsn, "//")
}

// redactURL hides credentials in error messages
func redactURL(u string) string {
	if at := strings.LastIndex(u, "@"); at >= 0 {
		if scheme := strings.Index(u, "://"); scheme >= 0 && scheme < at {
			return u[:scheme+3] + "***" + u[at:]
		}
	}
	return u
}

// estimateNote formats the estimate_created audit note
func estimateNote(version int, total float64) string {
	return fmt.Sprintf("Estimate v%d created: ₹%.2f", version, total)
}

// validatedNote formats the validated audit note
func validatedNote(status types.OrderStatus, v types.ValidationResult) string {
	if len(v.Flags) == 0 {
		return fmt.Sprintf("status %s: no issues", status)
	}
	flags := make([]string, len(v.Flags))
	for i, f := range v.Flags {
		flags[i] = string(f)
	}
	return fmt.Sprintf("status %s: flags %s", status, strings.Join(flags, ", "))
}

// statusNote formats the status_changed audit note
func statusNote(from, to types.OrderStatus, notes string) string {
	if notes != "" {
		return notes
	}
	return fmt.Sprintf("Status changed from %s to %s", from, to)
}

// decodeOrderJSON fills the optional JSON columns of an order
func decodeOrderJSON(order *types.Order, specJSON, validationJSON []byte) error {
	if len(specJSON) > 0 {
		var spec types.Specification
		if err := json.Unmarshal(specJSON, &spec); err != nil {
			return fmt.Errorf("failed to decode specification: %w", err)
		}
		order.Specification = &spec
	}
	if len(validationJSON) > 0 {
		var v types.ValidationResult
		if err := json.Unmarshal(validationJSON, &v); err != nil {
			return fmt.Errorf("failed to decode validation: %w", err)
		}
		order.Validation = &v
	}
	return nil
}

// encodePersist marshals the JSON columns written by Persist
func encodePersist(in PersistInput) (specJSON, validationJSON, pricingJSON []byte, err error) {
	if specJSON, err = json.Marshal(in.Specification); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal specification: %w", err)
	}
	if validationJSON, err = json.Marshal(in.Validation); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal validation: %w", err)
	}
	if pricingJSON, err = json.Marshal(in.Price); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal pricing: %w", err)
	}
	return specJSON, validationJSON, pricingJSON, nil
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return types.ActorSystem
	}
	return actor
}

// decodePricing fills an estimate's breakdown from its JSON column
func decodePricing(pricingJSON []byte, e *types.Estimate) error {
	if err := json.Unmarshal(pricingJSON, &e.Pricing); err != nil {
		return fmt.Errorf("failed to decode pricing: %w", err)
	}
	return nil
}
