package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/print-estimator/internal/types"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// pgExecer is satisfied by both the pool and a transaction
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "print-estimator"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate applies the embedded schema
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateOrder inserts a pending order and its order_created audit entry
func (db *DB) CreateOrder(ctx context.Context, inputType types.InputType, raw, actor string) (*types.Order, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order := types.Order{
		ID:        uuid.New(),
		InputType: inputType,
		RawInput:  raw,
		Status:    types.StatusPending,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (id, input_type, raw_input, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		order.ID, string(inputType), raw, string(order.Status),
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	notes := fmt.Sprintf("Order created from %s input", inputType)
	if err := insertAuditPG(ctx, tx, order.ID, types.AuditOrderCreated, actor, notes); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &order, nil
}

// GetOrder retrieves an order by ID, returning nil if it does not exist
func (db *DB) GetOrder(ctx context.Context, id uuid.UUID) (*types.Order, error) {
	var order types.Order
	var inputType, status string
	var specJSON, validationJSON []byte

	err := db.pool.QueryRow(ctx,
		`SELECT id, input_type, raw_input, status, specification, validation, created_at, updated_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(&order.ID, &inputType, &order.RawInput, &status, &specJSON, &validationJSON,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order.InputType = types.InputType(inputType)
	order.Status = types.OrderStatus(status)
	if err := decodeOrderJSON(&order, specJSON, validationJSON); err != nil {
		return nil, err
	}
	return &order, nil
}

// Persist records the specification, the next estimate version and the final
// status in one transaction. Nothing is written if any statement fails or ctx is canceled.
func (db *DB) Persist(ctx context.Context, in PersistInput) (*types.Estimate, error) {
	specJSON, validationJSON, pricingJSON, err := encodePersist(in)
	if err != nil {
		return nil, err
	}
	actor := actorOrSystem(in.Actor)

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The UPDATE row lock serializes concurrent persists for the same order
	tag, err := tx.Exec(ctx,
		`UPDATE orders
		 SET specification = $1, validation = $2, status = $3,
		     raw_input = COALESCE($4::text, raw_input), updated_at = NOW()
		 WHERE id = $5`,
		specJSON, validationJSON, string(in.Status), in.RawInput, in.OrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record specification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	if err := insertAuditPG(ctx, tx, in.OrderID, types.AuditSpecificationRecorded, actor, ""); err != nil {
		return nil, err
	}

	estimate := types.Estimate{
		ID:         uuid.New(),
		OrderID:    in.OrderID,
		Pricing:    in.Price,
		TotalPrice: in.Price.TotalPrice,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO estimates (id, order_id, version, pricing, total_price)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(version), 0) + 1 FROM estimates WHERE order_id = $2), $3, $4)
		 RETURNING version, created_at`,
		estimate.ID, in.OrderID, pricingJSON, estimate.TotalPrice,
	).Scan(&estimate.Version, &estimate.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record estimate: %w", err)
	}

	if err := insertAuditPG(ctx, tx, in.OrderID, types.AuditEstimateCreated, actor, estimateNote(estimate.Version, estimate.TotalPrice)); err != nil {
		return nil, err
	}
	if in.Reestimate {
		notes := fmt.Sprintf("Re-estimated as v%d", estimate.Version)
		if err := insertAuditPG(ctx, tx, in.OrderID, types.AuditReestimated, actor, notes); err != nil {
			return nil, err
		}
	}
	if err := insertAuditPG(ctx, tx, in.OrderID, types.AuditValidated, actor, validatedNote(in.Status, in.Validation)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &estimate, nil
}

// Fail marks an order failed and records the reason
func (db *DB) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(types.StatusFailed), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := insertAuditPG(ctx, tx, id, types.AuditEstimationFailed, types.ActorSystem, reason); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordAudit appends one audit entry
func (db *DB) RecordAudit(ctx context.Context, id uuid.UUID, action, actor, notes string) error {
	return insertAuditPG(ctx, db.pool, id, action, actor, notes)
}

// UpdateStatus changes an order's status and records a status_changed entry
func (db *DB) UpdateStatus(ctx context.Context, id uuid.UUID, status types.OrderStatus, actor, notes string) (*types.Order, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var previous string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order status: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id,
	); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	note := statusNote(types.OrderStatus(previous), status, notes)
	if err := insertAuditPG(ctx, tx, id, types.AuditStatusChanged, actor, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return db.GetOrder(ctx, id)
}

// ListAudit returns an order's audit trail in the order it was written
func (db *DB) ListAudit(ctx context.Context, id uuid.UUID) ([]types.AuditEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, order_id, action, actor, notes, created_at
		 FROM audits WHERE order_id = $1 ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var notes *string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Action, &e.Actor, &notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if notes != nil {
			e.Notes = *notes
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestEstimate returns the highest estimate version, or nil if none exists
func (db *DB) LatestEstimate(ctx context.Context, id uuid.UUID) (*types.Estimate, error) {
	estimates, err := db.queryEstimates(ctx,
		`SELECT id, order_id, version, pricing, total_price, created_at
		 FROM estimates WHERE order_id = $1 ORDER BY version DESC LIMIT 1`, id)
	if err != nil || len(estimates) == 0 {
		return nil, err
	}
	return &estimates[0], nil
}

// ListEstimates returns every estimate version in ascending order
func (db *DB) ListEstimates(ctx context.Context, id uuid.UUID) ([]types.Estimate, error) {
	return db.queryEstimates(ctx,
		`SELECT id, order_id, version, pricing, total_price, created_at
		 FROM estimates WHERE order_id = $1 ORDER BY version`, id)
}

func (db *DB) queryEstimates(ctx context.Context, query string, id uuid.UUID) ([]types.Estimate, error) {
	rows, err := db.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	var estimates []types.Estimate
	for rows.Next() {
		var e types.Estimate
		var pricingJSON []byte
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Version, &pricingJSON, &e.TotalPrice, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		if err := decodePricing(pricingJSON, &e); err != nil {
			return nil, err
		}
		estimates = append(estimates, e)
	}
	return estimates, rows.Err()
}

func insertAuditPG(ctx context.Context, q pgExecer, orderID uuid.UUID, action, actor, notes string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO audits (id, order_id, action, actor, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), orderID, action, actorOrSystem(actor), notes, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s audit entry: %w", action, err)
	}
	return nil
}
