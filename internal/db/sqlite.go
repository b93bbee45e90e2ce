package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/print-estimator/internal/types"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// sqliteTimeLayout is fixed width so text ordering matches time ordering
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLite is a Store backed by a single-connection SQLite database
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OpenSQLite opens dsn (a file path or ":memory:") and applies the schema
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLite{db: conn}
	if err := s.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *SQLite) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Migrate applies the embedded schema
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateOrder inserts a pending order and its order_created audit entry
func (s *SQLite) CreateOrder(ctx context.Context, inputType types.InputType, raw, actor string) (*types.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := sqliteNow()
	order := types.Order{
		ID:        uuid.New(),
		InputType: inputType,
		RawInput:  raw,
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, input_type, raw_input, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, string(inputType), raw, string(order.Status), formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	notes := fmt.Sprintf("Order created from %s input", inputType)
	if err := insertAuditSQL(ctx, tx, order.ID, types.AuditOrderCreated, actor, notes); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &order, nil
}

// GetOrder retrieves an order by ID, returning nil if it does not exist
func (s *SQLite) GetOrder(ctx context.Context, id uuid.UUID) (*types.Order, error) {
	var order types.Order
	var inputType, status, createdAt, updatedAt string
	var specJSON, validationJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, input_type, raw_input, status, specification, validation, created_at, updated_at
		 FROM orders WHERE id = ?`,
		id,
	).Scan(&order.ID, &inputType, &order.RawInput, &status, &specJSON, &validationJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order.InputType = types.InputType(inputType)
	order.Status = types.OrderStatus(status)
	if order.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if order.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if err := decodeOrderJSON(&order, []byte(specJSON.String), []byte(validationJSON.String)); err != nil {
		return nil, err
	}
	return &order, nil
}

// Persist records the specification, the next estimate version and the final
// status in one transaction
func (s *SQLite) Persist(ctx context.Context, in PersistInput) (*types.Estimate, error) {
	specJSON, validationJSON, pricingJSON, err := encodePersist(in)
	if err != nil {
		return nil, err
	}
	actor := actorOrSystem(in.Actor)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := sqliteNow()
	res, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET specification = ?, validation = ?, status = ?,
		     raw_input = COALESCE(?, raw_input), updated_at = ?
		 WHERE id = ?`,
		string(specJSON), string(validationJSON), string(in.Status), in.RawInput, formatTime(now), in.OrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record specification: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to record specification: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}
	if err := insertAuditSQL(ctx, tx, in.OrderID, types.AuditSpecificationRecorded, actor, ""); err != nil {
		return nil, err
	}

	estimate := types.Estimate{
		ID:         uuid.New(),
		OrderID:    in.OrderID,
		Pricing:    in.Price,
		TotalPrice: in.Price.TotalPrice,
		CreatedAt:  now,
	}
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM estimates WHERE order_id = ?`, in.OrderID,
	).Scan(&estimate.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to compute estimate version: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO estimates (id, order_id, version, pricing, total_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		estimate.ID, in.OrderID, estimate.Version, string(pricingJSON), estimate.TotalPrice, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record estimate: %w", err)
	}

	if err := insertAuditSQL(ctx, tx, in.OrderID, types.AuditEstimateCreated, actor, estimateNote(estimate.Version, estimate.TotalPrice)); err != nil {
		return nil, err
	}
	if in.Reestimate {
		notes := fmt.Sprintf("Re-estimated as v%d", estimate.Version)
		if err := insertAuditSQL(ctx, tx, in.OrderID, types.AuditReestimated, actor, notes); err != nil {
			return nil, err
		}
	}
	if err := insertAuditSQL(ctx, tx, in.OrderID, types.AuditValidated, actor, validatedNote(in.Status, in.Validation)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &estimate, nil
}

// Fail marks an order failed and records the reason
func (s *SQLite) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(types.StatusFailed), formatTime(sqliteNow()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := insertAuditSQL(ctx, tx, id, types.AuditEstimationFailed, types.ActorSystem, reason); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordAudit appends one audit entry
func (s *SQLite) RecordAudit(ctx context.Context, id uuid.UUID, action, actor, notes string) error {
	return insertAuditSQL(ctx, s.db, id, action, actor, notes)
}

// UpdateStatus changes an order's status and records a status_changed entry
func (s *SQLite) UpdateStatus(ctx context.Context, id uuid.UUID, status types.OrderStatus, actor, notes string) (*types.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous string
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order status: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(sqliteNow()), id,
	); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	note := statusNote(types.OrderStatus(previous), status, notes)
	if err := insertAuditSQL(ctx, tx, id, types.AuditStatusChanged, actor, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s.GetOrder(ctx, id)
}

// ListAudit returns an order's audit trail in the order it was written
func (s *SQLite) ListAudit(ctx context.Context, id uuid.UUID) ([]types.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, action, actor, notes, created_at
		 FROM audits WHERE order_id = ? ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var notes sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Action, &e.Actor, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Notes = notes.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestEstimate returns the highest estimate version, or nil if none exists
func (s *SQLite) LatestEstimate(ctx context.Context, id uuid.UUID) (*types.Estimate, error) {
	estimates, err := s.queryEstimates(ctx,
		`SELECT id, order_id, version, pricing, total_price, created_at
		 FROM estimates WHERE order_id = ? ORDER BY version DESC LIMIT 1`, id)
	if err != nil || len(estimates) == 0 {
		return nil, err
	}
	return &estimates[0], nil
}

// ListEstimates returns every estimate version in ascending order
func (s *SQLite) ListEstimates(ctx context.Context, id uuid.UUID) ([]types.Estimate, error) {
	return s.queryEstimates(ctx,
		`SELECT id, order_id, version, pricing, total_price, created_at
		 FROM estimates WHERE order_id = ? ORDER BY version`, id)
}

func (s *SQLite) queryEstimates(ctx context.Context, query string, id uuid.UUID) ([]types.Estimate, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var estimates []types.Estimate
	for rows.Next() {
		var e types.Estimate
		var pricingJSON, createdAt string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Version, &pricingJSON, &e.TotalPrice, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		if err := decodePricing([]byte(pricingJSON), &e); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		estimates = append(estimates, e)
	}
	return estimates, rows.Err()
}

func insertAuditSQL(ctx context.Context, q sqlExecer, orderID uuid.UUID, action, actor, notes string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO audits (id, order_id, action, actor, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New(), orderID, action, actorOrSystem(actor), notes, formatTime(sqliteNow()),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s audit entry: %w", action, err)
	}
	return nil
}

// sqliteNow drops the monotonic reading so values round trip through storage unchanged
func sqliteNow() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
