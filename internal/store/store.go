package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// withTx runs fn inside a transaction, committing only if fn succeeds
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// GetLocation retrieves a location by ID
func (s *Store) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	var loc models.Location
	err := s.db.GetContext(ctx, &loc,
		"SELECT id, vendor_id, slug, name FROM locations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetCustomer retrieves a customer by ID
func (s *Store) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.GetContext(ctx, &c,
		"SELECT id, vendor_id, name, email, phone FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SalesSummary aggregates orders per day and location for a vendor
func (s *Store) SalesSummary(ctx context.Context, vendorID string, from, to time.Time) ([]models.SalesSummary, error) {
	query := `
		SELECT date_trunc('day', o.created_at) AS day,
		       o.location_id,
		       COALESCE(l.name, '') AS location_name,
		       COUNT(*) AS orders,
		       COALESCE(SUM(i.units), 0)::bigint AS units,
		       SUM(o.subtotal_cents)::bigint AS subtotal_cents,
		       SUM(o.tax_cents)::bigint AS tax_cents,
		       SUM(o.total_cents)::bigint AS total_cents
		FROM orders o
		LEFT JOIN locations l ON l.id = o.location_id
		LEFT JOIN (
			SELECT order_id, SUM(quantity) AS units FROM order_items GROUP BY order_id
		) i ON i.order_id = o.id
		WHERE o.vendor_id = $1 AND o.created_at >= $2 AND o.created_at < $3
		GROUP BY 1, 2, 3
		ORDER BY 1, 3`

	var rows []models.SalesSummary
	err := s.db.SelectContext(ctx, &rows, query, vendorID, from, to)
	return rows, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}
