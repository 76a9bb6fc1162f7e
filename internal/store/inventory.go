package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetInventoryRecord retrieves an inventory record by ID
func (s *Store) GetInventoryRecord(ctx context.Context, id string) (*models.InventoryRecord, error) {
	var inv models.InventoryRecord
	err := s.db.GetContext(ctx, &inv,
		"SELECT id, product_id, location_id, quantity, updated_at FROM inventory WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inventory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// DecrementInventory atomically removes quantity from a record. It never
// drives the quantity below zero.
func (s *Store) DecrementInventory(ctx context.Context, id string, quantity int) (int, error) {
	return decrementInventory(ctx, s.db, id, quantity)
}

// IncrementInventory returns quantity to a record
func (s *Store) IncrementInventory(ctx context.Context, id string, quantity int) (int, error) {
	var remaining int
	err := s.db.GetContext(ctx, &remaining,
		"UPDATE inventory SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2 RETURNING quantity",
		quantity, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("inventory %s: %w", id, ErrNotFound)
	}
	return remaining, err
}

func decrementInventory(ctx context.Context, q sqlx.ExtContext, id string, quantity int) (int, error) {
	var remaining int
	err := sqlx.GetContext(ctx, q, &remaining, `
		UPDATE inventory
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND quantity >= $1
		RETURNING quantity`, quantity, id)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to decrement inventory %s: %w", id, err)
	}

	var available int
	err = sqlx.GetContext(ctx, q, &available, "SELECT quantity FROM inventory WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &InsufficientInventoryError{InventoryID: id, Requested: quantity, Missing: true}
	}
	if err != nil {
		return 0, err
	}
	return 0, &InsufficientInventoryError{InventoryID: id, Requested: quantity, Available: available}
}
