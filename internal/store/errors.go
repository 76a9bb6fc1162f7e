package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrDuplicateOrderNumber    = errors.New("duplicate order number")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// InsufficientInventoryError reports the inventory record that could not
// cover a requested quantity.
type InsufficientInventoryError struct {
	InventoryID string
	Requested   int
	Available   int
	Missing     bool
}

func (e *InsufficientInventoryError) Error() string {
	if e.Missing {
		return fmt.Sprintf("inventory record %s not found", e.InventoryID)
	}
	return fmt.Sprintf("insufficient inventory for %s: requested %d, available %d",
		e.InventoryID, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}
