package service

import (
	"fmt"

	"pos-service/internal/store"
)

// ValidationError is returned for malformed sale input before anything is
// written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientInventoryError names the cart line that stock cannot cover.
// It matches store.ErrInsufficientInventory with errors.Is.
type InsufficientInventoryError struct {
	InventoryID string
	ProductName string
	Requested   int
	Available   int
	Missing     bool
}

func (e *InsufficientInventoryError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.InventoryID
	}
	if e.Missing {
		return fmt.Sprintf("Inventory not found for %s", name)
	}
	return fmt.Sprintf("Insufficient inventory for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Unwrap() error {
	return store.ErrInsufficientInventory
}

// PersistenceError wraps a datastore failure that aborted the sale. The
// message keeps the datastore text.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
