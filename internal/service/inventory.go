package service

import (
	"context"
	"errors"
	"fmt"

	"pos-service/internal/store"
	"pos-service/internal/util"
)

// VerifyInventory reads each line's record and fails on the first one that
// cannot cover the requested quantity. Lines sharing an inventory record are
// summed. It reserves nothing; the guarded decrement in the sale transaction
// is what actually protects stock.
func VerifyInventory(ctx context.Context, repo InventoryReader, items []SaleItemRequest) error {
	ctx, span := util.StartSpan(ctx, "VerifyInventory")
	defer span.End()

	requested := make(map[string]int, len(items))
	for _, item := range items {
		requested[item.InventoryID] += item.Quantity
	}

	checked := make(map[string]bool, len(items))
	for _, item := range items {
		if checked[item.InventoryID] {
			continue
		}
		checked[item.InventoryID] = true

		rec, err := repo.GetInventoryRecord(ctx, item.InventoryID)
		if errors.Is(err, store.ErrNotFound) {
			return &InsufficientInventoryError{
				InventoryID: item.InventoryID,
				ProductName: item.ProductName,
				Requested:   requested[item.InventoryID],
				Missing:     true,
			}
		}
		if err != nil {
			return &PersistenceError{Op: "read inventory", Err: fmt.Errorf("inventory %s: %w", item.InventoryID, err)}
		}

		if rec.Quantity < requested[item.InventoryID] {
			return &InsufficientInventoryError{
				InventoryID: item.InventoryID,
				ProductName: item.ProductName,
				Requested:   requested[item.InventoryID],
				Available:   rec.Quantity,
			}
		}
	}
	return nil
}
