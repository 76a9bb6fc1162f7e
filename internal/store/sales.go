package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"pos-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SaleWrite is the unit of work committed for one sale
type SaleWrite struct {
	Order  *models.Order
	Items  []models.OrderItem
	Outbox *models.OutboxEvent
}

// CreateSale decrements stock for every line, then inserts the order, its
// items and the optional outbox event in a single transaction.
func (s *Store) CreateSale(ctx context.Context, sale *SaleWrite) error {
	if sale.Order.ID == "" {
		sale.Order.ID = uuid.New().String()
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		// Lock rows in a stable order so concurrent sales cannot deadlock.
		lines := make([]models.OrderItem, len(sale.Items))
		copy(lines, sale.Items)
		sort.SliceStable(lines, func(i, j int) bool {
			return lines[i].InventoryID < lines[j].InventoryID
		})
		for _, line := range lines {
			if _, err := decrementInventory(ctx, tx, line.InventoryID, line.Quantity); err != nil {
				return err
			}
		}

		if err := insertOrder(ctx, tx, sale.Order); err != nil {
			return err
		}

		for i := range sale.Items {
			sale.Items[i].OrderID = sale.Order.ID
			sale.Items[i].LineNo = i + 1
			if err := insertOrderItem(ctx, tx, &sale.Items[i]); err != nil {
				return err
			}
		}

		if sale.Outbox != nil {
			if err := insertOutboxEvent(ctx, tx, sale.Outbox); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (id, order_number, vendor_id, location_id, customer_id, status,
			payment_status, fulfillment_status, subtotal_cents, tax_cents, total_cents,
			payment_method, metadata, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	err := tx.QueryRowxContext(ctx, query,
		order.ID, order.OrderNumber, order.VendorID, order.LocationID, order.CustomerID,
		order.Status, order.PaymentStatus, order.FulfillmentStatus, order.SubtotalCents,
		order.TaxCents, order.TotalCents, order.PaymentMethod, order.Metadata,
		order.IdempotencyKey,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "orders_order_number_key":
			return fmt.Errorf("order number %s: %w", order.OrderNumber, ErrDuplicateOrderNumber)
		case "orders_idempotency_key_key":
			return ErrDuplicateIdempotencyKey
		}
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func insertOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, line_no, product_id, inventory_id, product_name, sku,
			category, quantity, unit_price_cents, line_total_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.OrderID, item.LineNo, item.ProductID, item.InventoryID, item.ProductName, item.SKU,
		item.Category, item.Quantity, item.UnitPriceCents, item.LineTotalCents)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY line_no, id", orderID)
	return items, err
}

// CreatePOSTransaction records the payment audit row of a sale
func (s *Store) CreatePOSTransaction(ctx context.Context, t *models.POSTransaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	query := `
		INSERT INTO pos_transactions (id, order_id, vendor_id, location_id, session_id, user_id,
			transaction_type, payment_method, amount_cents, cash_tendered_cents,
			change_given_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	return s.db.GetContext(ctx, &t.CreatedAt, query,
		t.ID, t.OrderID, t.VendorID, t.LocationID, t.SessionID, t.UserID, t.TransactionType,
		t.PaymentMethod, t.AmountCents, t.CashTenderedCents, t.ChangeGivenCents, t.Status)
}
