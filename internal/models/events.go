package models

import "time"

// Event types
const (
	EventTypeSaleCompleted = "SALE_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCompletedEvent is written to the outbox with every committed sale
type SaleCompletedEvent struct {
	BaseEvent
	OrderID       string         `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	VendorID      string         `json:"vendor_id"`
	LocationID    string         `json:"location_id"`
	CustomerID    string         `json:"customer_id,omitempty"`
	CustomerName  string         `json:"customer_name,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	PaymentMethod string         `json:"payment_method"`
	SubtotalCents int64          `json:"subtotal_cents"`
	TaxCents      int64          `json:"tax_cents"`
	TotalCents    int64          `json:"total_cents"`
	Items         []SaleItemData `json:"items"`
}

// SaleItemData represents item data in events
type SaleItemData struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	SKU            string `json:"sku,omitempty"`
	Category       string `json:"category,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}
