package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Location is a retail location owned by a vendor
type Location struct {
	ID       string `db:"id" json:"id"`
	VendorID string `db:"vendor_id" json:"vendorId"`
	Slug     string `db:"slug" json:"slug"`
	Name     string `db:"name" json:"name"`
}

// Customer is a vendor's customer record
type Customer struct {
	ID       string  `db:"id" json:"id"`
	VendorID string  `db:"vendor_id" json:"vendorId"`
	Name     string  `db:"name" json:"name"`
	Email    *string `db:"email" json:"email,omitempty"`
	Phone    *string `db:"phone" json:"phone,omitempty"`
}

// InventoryRecord is the available quantity of a product at a location
type InventoryRecord struct {
	ID         string    `db:"id" json:"id"`
	ProductID  string    `db:"product_id" json:"productId"`
	LocationID string    `db:"location_id" json:"locationId"`
	Quantity   int       `db:"quantity" json:"quantity"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Order is the header record of a sale
type Order struct {
	ID                string         `db:"id" json:"id"`
	OrderNumber       string         `db:"order_number" json:"orderNumber"`
	VendorID          string         `db:"vendor_id" json:"vendorId"`
	LocationID        string         `db:"location_id" json:"locationId"`
	CustomerID        *string        `db:"customer_id" json:"customerId"`
	Status            string         `db:"status" json:"status"`
	PaymentStatus     string         `db:"payment_status" json:"paymentStatus"`
	FulfillmentStatus string         `db:"fulfillment_status" json:"fulfillmentStatus"`
	SubtotalCents     int64          `db:"subtotal_cents" json:"-"`
	TaxCents          int64          `db:"tax_cents" json:"-"`
	TotalCents        int64          `db:"total_cents" json:"-"`
	PaymentMethod     string         `db:"payment_method" json:"paymentMethod"`
	Metadata          types.JSONText `db:"metadata" json:"metadata"`
	IdempotencyKey    *string        `db:"idempotency_key" json:"idempotencyKey,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// OrderItem is one cart line of an order
type OrderItem struct {
	ID             string `db:"id" json:"id"`
	OrderID        string `db:"order_id" json:"orderId"`
	LineNo         int    `db:"line_no" json:"lineNo"`
	ProductID      string `db:"product_id" json:"productId"`
	InventoryID    string `db:"inventory_id" json:"inventoryId"`
	ProductName    string `db:"product_name" json:"productName"`
	SKU            string `db:"sku" json:"sku,omitempty"`
	Category       string `db:"category" json:"category,omitempty"`
	Quantity       int    `db:"quantity" json:"quantity"`
	UnitPriceCents int64  `db:"unit_price_cents" json:"-"`
	LineTotalCents int64  `db:"line_total_cents" json:"-"`
}

// POSTransaction is the audit row of a point-of-sale payment
type POSTransaction struct {
	ID                string    `db:"id" json:"id"`
	OrderID           *string   `db:"order_id" json:"orderId"`
	VendorID          string    `db:"vendor_id" json:"vendorId"`
	LocationID        string    `db:"location_id" json:"locationId"`
	SessionID         *string   `db:"session_id" json:"sessionId,omitempty"`
	UserID            *string   `db:"user_id" json:"userId,omitempty"`
	TransactionType   string    `db:"transaction_type" json:"transactionType"`
	PaymentMethod     string    `db:"payment_method" json:"paymentMethod"`
	AmountCents       int64     `db:"amount_cents" json:"-"`
	CashTenderedCents *int64    `db:"cash_tendered_cents" json:"-"`
	ChangeGivenCents  *int64    `db:"change_given_cents" json:"-"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

// LoyaltyAccount holds a customer's points with one vendor and provider
type LoyaltyAccount struct {
	ID                string    `db:"id" json:"id"`
	CustomerID        string    `db:"customer_id" json:"customerId"`
	VendorID          string    `db:"vendor_id" json:"vendorId"`
	Provider          string    `db:"provider" json:"provider"`
	PointsBalance     int64     `db:"points_balance" json:"pointsBalance"`
	LifetimePoints    int64     `db:"lifetime_points" json:"lifetimePoints"`
	TierName          string    `db:"tier_name" json:"tierName"`
	TierLevel         int       `db:"tier_level" json:"tierLevel"`
	ExternalContactID *string   `db:"external_contact_id" json:"externalContactId,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// LoyaltyKey identifies a loyalty account
type LoyaltyKey struct {
	CustomerID string
	VendorID   string
	Provider   string
}

// LoyaltyTransaction is an append-only ledger entry
type LoyaltyTransaction struct {
	ID           string    `db:"id" json:"id"`
	AccountID    string    `db:"account_id" json:"accountId"`
	CustomerID   string    `db:"customer_id" json:"customerId"`
	VendorID     string    `db:"vendor_id" json:"vendorId"`
	OrderID      *string   `db:"order_id" json:"orderId,omitempty"`
	Type         string    `db:"type" json:"type"`
	Points       int64     `db:"points" json:"points"`
	BalanceAfter int64     `db:"balance_after" json:"balanceAfter"`
	Description  string    `db:"description" json:"description"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	Seq          int64     `db:"seq" json:"-"`
}

// OutboxEvent is a domain event awaiting publication
type OutboxEvent struct {
	ID          string         `db:"id" json:"id"`
	AggregateID string         `db:"aggregate_id" json:"aggregateId"`
	EventType   string         `db:"event_type" json:"eventType"`
	Payload     types.JSONText `db:"payload" json:"payload"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	PublishedAt *time.Time     `db:"published_at" json:"publishedAt,omitempty"`
}

// CRMSyncEntry is a queued CRM push awaiting retry
type CRMSyncEntry struct {
	ID            string         `db:"id" json:"id"`
	OrderID       string         `db:"order_id" json:"orderId"`
	CustomerID    *string        `db:"customer_id" json:"customerId,omitempty"`
	Payload       types.JSONText `db:"payload" json:"payload"`
	Status        string         `db:"status" json:"status"`
	RetryCount    int            `db:"retry_count" json:"retryCount"`
	LastError     *string        `db:"last_error" json:"lastError,omitempty"`
	NextAttemptAt time.Time      `db:"next_attempt_at" json:"nextAttemptAt"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`
}

// SalesSummary aggregates completed sales per location and day
type SalesSummary struct {
	Day           time.Time `db:"day" json:"day"`
	LocationID    string    `db:"location_id" json:"locationId"`
	LocationName  string    `db:"location_name" json:"locationName"`
	Orders        int       `db:"orders" json:"orders"`
	Units         int       `db:"units" json:"units"`
	SubtotalCents int64     `db:"subtotal_cents" json:"-"`
	TaxCents      int64     `db:"tax_cents" json:"-"`
	TotalCents    int64     `db:"total_cents" json:"-"`
}

// Order statuses
const (
	OrderStatusCompleted = "completed"
	PaymentStatusPaid    = "paid"
	FulfillmentFulfilled = "fulfilled"
)

// Payment methods
const (
	PaymentMethodCash = "cash"
	PaymentMethodCard = "card"
)

// POS transaction values
const (
	POSTransactionSale      = "sale"
	POSTransactionCompleted = "completed"
)

// Loyalty ledger entry types
const (
	LoyaltyTxEarned     = "earned"
	LoyaltyTxTierChange = "tier_change"
)

// CRM sync queue statuses
const (
	SyncStatusPending   = "pending"
	SyncStatusSucceeded = "succeeded"
	SyncStatusFailed    = "failed"
)
