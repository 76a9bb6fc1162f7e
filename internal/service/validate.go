package service

import (
	"fmt"
	"math"
	"strings"

	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/google/uuid"
)

// SaleItemRequest is one cart line of a POS sale
type SaleItemRequest struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"lineTotal"`
	InventoryID string  `json:"inventoryId"`
	Category    string  `json:"category,omitempty"`
	SKU         string  `json:"sku,omitempty"`
}

// CreateSaleRequest is the body of POST /api/v1/pos/sales. Money is in
// dollars.
type CreateSaleRequest struct {
	LocationID     string            `json:"locationId"`
	VendorID       string            `json:"vendorId"`
	SessionID      string            `json:"sessionId,omitempty"`
	UserID         string            `json:"userId,omitempty"`
	Items          []SaleItemRequest `json:"items"`
	Subtotal       float64           `json:"subtotal"`
	TaxAmount      float64           `json:"taxAmount"`
	Total          float64           `json:"total"`
	PaymentMethod  string            `json:"paymentMethod"`
	CashTendered   *float64          `json:"cashTendered,omitempty"`
	ChangeGiven    *float64          `json:"changeGiven,omitempty"`
	CustomerID     string            `json:"customerId,omitempty"`
	CustomerName   string            `json:"customerName,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// toCents converts a dollar amount to integer cents, rounding half away from
// zero so 19.99 is 1999 and not 1998.
func toCents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

func toDollars(cents int64) float64 {
	return float64(cents) / 100
}

// wholeCents reports whether dollars has at most two decimal places. The
// tolerance absorbs binary float noise such as 19.99*100.
func wholeCents(dollars float64) bool {
	scaled := dollars * 100
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// lookupID rejects ids that cannot exist because every key column is a
// UUID; they read as not found instead of a datastore syntax error.
func lookupID(kind, id string) error {
	if !isUUID(id) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// ValidateSaleRequest checks the request shape. It never touches storage.
func ValidateSaleRequest(req *CreateSaleRequest) error {
	if strings.TrimSpace(req.LocationID) == "" {
		return invalid("locationId", "locationId is required")
	}
	if !isUUID(req.LocationID) {
		return invalid("locationId", "locationId must be a UUID")
	}
	if strings.TrimSpace(req.VendorID) == "" {
		return invalid("vendorId", "vendorId is required")
	}
	if !isUUID(req.VendorID) {
		return invalid("vendorId", "vendorId must be a UUID")
	}
	if req.CustomerID != "" && !isUUID(req.CustomerID) {
		return invalid("customerId", "customerId must be a UUID")
	}
	if len(req.Items) == 0 {
		return invalid("items", "items must contain at least one line")
	}
	switch req.PaymentMethod {
	case models.PaymentMethodCash, models.PaymentMethodCard:
	case "":
		return invalid("paymentMethod", "paymentMethod is required")
	default:
		return invalid("paymentMethod", "paymentMethod must be cash or card, got %q", req.PaymentMethod)
	}
	if req.Subtotal < 0 {
		return invalid("subtotal", "subtotal must not be negative")
	}
	if req.TaxAmount < 0 {
		return invalid("taxAmount", "taxAmount must not be negative")
	}
	if req.Total < 0 {
		return invalid("total", "total must not be negative")
	}
	if req.CashTendered != nil && *req.CashTendered < 0 {
		return invalid("cashTendered", "cashTendered must not be negative")
	}
	if req.ChangeGiven != nil && *req.ChangeGiven < 0 {
		return invalid("changeGiven", "changeGiven must not be negative")
	}
	amounts := []struct {
		field string
		value float64
	}{
		{"subtotal", req.Subtotal},
		{"taxAmount", req.TaxAmount},
		{"total", req.Total},
	}
	for _, a := range amounts {
		if !wholeCents(a.value) {
			return invalid(a.field, "%s must not have more than two decimal places", a.field)
		}
	}
	if req.CashTendered != nil && !wholeCents(*req.CashTendered) {
		return invalid("cashTendered", "cashTendered must not have more than two decimal places")
	}
	if req.ChangeGiven != nil && !wholeCents(*req.ChangeGiven) {
		return invalid("changeGiven", "changeGiven must not have more than two decimal places")
	}

	var lineSum int64
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return invalid("items", "items[%d].productId is required", i)
		}
		if strings.TrimSpace(item.InventoryID) == "" {
			return invalid("items", "items[%d].inventoryId is required", i)
		}
		if !isUUID(item.ProductID) || !isUUID(item.InventoryID) {
			return invalid("items", "items[%d] productId and inventoryId must be UUIDs", i)
		}
		if item.Quantity <= 0 {
			return invalid("items", "items[%d].quantity must be positive", i)
		}
		if item.UnitPrice < 0 || item.LineTotal < 0 {
			return invalid("items", "items[%d] prices must not be negative", i)
		}
		if !wholeCents(item.UnitPrice) || !wholeCents(item.LineTotal) {
			return invalid("items", "items[%d] prices must not have more than two decimal places", i)
		}
		lineSum += toCents(item.LineTotal)
	}

	if lineSum != toCents(req.Subtotal) {
		return invalid("subtotal", "subtotal %.2f does not match line totals %.2f", req.Subtotal, toDollars(lineSum))
	}
	return nil
}
