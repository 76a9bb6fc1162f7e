package service

import (
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx/types"
)

// OrderView is an order with its lines as returned to clients. Money is in
// dollars, matching the sale request.
type OrderView struct {
	ID                string          `json:"id"`
	OrderNumber       string          `json:"orderNumber"`
	VendorID          string          `json:"vendorId"`
	LocationID        string          `json:"locationId"`
	CustomerID        *string         `json:"customerId"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"paymentStatus"`
	FulfillmentStatus string          `json:"fulfillmentStatus"`
	Subtotal          float64         `json:"subtotal"`
	TaxAmount         float64         `json:"taxAmount"`
	Total             float64         `json:"total"`
	PaymentMethod     string          `json:"paymentMethod"`
	Metadata          types.JSONText  `json:"metadata"`
	IdempotencyKey    *string         `json:"idempotencyKey,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	Items             []OrderItemView `json:"items"`
}

// OrderItemView is one order line in dollars
type OrderItemView struct {
	ID          string  `json:"id"`
	LineNo      int     `json:"lineNo"`
	ProductID   string  `json:"productId"`
	InventoryID string  `json:"inventoryId"`
	ProductName string  `json:"productName"`
	SKU         string  `json:"sku,omitempty"`
	Category    string  `json:"category,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
}

// TransactionView is the POS audit row in dollars
type TransactionView struct {
	ID              string    `json:"id"`
	OrderID         *string   `json:"orderId"`
	VendorID        string    `json:"vendorId"`
	LocationID      string    `json:"locationId"`
	SessionID       *string   `json:"sessionId,omitempty"`
	UserID          *string   `json:"userId,omitempty"`
	TransactionType string    `json:"transactionType"`
	PaymentMethod   string    `json:"paymentMethod"`
	Amount          float64   `json:"amount"`
	CashTendered    *float64  `json:"cashTendered,omitempty"`
	ChangeGiven     *float64  `json:"changeGiven,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newOrderView(order *models.Order, items []models.OrderItem) *OrderView {
	view := &OrderView{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		VendorID:          order.VendorID,
		LocationID:        order.LocationID,
		CustomerID:        order.CustomerID,
		Status:            order.Status,
		PaymentStatus:     order.PaymentStatus,
		FulfillmentStatus: order.FulfillmentStatus,
		Subtotal:          toDollars(order.SubtotalCents),
		TaxAmount:         toDollars(order.TaxCents),
		Total:             toDollars(order.TotalCents),
		PaymentMethod:     order.PaymentMethod,
		Metadata:          order.Metadata,
		IdempotencyKey:    order.IdempotencyKey,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
		Items:             make([]OrderItemView, 0, len(items)),
	}
	for _, item := range items {
		view.Items = append(view.Items, OrderItemView{
			ID:          item.ID,
			LineNo:      item.LineNo,
			ProductID:   item.ProductID,
			InventoryID: item.InventoryID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Category:    item.Category,
			Quantity:    item.Quantity,
			UnitPrice:   toDollars(item.UnitPriceCents),
			LineTotal:   toDollars(item.LineTotalCents),
		})
	}
	return view
}

func newTransactionView(tx *models.POSTransaction) *TransactionView {
	if tx == nil {
		return nil
	}
	return &TransactionView{
		ID:              tx.ID,
		OrderID:         tx.OrderID,
		VendorID:        tx.VendorID,
		LocationID:      tx.LocationID,
		SessionID:       tx.SessionID,
		UserID:          tx.UserID,
		TransactionType: tx.TransactionType,
		PaymentMethod:   tx.PaymentMethod,
		Amount:          toDollars(tx.AmountCents),
		CashTendered:    optionalDollars(tx.CashTenderedCents),
		ChangeGiven:     optionalDollars(tx.ChangeGivenCents),
		Status:          tx.Status,
		CreatedAt:       tx.CreatedAt,
	}
}

func optionalDollars(cents *int64) *float64 {
	if cents == nil {
		return nil
	}
	v := toDollars(*cents)
	return &v
}
