package service

import (
	"context"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
)

// InventoryReader reads stock levels
type InventoryReader interface {
	GetInventoryRecord(ctx context.Context, id string) (*models.InventoryRecord, error)
}

// SaleRepository is what the sale workflow needs from storage
type SaleRepository interface {
	InventoryReader
	DecrementInventory(ctx context.Context, id string, quantity int) (int, error)
	IncrementInventory(ctx context.Context, id string, quantity int) (int, error)
	GetLocation(ctx context.Context, id string) (*models.Location, error)
	CreateSale(ctx context.Context, sale *store.SaleWrite) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	CreatePOSTransaction(ctx context.Context, t *models.POSTransaction) error
}

// LoyaltyRepository persists loyalty accounts and their ledger
type LoyaltyRepository interface {
	GetLoyaltyAccount(ctx context.Context, key models.LoyaltyKey) (*models.LoyaltyAccount, error)
	ApplyLoyalty(ctx context.Context, seed *models.LoyaltyAccount, fn store.LoyaltyMutation) (*models.LoyaltyAccount, error)
	SetLoyaltyExternalContactID(ctx context.Context, accountID, contactID string) error
	ListLoyaltyTransactions(ctx context.Context, accountID string) ([]models.LoyaltyTransaction, error)
}

// SyncRepository backs CRM pushes and their retry queue
type SyncRepository interface {
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	GetLoyaltyAccount(ctx context.Context, key models.LoyaltyKey) (*models.LoyaltyAccount, error)
	SetLoyaltyExternalContactID(ctx context.Context, accountID, contactID string) error
	EnqueueCRMSync(ctx context.Context, entry *models.CRMSyncEntry) error
	ListDueCRMSyncs(ctx context.Context, now time.Time, limit int) ([]models.CRMSyncEntry, error)
	MarkCRMSyncSucceeded(ctx context.Context, id string) error
	RescheduleCRMSync(ctx context.Context, id string, retryCount int, next time.Time, lastErr string) error
	MarkCRMSyncFailed(ctx context.Context, id string, retryCount int, lastErr string) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is the full storage surface; both store.Store and memory.Store
// satisfy it.
type Repository interface {
	SaleRepository
	LoyaltyRepository
	SyncRepository
}

var (
	_ Repository = (*store.Store)(nil)
)
