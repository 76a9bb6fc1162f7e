// Package memory is an in-process repository used by tests and by local runs
// without DATABASE_URL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu              sync.RWMutex
	locations       map[string]models.Location
	customers       map[string]models.Customer
	inventory       map[string]models.InventoryRecord
	orders          map[string]models.Order
	orderNumbers    map[string]string
	idempotency     map[string]string
	orderItems      map[string][]models.OrderItem
	posTransactions []models.POSTransaction
	loyalty         map[models.LoyaltyKey]*models.LoyaltyAccount
	loyaltyTx       []models.LoyaltyTransaction
	outbox          []models.OutboxEvent
	crmQueue        map[string]models.CRMSyncEntry
	processed       map[string]string

	// FailOrderItems, when set, makes the next CreateSale fail while
	// writing order items.
	FailOrderItems error
	// FailPOSTransactions makes CreatePOSTransaction fail.
	FailPOSTransactions error
	// FailLoyalty makes ApplyLoyalty fail.
	FailLoyalty error
}

func New() *Store {
	return &Store{
		locations:    make(map[string]models.Location),
		customers:    make(map[string]models.Customer),
		inventory:    make(map[string]models.InventoryRecord),
		orders:       make(map[string]models.Order),
		orderNumbers: make(map[string]string),
		idempotency:  make(map[string]string),
		orderItems:   make(map[string][]models.OrderItem),
		loyalty:      make(map[models.LoyaltyKey]*models.LoyaltyAccount),
		crmQueue:     make(map[string]models.CRMSyncEntry),
		processed:    make(map[string]string),
	}
}

// AddLocation seeds a location
func (s *Store) AddLocation(loc models.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[loc.ID] = loc
}

// AddCustomer seeds a customer
func (s *Store) AddCustomer(c models.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// AddInventory seeds an inventory record
func (s *Store) AddInventory(rec models.InventoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	s.inventory[rec.ID] = rec
}

// AddLoyaltyAccount seeds a loyalty account
func (s *Store) AddLoyaltyAccount(acct models.LoyaltyAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	key := models.LoyaltyKey{CustomerID: acct.CustomerID, VendorID: acct.VendorID, Provider: acct.Provider}
	s.loyalty[key] = &acct
}

func (s *Store) GetLocation(_ context.Context, id string) (*models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[id]
	if !ok {
		return nil, fmt.Errorf("location %s: %w", id, store.ErrNotFound)
	}
	return &loc, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) GetInventoryRecord(_ context.Context, id string) (*models.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.inventory[id]
	if !ok {
		return nil, fmt.Errorf("inventory %s: %w", id, store.ErrNotFound)
	}
	return &rec, nil
}

func (s *Store) DecrementInventory(_ context.Context, id string, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementLocked(id, quantity)
}

func (s *Store) IncrementInventory(_ context.Context, id string, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inventory[id]
	if !ok {
		return 0, fmt.Errorf("inventory %s: %w", id, store.ErrNotFound)
	}
	rec.Quantity += quantity
	rec.UpdatedAt = time.Now().UTC()
	s.inventory[id] = rec
	return rec.Quantity, nil
}

func (s *Store) decrementLocked(id string, quantity int) (int, error) {
	rec, ok := s.inventory[id]
	if !ok {
		return 0, &store.InsufficientInventoryError{InventoryID: id, Requested: quantity, Missing: true}
	}
	if rec.Quantity < quantity {
		return 0, &store.InsufficientInventoryError{InventoryID: id, Requested: quantity, Available: rec.Quantity}
	}
	rec.Quantity -= quantity
	rec.UpdatedAt = time.Now().UTC()
	s.inventory[id] = rec
	return rec.Quantity, nil
}

func (s *Store) CreateSale(_ context.Context, sale *store.SaleWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := make(map[string]models.InventoryRecord, len(sale.Items))
	rollback := func() {
		for id, rec := range before {
			s.inventory[id] = rec
		}
	}

	for _, item := range sale.Items {
		if _, seen := before[item.InventoryID]; !seen {
			if rec, ok := s.inventory[item.InventoryID]; ok {
				before[item.InventoryID] = rec
			}
		}
		if _, err := s.decrementLocked(item.InventoryID, item.Quantity); err != nil {
			rollback()
			return err
		}
	}

	order := sale.Order
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if _, exists := s.orderNumbers[order.OrderNumber]; exists {
		rollback()
		return fmt.Errorf("order number %s: %w", order.OrderNumber, store.ErrDuplicateOrderNumber)
	}
	if order.IdempotencyKey != nil {
		if _, exists := s.idempotency[*order.IdempotencyKey]; exists {
			rollback()
			return store.ErrDuplicateIdempotencyKey
		}
	}

	if s.FailOrderItems != nil {
		err := s.FailOrderItems
		s.FailOrderItems = nil
		rollback()
		return fmt.Errorf("failed to create order item: %w", err)
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	items := make([]models.OrderItem, len(sale.Items))
	for i := range sale.Items {
		sale.Items[i].OrderID = order.ID
		sale.Items[i].LineNo = i + 1
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = uuid.New().String()
		}
		items[i] = sale.Items[i]
	}

	s.orders[order.ID] = *order
	s.orderNumbers[order.OrderNumber] = order.ID
	if order.IdempotencyKey != nil {
		s.idempotency[*order.IdempotencyKey] = order.ID
	}
	s.orderItems[order.ID] = items

	if sale.Outbox != nil {
		if sale.Outbox.ID == "" {
			sale.Outbox.ID = uuid.New().String()
		}
		sale.Outbox.CreatedAt = now
		s.outbox = append(s.outbox, *sale.Outbox)
	}
	return nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	return &order, nil
}

func (s *Store) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idempotency[key]
	if !ok {
		return nil, nil
	}
	order := s.orders[id]
	return &order, nil
}

func (s *Store) GetOrderItemsByOrderID(_ context.Context, orderID string) ([]models.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.orderItems[orderID]
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	return out, nil
}

// Orders returns every stored order
func (s *Store) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) CreatePOSTransaction(_ context.Context, t *models.POSTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPOSTransactions != nil {
		return s.FailPOSTransactions
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()
	s.posTransactions = append(s.posTransactions, *t)
	return nil
}

// POSTransactions returns every recorded POS transaction
func (s *Store) POSTransactions() []models.POSTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.POSTransaction(nil), s.posTransactions...)
}

func (s *Store) GetLoyaltyAccount(_ context.Context, key models.LoyaltyKey) (*models.LoyaltyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.loyalty[key]
	if !ok {
		return nil, fmt.Errorf("loyalty account for customer %s: %w", key.CustomerID, store.ErrNotFound)
	}
	cp := *acct
	return &cp, nil
}

func (s *Store) ApplyLoyalty(_ context.Context, seed *models.LoyaltyAccount, fn store.LoyaltyMutation) (*models.LoyaltyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLoyalty != nil {
		return nil, s.FailLoyalty
	}

	key := models.LoyaltyKey{CustomerID: seed.CustomerID, VendorID: seed.VendorID, Provider: seed.Provider}
	now := time.Now().UTC()
	current, ok := s.loyalty[key]
	created := !ok
	var working models.LoyaltyAccount
	if ok {
		working = *current
	} else {
		working = models.LoyaltyAccount{
			ID:         uuid.New().String(),
			CustomerID: seed.CustomerID,
			VendorID:   seed.VendorID,
			Provider:   seed.Provider,
			TierName:   seed.TierName,
			TierLevel:  seed.TierLevel,
			CreatedAt:  now,
		}
	}

	entries, err := fn(&working, created)
	if err != nil {
		return nil, err
	}
	working.UpdatedAt = now
	s.loyalty[key] = &working

	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		entry.AccountID = working.ID
		entry.CreatedAt = now
		entry.Seq = int64(len(s.loyaltyTx) + 1)
		s.loyaltyTx = append(s.loyaltyTx, entry)
	}

	cp := working
	return &cp, nil
}

func (s *Store) SetLoyaltyExternalContactID(_ context.Context, accountID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.loyalty {
		if acct.ID == accountID && acct.ExternalContactID == nil {
			id := contactID
			acct.ExternalContactID = &id
			acct.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *Store) ListLoyaltyTransactions(_ context.Context, accountID string) ([]models.LoyaltyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LoyaltyTransaction
	for _, entry := range s.loyaltyTx {
		if entry.AccountID == accountID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// LoyaltyAccountCount reports how many loyalty accounts exist
func (s *Store) LoyaltyAccountCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loyalty)
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OutboxEvent
	for _, ev := range s.outbox {
		if ev.PublishedAt == nil {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id && s.outbox[i].PublishedAt == nil {
			t := at
			s.outbox[i].PublishedAt = &t
		}
	}
	return nil
}

// OutboxEvents returns every outbox row
func (s *Store) OutboxEvents() []models.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OutboxEvent(nil), s.outbox...)
}

func (s *Store) EnqueueCRMSync(_ context.Context, entry *models.CRMSyncEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.crmQueue[entry.ID] = *entry
	return nil
}

func (s *Store) ListDueCRMSyncs(_ context.Context, now time.Time, limit int) ([]models.CRMSyncEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CRMSyncEntry
	for _, entry := range s.crmQueue {
		if entry.Status == models.SyncStatusPending && !entry.NextAttemptAt.After(now) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkCRMSyncSucceeded(_ context.Context, id string) error {
	return s.updateCRMSync(id, func(e *models.CRMSyncEntry) {
		e.Status = models.SyncStatusSucceeded
	})
}

func (s *Store) RescheduleCRMSync(_ context.Context, id string, retryCount int, next time.Time, lastErr string) error {
	return s.updateCRMSync(id, func(e *models.CRMSyncEntry) {
		e.RetryCount = retryCount
		e.NextAttemptAt = next
		e.LastError = &lastErr
	})
}

func (s *Store) MarkCRMSyncFailed(_ context.Context, id string, retryCount int, lastErr string) error {
	return s.updateCRMSync(id, func(e *models.CRMSyncEntry) {
		e.Status = models.SyncStatusFailed
		e.RetryCount = retryCount
		e.LastError = &lastErr
	})
}

func (s *Store) updateCRMSync(id string, fn func(*models.CRMSyncEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.crmQueue[id]
	if !ok {
		return fmt.Errorf("crm sync entry %s: %w", id, store.ErrNotFound)
	}
	fn(&entry)
	entry.UpdatedAt = time.Now().UTC()
	s.crmQueue[id] = entry
	return nil
}

// CRMSyncEntries returns every queued CRM push, oldest first
func (s *Store) CRMSyncEntries() []models.CRMSyncEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CRMSyncEntry, 0, len(s.crmQueue))
	for _, e := range s.crmQueue {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = eventType
	return nil
}

func (s *Store) SalesSummary(_ context.Context, vendorID string, from, to time.Time) ([]models.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		day        time.Time
		locationID string
	}
	groups := make(map[key]*models.SalesSummary)
	for _, o := range s.orders {
		if o.VendorID != vendorID || o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		day := o.CreatedAt.Truncate(24 * time.Hour)
		k := key{day: day, locationID: o.LocationID}
		row, ok := groups[k]
		if !ok {
			row = &models.SalesSummary{Day: day, LocationID: o.LocationID, LocationName: s.locations[o.LocationID].Name}
			groups[k] = row
		}
		row.Orders++
		for _, item := range s.orderItems[o.ID] {
			row.Units += item.Quantity
		}
		row.SubtotalCents += o.SubtotalCents
		row.TaxCents += o.TaxCents
		row.TotalCents += o.TotalCents
	}

	out := make([]models.SalesSummary, 0, len(groups))
	for _, row := range groups {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].LocationName < out[j].LocationName
	})
	return out, nil
}
