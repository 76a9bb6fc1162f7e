package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pos-service/config"
	"pos-service/internal/crm"
	"pos-service/internal/loyalty"
	"pos-service/internal/models"
	"pos-service/internal/store/memory"
)

var _ Repository = (*memory.Store)(nil)

const (
	testLocationID        = "3b6caec7-5ab0-4755-b19d-6eece3362c55"
	testUnknownLocationID = "27d95055-4471-4e79-8819-3ef1a67302bb"
	testVendorID          = "8d9fc57f-c58c-4cb1-b09a-df997abc28f9"
	testCustomerID        = "b6a7e315-bead-4afc-8885-118059b5e07f"
	testOtherCustomerID   = "ce8174c2-f100-43f2-bbd8-2cb64cbe3b6e"
	testInventoryA        = "e3e2d767-38f4-4a6c-ab43-c9d29028ec9d"
	testInventoryB        = "a4789acf-de79-46a5-93f6-8779d7293813"
	testInventoryC        = "df789834-981e-4207-bd93-e2e40e496ac4"
	testProductA          = "45ff2ad3-1c6b-4545-bd55-944f95f2e911"
	testProductB          = "0d2c87c5-699f-41e6-b873-66a4ae8989c6"
	testProductC          = "6f8ae6c7-88f0-498f-a813-e22b8a137018"
	testMissingID         = "5963d5c1-cdbb-478f-a9d7-9c3684fc06ae"
)

type fakeCRM struct {
	mu        sync.Mutex
	calls     []crm.VisitPayload
	err       error
	contactID string
}

func (f *fakeCRM) PushVisit(_ context.Context, payload crm.VisitPayload) (*crm.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, payload)
	if f.err != nil {
		return nil, f.err
	}
	return &crm.PushResult{ContactID: f.contactID}, nil
}

func (f *fakeCRM) Calls() []crm.VisitPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]crm.VisitPayload(nil), f.calls...)
}

func (f *fakeCRM) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (g *fakeGuard) ObserveSale(_ context.Context, locationID string, totalCents int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.seen == nil {
		g.seen = make(map[string]bool)
	}
	key := fmt.Sprintf("%s:%d", locationID, totalCents)
	dup := g.seen[key]
	g.seen[key] = true
	return dup, nil
}

var errCRMDown = errors.New("crm unavailable")

type fixture struct {
	repo    *memory.Store
	crm     *fakeCRM
	guard   *fakeGuard
	sync    *SyncService
	loyalty *LoyaltyService
	sales   *SaleService
	clock   *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func crmConfig(mode string) config.CRMConfig {
	return config.CRMConfig{
		Timeout:    time.Second,
		SyncMode:   mode,
		MaxRetries: 3,
		RetryBase:  time.Second,
		RetryMax:   10 * time.Second,
		RetryBatch: 10,
	}
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()
	repo := memory.New()
	repo.AddLocation(models.Location{ID: testLocationID, VendorID: testVendorID, Slug: "downtown", Name: "Downtown"})
	repo.AddCustomer(models.Customer{ID: testCustomerID, VendorID: testVendorID, Name: "Dana Reyes"})
	repo.AddInventory(models.InventoryRecord{ID: testInventoryA, ProductID: testProductA, LocationID: testLocationID, Quantity: 5})
	repo.AddInventory(models.InventoryRecord{ID: testInventoryB, ProductID: testProductB, LocationID: testLocationID, Quantity: 10})

	clock := &testClock{now: time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC)}
	client := &fakeCRM{contactID: "aiq-1"}
	guard := &fakeGuard{}
	loyaltySvc := NewLoyaltyService(repo, loyalty.DefaultTiers, "alpineiq")
	syncSvc := NewSyncService(repo, client, loyaltySvc, "alpineiq", crmConfig(mode), clock.Now)
	sales := NewSaleService(repo, loyaltySvc, syncSvc, guard, NewOrderNumberGenerator(clock.Now), mode)

	return &fixture{
		repo:    repo,
		crm:     client,
		guard:   guard,
		sync:    syncSvc,
		loyalty: loyaltySvc,
		sales:   sales,
		clock:   clock,
	}
}

func saleRequest() *CreateSaleRequest {
	return &CreateSaleRequest{
		LocationID: testLocationID,
		VendorID:   testVendorID,
		SessionID:  "session-1",
		UserID:     "staff-1",
		Items: []SaleItemRequest{
			{ProductID: testProductA, ProductName: "Blue Dream 3.5g", UnitPrice: 10, Quantity: 2, LineTotal: 20, InventoryID: testInventoryA, Category: "flower"},
			{ProductID: testProductB, ProductName: "Gummies 10pk", UnitPrice: 5, Quantity: 1, LineTotal: 5, InventoryID: testInventoryB, SKU: "GUM-10"},
		},
		Subtotal:      25,
		TaxAmount:     0,
		Total:         25,
		PaymentMethod: models.PaymentMethodCash,
	}
}

func withCustomer(req *CreateSaleRequest) *CreateSaleRequest {
	req.CustomerID = testCustomerID
	req.CustomerName = "Dana Reyes"
	return req
}
