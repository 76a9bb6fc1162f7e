package service

import (
	"context"
	"testing"
	"time"

	"pos-service/config"
	"pos-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	base, max := time.Second, 10*time.Second

	assert.Equal(t, time.Second, Backoff(base, max, 0))
	assert.Equal(t, 2*time.Second, Backoff(base, max, 1))
	assert.Equal(t, 8*time.Second, Backoff(base, max, 3))
	assert.Equal(t, max, Backoff(base, max, 4))
	assert.Equal(t, max, Backoff(base, max, 100))
}

func TestBuildVisitUsesCustomerRecord(t *testing.T) {
	email := "dana@example.com"
	event := &models.SaleCompletedEvent{
		OrderID:       "o-1",
		OrderNumber:   "POS-DOW-20260314-6535",
		CustomerID:    testCustomerID,
		CustomerName:  "Typed At Register",
		UserID:        "staff-1",
		SubtotalCents: 1999,
		TotalCents:    2159,
		Items:         []models.SaleItemData{{ProductID: "p", ProductName: "Tincture", Quantity: 1, UnitPriceCents: 1999, LineTotalCents: 1999}},
	}

	payload := BuildVisit(event, &models.Customer{ID: testCustomerID, Name: "Dana Reyes", Email: &email}, "aiq-9")

	assert.Equal(t, "Dana Reyes", payload.Member.Name)
	assert.Equal(t, email, payload.Member.Email)
	assert.Equal(t, "aiq-9", payload.Member.ContactID)
	assert.Equal(t, 21.59, payload.Visit.Total)
	assert.Equal(t, 19.99, payload.Visit.Items[0].UnitPrice)
	assert.Equal(t, "staff-1", payload.Visit.StaffID)
}

func TestHandleSaleCompletedProcessesOnce(t *testing.T) {
	f := newFixture(t, config.SyncModeOutbox)
	ctx := context.Background()
	event := &models.SaleCompletedEvent{
		BaseEvent:  models.BaseEvent{EventID: "ev-1", EventType: models.EventTypeSaleCompleted},
		OrderID:    "o-1",
		VendorID:   testVendorID,
		CustomerID: testCustomerID,
		TotalCents: 1000,
	}

	require.NoError(t, f.sync.HandleSaleCompleted(ctx, event))
	require.NoError(t, f.sync.HandleSaleCompleted(ctx, event))

	assert.Len(t, f.crm.Calls(), 1)
}

func TestHandleSaleCompletedBeforeLoyaltyCreditKeepsContact(t *testing.T) {
	f := newFixture(t, config.SyncModeOutbox)
	ctx := context.Background()
	event := &models.SaleCompletedEvent{
		BaseEvent:   models.BaseEvent{EventID: "ev-7", EventType: models.EventTypeSaleCompleted},
		OrderID:     "o-7",
		OrderNumber: "POS-DOW-20260314-6535",
		VendorID:    testVendorID,
		CustomerID:  testCustomerID,
		TotalCents:  4000,
	}

	require.NoError(t, f.sync.HandleSaleCompleted(ctx, event))

	key := models.LoyaltyKey{CustomerID: testCustomerID, VendorID: testVendorID, Provider: "alpineiq"}
	acct, err := f.repo.GetLoyaltyAccount(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, acct.ExternalContactID)
	assert.Equal(t, "aiq-1", *acct.ExternalContactID)
	assert.Equal(t, int64(0), acct.PointsBalance)

	res, err := f.loyalty.ApplySale(ctx, LoyaltySale{
		CustomerID:  testCustomerID,
		VendorID:    testVendorID,
		OrderID:     "o-7",
		OrderNumber: event.OrderNumber,
		TotalCents:  event.TotalCents,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.PointsEarned)

	acct, err = f.repo.GetLoyaltyAccount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(40), acct.PointsBalance)
	require.NotNil(t, acct.ExternalContactID)
	assert.Equal(t, "aiq-1", *acct.ExternalContactID)
	assert.Equal(t, 1, f.repo.LoyaltyAccountCount())
}

func TestHandleSaleCompletedSkipsWalkIns(t *testing.T) {
	f := newFixture(t, config.SyncModeOutbox)
	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: "ev-2", EventType: models.EventTypeSaleCompleted},
		OrderID:   "o-2",
	}

	require.NoError(t, f.sync.HandleSaleCompleted(context.Background(), event))
	assert.Empty(t, f.crm.Calls())

	processed, err := f.repo.IsEventProcessed(context.Background(), "ev-2")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleSaleCompletedQueuesOnFailure(t *testing.T) {
	f := newFixture(t, config.SyncModeOutbox)
	f.crm.SetErr(errCRMDown)
	event := &models.SaleCompletedEvent{
		BaseEvent:  models.BaseEvent{EventID: "ev-3", EventType: models.EventTypeSaleCompleted},
		OrderID:    "o-3",
		VendorID:   testVendorID,
		CustomerID: testCustomerID,
	}

	require.NoError(t, f.sync.HandleSaleCompleted(context.Background(), event))

	queued := f.repo.CRMSyncEntries()
	require.Len(t, queued, 1)
	assert.Equal(t, models.SyncStatusPending, queued[0].Status)
	assert.Equal(t, 0, queued[0].RetryCount)
}

func TestProcessRetriesBacksOffThenFails(t *testing.T) {
	f := newFixture(t, config.SyncModeInline)
	f.crm.SetErr(errCRMDown)
	ctx := context.Background()

	_, err := f.sales.CreateSale(ctx, withCustomer(saleRequest()))
	require.NoError(t, err)
	require.Len(t, f.repo.CRMSyncEntries(), 1)

	// Not due yet.
	n, err := f.sync.ProcessRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(time.Second)
	n, err = f.sync.ProcessRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	entry := f.repo.CRMSyncEntries()[0]
	assert.Equal(t, models.SyncStatusPending, entry.Status)
	assert.Equal(t, 1, entry.RetryCount)
	assert.Equal(t, f.clock.Now().Add(2*time.Second), entry.NextAttemptAt)

	f.clock.Advance(2 * time.Second)
	_, err = f.sync.ProcessRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.repo.CRMSyncEntries()[0].RetryCount)

	f.clock.Advance(4 * time.Second)
	_, err = f.sync.ProcessRetries(ctx)
	require.NoError(t, err)
	entry = f.repo.CRMSyncEntries()[0]
	assert.Equal(t, models.SyncStatusFailed, entry.Status)
	assert.Equal(t, 3, entry.RetryCount)

	f.clock.Advance(time.Hour)
	n, err = f.sync.ProcessRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessRetriesSucceedsAndBackfillsContact(t *testing.T) {
	f := newFixture(t, config.SyncModeInline)
	f.crm.SetErr(errCRMDown)
	ctx := context.Background()

	_, err := f.sales.CreateSale(ctx, withCustomer(saleRequest()))
	require.NoError(t, err)

	f.crm.SetErr(nil)
	f.clock.Advance(time.Second)
	_, err = f.sync.ProcessRetries(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusSucceeded, f.repo.CRMSyncEntries()[0].Status)
	acct, err := f.repo.GetLoyaltyAccount(ctx, models.LoyaltyKey{CustomerID: testCustomerID, VendorID: testVendorID, Provider: "alpineiq"})
	require.NoError(t, err)
	require.NotNil(t, acct.ExternalContactID)
	assert.Equal(t, "aiq-1", *acct.ExternalContactID)
}
