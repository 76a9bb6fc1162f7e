package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pos-service/config"
	"pos-service/internal/crm"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/jmoiron/sqlx/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CRMClient pushes visits to the external CRM
type CRMClient interface {
	PushVisit(ctx context.Context, payload crm.VisitPayload) (*crm.PushResult, error)
}

// AccountOpener opens a customer's loyalty account without crediting
// points, so a CRM contact can be attached before the sale is credited.
type AccountOpener interface {
	OpenAccount(ctx context.Context, customerID, vendorID string) (*models.LoyaltyAccount, error)
}

// SyncService pushes committed sales to the CRM and owns the retry queue
type SyncService struct {
	repo     SyncRepository
	client   CRMClient
	accounts AccountOpener
	provider string
	cfg      config.CRMConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewSyncService creates a sync service. accounts and now may be nil.
func NewSyncService(repo SyncRepository, client CRMClient, accounts AccountOpener, provider string, cfg config.CRMConfig, now func() time.Time) *SyncService {
	if now == nil {
		now = time.Now
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	if cfg.RetryBatch <= 0 {
		cfg.RetryBatch = 50
	}
	return &SyncService{
		repo:     repo,
		client:   client,
		accounts: accounts,
		provider: provider,
		cfg:      cfg,
		now:      now,
		logger:   util.GetLogger(),
	}
}

// SyncOutcome reports what happened to one push
type SyncOutcome struct {
	Synced    bool
	Queued    bool
	ContactID string
	Error     string
}

// BuildVisit assembles the CRM payload for a sale. customer and contactID
// are optional.
func BuildVisit(event *models.SaleCompletedEvent, customer *models.Customer, contactID string) crm.VisitPayload {
	member := crm.Member{
		ContactID:  contactID,
		CustomerID: event.CustomerID,
		Name:       event.CustomerName,
	}
	if customer != nil {
		if customer.Name != "" {
			member.Name = customer.Name
		}
		if customer.Email != nil {
			member.Email = *customer.Email
		}
		if customer.Phone != nil {
			member.Phone = *customer.Phone
		}
	}

	items := make([]crm.VisitItem, 0, len(event.Items))
	for _, item := range event.Items {
		items = append(items, crm.VisitItem{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			SKU:       item.SKU,
			Category:  item.Category,
			Quantity:  item.Quantity,
			UnitPrice: toDollars(item.UnitPriceCents),
			LineTotal: toDollars(item.LineTotalCents),
		})
	}

	return crm.VisitPayload{
		Member: member,
		Visit: crm.Visit{
			OrderID:       event.OrderID,
			OrderNumber:   event.OrderNumber,
			VendorID:      event.VendorID,
			LocationID:    event.LocationID,
			StaffID:       event.UserID,
			PaymentMethod: event.PaymentMethod,
			Subtotal:      toDollars(event.SubtotalCents),
			Tax:           toDollars(event.TaxCents),
			Total:         toDollars(event.TotalCents),
			Items:         items,
			VisitedAt:     event.Timestamp,
		},
	}
}

// SyncSale pushes a sale now and queues a retry when the push fails. Walk-in
// sales are skipped. Queueing failures are logged, never returned: the sale
// is already committed.
func (s *SyncService) SyncSale(ctx context.Context, event *models.SaleCompletedEvent) SyncOutcome {
	if event.CustomerID == "" {
		return SyncOutcome{}
	}

	ctx, span := util.StartSpan(ctx, "SyncService.SyncSale", attribute.String("order_id", event.OrderID))
	defer span.End()

	payload := s.buildPayload(ctx, event)
	contactID, err := s.push(ctx, payload)
	if err == nil {
		return SyncOutcome{Synced: true, ContactID: contactID}
	}

	util.RecordError(span, err)
	s.logger.Error("CRM sync failed, queueing retry",
		zap.String("order_id", event.OrderID),
		zap.String("customer_id", event.CustomerID),
		zap.Error(err))

	outcome := SyncOutcome{Error: err.Error()}
	if qerr := s.enqueue(ctx, event, payload, err); qerr != nil {
		s.logger.Error("Failed to queue CRM retry", zap.String("order_id", event.OrderID), zap.Error(qerr))
		util.DegradedStepsTotal.WithLabelValues("crm_queue").Inc()
		return outcome
	}
	outcome.Queued = true
	return outcome
}

// HandleSaleCompleted is the consumer side of the outbox. Each event id is
// processed once; a returned error leaves the message uncommitted.
func (s *SyncService) HandleSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	processed, err := s.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check processed event: %w", err)
	}
	if processed {
		s.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	outcome := s.SyncSale(ctx, event)
	if !outcome.Synced && !outcome.Queued && outcome.Error != "" {
		return fmt.Errorf("crm sync for order %s neither succeeded nor queued: %s", event.OrderID, outcome.Error)
	}

	if err := s.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// ProcessRetries retries due queue entries once. Failed attempts back off
// exponentially; an entry that reaches MaxRetries is marked failed. It
// returns how many entries were attempted.
func (s *SyncService) ProcessRetries(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.ProcessRetries")
	defer span.End()

	now := s.now()
	due, err := s.repo.ListDueCRMSyncs(ctx, now, s.cfg.RetryBatch)
	if err != nil {
		util.RecordError(span, err)
		return 0, fmt.Errorf("failed to list due crm syncs: %w", err)
	}

	for _, entry := range due {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.retry(ctx, entry, now)
	}
	return len(due), nil
}

func (s *SyncService) retry(ctx context.Context, entry models.CRMSyncEntry, now time.Time) {
	attempt := entry.RetryCount + 1

	var payload crm.VisitPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		s.logger.Error("Dropping undecodable CRM retry", zap.String("entry_id", entry.ID), zap.Error(err))
		if err := s.repo.MarkCRMSyncFailed(ctx, entry.ID, attempt, err.Error()); err != nil {
			s.logger.Error("Failed to mark CRM retry failed", zap.String("entry_id", entry.ID), zap.Error(err))
		}
		return
	}

	if _, err := s.push(ctx, payload); err != nil {
		if attempt >= s.cfg.MaxRetries {
			s.logger.Error("CRM sync gave up",
				zap.String("entry_id", entry.ID),
				zap.String("order_id", entry.OrderID),
				zap.Int("retry_count", attempt),
				zap.Error(err))
			if merr := s.repo.MarkCRMSyncFailed(ctx, entry.ID, attempt, err.Error()); merr != nil {
				s.logger.Error("Failed to mark CRM retry failed", zap.String("entry_id", entry.ID), zap.Error(merr))
			}
			return
		}

		next := now.Add(Backoff(s.cfg.RetryBase, s.cfg.RetryMax, attempt))
		s.logger.Warn("CRM retry failed",
			zap.String("entry_id", entry.ID),
			zap.Int("retry_count", attempt),
			zap.Time("next_attempt_at", next),
			zap.Error(err))
		if rerr := s.repo.RescheduleCRMSync(ctx, entry.ID, attempt, next, err.Error()); rerr != nil {
			s.logger.Error("Failed to reschedule CRM retry", zap.String("entry_id", entry.ID), zap.Error(rerr))
		}
		return
	}

	if err := s.repo.MarkCRMSyncSucceeded(ctx, entry.ID); err != nil {
		s.logger.Error("Failed to mark CRM retry succeeded", zap.String("entry_id", entry.ID), zap.Error(err))
	}
}

// Backoff is base * 2^retry, capped at max
func Backoff(base, max time.Duration, retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry >= 32 {
		return max
	}
	d := base << uint(retry)
	if d <= 0 || d > max {
		return max
	}
	return d
}

func (s *SyncService) buildPayload(ctx context.Context, event *models.SaleCompletedEvent) crm.VisitPayload {
	customer, err := s.repo.GetCustomer(ctx, event.CustomerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Customer lookup failed, syncing with sale data only",
				zap.String("customer_id", event.CustomerID), zap.Error(err))
		}
		customer = nil
	}

	contactID := ""
	if acct, err := s.loyaltyAccount(ctx, event.CustomerID, event.VendorID); err == nil && acct.ExternalContactID != nil {
		contactID = *acct.ExternalContactID
	}

	return BuildVisit(event, customer, contactID)
}

// push sends one visit and back-fills the contact id on success
func (s *SyncService) push(ctx context.Context, payload crm.VisitPayload) (string, error) {
	if s.client == nil {
		return "", errors.New("crm client not configured")
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.client.PushVisit(ctx, payload)
	util.CRMSyncLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.CRMSyncTotal.WithLabelValues("failed").Inc()
		return "", err
	}
	util.CRMSyncTotal.WithLabelValues("succeeded").Inc()

	if res != nil && res.ContactID != "" {
		s.backfillContact(ctx, payload.Member.CustomerID, payload.Visit.VendorID, res.ContactID)
		return res.ContactID, nil
	}
	return "", nil
}

// backfillContact stores the CRM contact on the loyalty account. In outbox
// mode the push can beat the sale's loyalty credit, so a missing account is
// opened here rather than losing the contact id.
func (s *SyncService) backfillContact(ctx context.Context, customerID, vendorID, contactID string) {
	acct, err := s.loyaltyAccount(ctx, customerID, vendorID)
	if errors.Is(err, store.ErrNotFound) && s.accounts != nil {
		acct, err = s.accounts.OpenAccount(ctx, customerID, vendorID)
	}
	if err != nil {
		s.logger.Warn("Loyalty account unavailable for CRM contact back-fill",
			zap.String("customer_id", customerID), zap.Error(err))
		return
	}
	if acct.ExternalContactID != nil {
		return
	}
	if err := s.repo.SetLoyaltyExternalContactID(ctx, acct.ID, contactID); err != nil {
		s.logger.Warn("Failed to store CRM contact id",
			zap.String("customer_id", customerID), zap.Error(err))
	}
}

func (s *SyncService) loyaltyAccount(ctx context.Context, customerID, vendorID string) (*models.LoyaltyAccount, error) {
	return s.repo.GetLoyaltyAccount(ctx, models.LoyaltyKey{
		CustomerID: customerID,
		VendorID:   vendorID,
		Provider:   s.provider,
	})
}

func (s *SyncService) enqueue(ctx context.Context, event *models.SaleCompletedEvent, payload crm.VisitPayload, cause error) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal crm payload: %w", err)
	}

	customerID := event.CustomerID
	lastErr := cause.Error()
	return s.repo.EnqueueCRMSync(ctx, &models.CRMSyncEntry{
		OrderID:       event.OrderID,
		CustomerID:    &customerID,
		Payload:       types.JSONText(raw),
		Status:        models.SyncStatusPending,
		RetryCount:    0,
		LastError:     &lastErr,
		NextAttemptAt: s.now().Add(s.cfg.RetryBase),
	})
}
