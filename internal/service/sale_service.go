package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pos-service/config"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxOrderNumberAttempts bounds regeneration after an order number collision
const maxOrderNumberAttempts = 3

// DuplicateGuard flags identical sale amounts at a location in a short
// window. It only observes; it never blocks a sale.
type DuplicateGuard interface {
	ObserveSale(ctx context.Context, locationID string, totalCents int64) (bool, error)
}

// SaleService runs the POS create sale workflow
type SaleService struct {
	repo     SaleRepository
	loyalty  *LoyaltyService
	sync     *SyncService
	guard    DuplicateGuard
	numbers  *OrderNumberGenerator
	syncMode string
	logger   *zap.Logger
}

// NewSaleService wires the sale workflow. guard may be nil.
func NewSaleService(
	repo SaleRepository,
	loyalty *LoyaltyService,
	sync *SyncService,
	guard DuplicateGuard,
	numbers *OrderNumberGenerator,
	syncMode string,
) *SaleService {
	if numbers == nil {
		numbers = NewOrderNumberGenerator(nil)
	}
	if syncMode != config.SyncModeInline {
		syncMode = config.SyncModeOutbox
	}
	return &SaleService{
		repo:     repo,
		loyalty:  loyalty,
		sync:     sync,
		guard:    guard,
		numbers:  numbers,
		syncMode: syncMode,
		logger:   util.GetLogger(),
	}
}

// CreateSaleResponse is the success body of a sale
type CreateSaleResponse struct {
	Success        bool                   `json:"success"`
	Order          *OrderView       `json:"order"`
	Transaction    *TransactionView `json:"transaction"`
	OrderNumber    string           `json:"orderNumber"`
	PointsEarned   int64            `json:"pointsEarned"`
	NewTier        *string          `json:"newTier"`
	AlpineIQSynced bool             `json:"alpineIQSynced"`
	AlpineIQError  *string          `json:"alpineIQError"`
	Message        string           `json:"message"`
	Loyalty        *LoyaltyResult   `json:"loyalty"`
}

const (
	messageSaleCompleted = "Sale completed successfully"
	messageSyncQueued    = "Sale completed successfully; CRM sync queued"
	messageSyncRetry     = "Sale completed successfully; CRM sync failed and was queued for retry"
	messageDuplicate     = "duplicate request"
)

// CreateSale validates, checks stock, commits the order with its items and
// stock decrements in one transaction, then runs the non-fatal follow-ups:
// POS audit row, loyalty and CRM sync.
func (s *SaleService) CreateSale(ctx context.Context, req *CreateSaleRequest) (*CreateSaleResponse, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.CreateSale",
		attribute.String("location_id", req.LocationID),
		attribute.String("vendor_id", req.VendorID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.SaleLatency.Observe(time.Since(start).Seconds())
	}()

	if err := ValidateSaleRequest(req); err != nil {
		util.SalesFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, &PersistenceError{Op: "check idempotency", Err: err}
		}
		if existing != nil {
			return s.replay(ctx, existing)
		}
	}

	if err := VerifyInventory(ctx, s.repo, req.Items); err != nil {
		s.countFailure(err)
		return nil, err
	}

	subtotal, tax, total := toCents(req.Subtotal), toCents(req.TaxAmount), toCents(req.Total)
	s.checkDuplicate(ctx, req.LocationID, total)

	slug := ""
	if loc, err := s.repo.GetLocation(ctx, req.LocationID); err == nil {
		slug = loc.Slug
	} else if !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("Location lookup failed, using default order code",
			zap.String("location_id", req.LocationID), zap.Error(err))
	}

	order, err := s.newOrder(req, subtotal, tax, total)
	if err != nil {
		return nil, &PersistenceError{Op: "encode order metadata", Err: err}
	}
	items := newOrderItems(req.Items)

	event, err := s.commit(ctx, req, order, items, slug)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			existing, lookupErr := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return s.replay(ctx, existing)
			}
		}
		util.RecordError(span, err)
		s.countFailure(err)
		return nil, err
	}

	util.SalesCreatedTotal.Inc()
	s.logger.Info("Sale committed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_cents", total))

	resp := &CreateSaleResponse{
		Success:     true,
		Order:       newOrderView(order, items),
		OrderNumber: order.OrderNumber,
		Message:     messageSaleCompleted,
	}

	resp.Transaction = newTransactionView(s.recordTransaction(ctx, req, order))

	if req.CustomerID == "" {
		return resp, nil
	}

	if s.loyalty != nil {
		result, err := s.loyalty.ApplySale(ctx, LoyaltySale{
			CustomerID:  req.CustomerID,
			VendorID:    req.VendorID,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			TotalCents:  total,
		})
		if err != nil {
			util.DegradedStepsTotal.WithLabelValues("loyalty").Inc()
			s.logger.Error("Loyalty update failed after sale",
				zap.String("order_id", order.ID),
				zap.String("customer_id", req.CustomerID),
				zap.Error(err))
		} else {
			resp.Loyalty = result
			resp.PointsEarned = result.PointsEarned
			tier := result.Tier
			resp.NewTier = &tier
		}
	}

	switch {
	case s.syncMode == config.SyncModeOutbox:
		resp.Message = messageSyncQueued
	case s.sync != nil:
		outcome := s.sync.SyncSale(ctx, event)
		resp.AlpineIQSynced = outcome.Synced
		if !outcome.Synced {
			msg := outcome.Error
			resp.AlpineIQError = &msg
			resp.Message = messageSyncRetry
		}
	}

	return resp, nil
}

// commit writes the sale, regenerating the order number on collision
func (s *SaleService) commit(ctx context.Context, req *CreateSaleRequest, order *models.Order, items []models.OrderItem, slug string) (*models.SaleCompletedEvent, error) {
	var lastErr error
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = s.numbers.Next(slug)
		event := newSaleCompletedEvent(req, order, items)

		write := &store.SaleWrite{Order: order, Items: items}
		if s.syncMode == config.SyncModeOutbox {
			payload, err := json.Marshal(event)
			if err != nil {
				return nil, &PersistenceError{Op: "encode sale event", Err: err}
			}
			write.Outbox = &models.OutboxEvent{
				ID:          event.EventID,
				AggregateID: order.ID,
				EventType:   models.EventTypeSaleCompleted,
				Payload:     types.JSONText(payload),
			}
		}

		err := s.repo.CreateSale(ctx, write)
		if err == nil {
			return event, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, store.ErrDuplicateOrderNumber):
			s.logger.Warn("Order number collision, regenerating",
				zap.String("order_number", order.OrderNumber),
				zap.Int("attempt", attempt))
			continue
		case errors.Is(err, store.ErrDuplicateIdempotencyKey):
			return nil, err
		case errors.Is(err, store.ErrInsufficientInventory):
			s.logger.Error("Inventory decrement lost a race, sale rolled back",
				zap.Bool("critical", true),
				zap.String("location_id", req.LocationID),
				zap.Error(err))
			return nil, shortageFor(err, req.Items)
		default:
			return nil, &PersistenceError{Op: "create order", Err: err}
		}
	}
	return nil, &PersistenceError{Op: "allocate order number", Err: lastErr}
}

// newOrder builds the order header. The id is assigned up front so the
// outbox event can reference it inside the same transaction.
func (s *SaleService) newOrder(req *CreateSaleRequest, subtotal, tax, total int64) (*models.Order, error) {
	metadata := map[string]interface{}{"source": "pos"}
	if req.SessionID != "" {
		metadata["sessionId"] = req.SessionID
	}
	if req.UserID != "" {
		metadata["userId"] = req.UserID
	}
	if req.CustomerName != "" {
		metadata["customerName"] = req.CustomerName
	}
	if req.CashTendered != nil {
		metadata["cashTendered"] = *req.CashTendered
	}
	if req.ChangeGiven != nil {
		metadata["changeGiven"] = *req.ChangeGiven
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:                uuid.New().String(),
		VendorID:          req.VendorID,
		LocationID:        req.LocationID,
		Status:            models.OrderStatusCompleted,
		PaymentStatus:     models.PaymentStatusPaid,
		FulfillmentStatus: models.FulfillmentFulfilled,
		SubtotalCents:     subtotal,
		TaxCents:          tax,
		TotalCents:        total,
		PaymentMethod:     req.PaymentMethod,
		Metadata:          types.JSONText(raw),
	}
	if req.CustomerID != "" {
		customerID := req.CustomerID
		order.CustomerID = &customerID
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}
	return order, nil
}

func newOrderItems(lines []SaleItemRequest) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			ProductID:      line.ProductID,
			InventoryID:    line.InventoryID,
			ProductName:    line.ProductName,
			SKU:            line.SKU,
			Category:       line.Category,
			Quantity:       line.Quantity,
			UnitPriceCents: toCents(line.UnitPrice),
			LineTotalCents: toCents(line.LineTotal),
		})
	}
	return items
}

func newSaleCompletedEvent(req *CreateSaleRequest, order *models.Order, items []models.OrderItem) *models.SaleCompletedEvent {
	data := make([]models.SaleItemData, 0, len(items))
	for _, item := range items {
		data = append(data, models.SaleItemData{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			Category:       item.Category,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}

	return &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompleted,
			Timestamp: time.Now().UTC(),
		},
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		VendorID:      order.VendorID,
		LocationID:    order.LocationID,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		UserID:        req.UserID,
		PaymentMethod: order.PaymentMethod,
		SubtotalCents: order.SubtotalCents,
		TaxCents:      order.TaxCents,
		TotalCents:    order.TotalCents,
		Items:         data,
	}
}

// recordTransaction writes the POS audit row. Failure is logged only.
func (s *SaleService) recordTransaction(ctx context.Context, req *CreateSaleRequest, order *models.Order) *models.POSTransaction {
	orderID := order.ID
	tx := &models.POSTransaction{
		OrderID:         &orderID,
		VendorID:        req.VendorID,
		LocationID:      req.LocationID,
		TransactionType: models.POSTransactionSale,
		PaymentMethod:   req.PaymentMethod,
		AmountCents:     order.TotalCents,
		Status:          models.POSTransactionCompleted,
	}
	if req.SessionID != "" {
		sessionID := req.SessionID
		tx.SessionID = &sessionID
	}
	if req.UserID != "" {
		userID := req.UserID
		tx.UserID = &userID
	}
	if req.CashTendered != nil {
		cents := toCents(*req.CashTendered)
		tx.CashTenderedCents = &cents
	}
	if req.ChangeGiven != nil {
		cents := toCents(*req.ChangeGiven)
		tx.ChangeGivenCents = &cents
	}

	if err := s.repo.CreatePOSTransaction(ctx, tx); err != nil {
		util.DegradedStepsTotal.WithLabelValues("pos_transaction").Inc()
		s.logger.Error("Failed to record POS transaction",
			zap.String("order_id", order.ID), zap.Error(err))
		return nil
	}
	return tx
}

func (s *SaleService) checkDuplicate(ctx context.Context, locationID string, totalCents int64) {
	if s.guard == nil {
		return
	}
	dup, err := s.guard.ObserveSale(ctx, locationID, totalCents)
	if err != nil {
		s.logger.Warn("Duplicate sale check unavailable", zap.Error(err))
		return
	}
	if dup {
		util.DuplicateSaleSuspected.Inc()
		s.logger.Warn("Possible duplicate sale",
			zap.String("location_id", locationID),
			zap.Int64("total_cents", totalCents))
	}
}

func (s *SaleService) replay(ctx context.Context, order *models.Order) (*CreateSaleResponse, error) {
	items, err := s.repo.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "load order items", Err: err}
	}
	s.logger.Info("Duplicate sale request, returning stored order",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber))
	return &CreateSaleResponse{
		Success:     true,
		Order:       newOrderView(order, items),
		OrderNumber: order.OrderNumber,
		Message:     messageDuplicate,
	}, nil
}

func (s *SaleService) countFailure(err error) {
	var shortage *InsufficientInventoryError
	switch {
	case errors.As(err, &shortage):
		util.SalesFailedTotal.WithLabelValues("insufficient_inventory").Inc()
		util.InventoryDecrementFailed.WithLabelValues("insufficient").Inc()
	default:
		util.SalesFailedTotal.WithLabelValues("persistence").Inc()
	}
}

// shortageFor names the cart line behind a failed guarded decrement
func shortageFor(err error, lines []SaleItemRequest) error {
	var short *store.InsufficientInventoryError
	if !errors.As(err, &short) {
		return err
	}
	out := &InsufficientInventoryError{
		InventoryID: short.InventoryID,
		Requested:   short.Requested,
		Available:   short.Available,
		Missing:     short.Missing,
	}
	for _, line := range lines {
		if line.InventoryID == short.InventoryID {
			out.ProductName = line.ProductName
			break
		}
	}
	return out
}

// GetOrder loads an order with its items
func (s *SaleService) GetOrder(ctx context.Context, id string) (*OrderView, error) {
	if err := lookupID("order", id); err != nil {
		return nil, err
	}
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetOrderItemsByOrderID(ctx, id)
	if err != nil {
		return nil, err
	}
	return newOrderView(order, items), nil
}

// GetInventory loads one inventory record
func (s *SaleService) GetInventory(ctx context.Context, id string) (*models.InventoryRecord, error) {
	if err := lookupID("inventory", id); err != nil {
		return nil, err
	}
	return s.repo.GetInventoryRecord(ctx, id)
}

// AdjustInventory applies a manual stock correction. Negative deltas go
// through the same guard as sales and cannot drive stock below zero.
func (s *SaleService) AdjustInventory(ctx context.Context, id string, delta int, reason string) (int, error) {
	if err := lookupID("inventory", id); err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, invalid("delta", "delta must not be zero")
	}

	var (
		remaining int
		err       error
	)
	if delta > 0 {
		remaining, err = s.repo.IncrementInventory(ctx, id, delta)
	} else {
		remaining, err = s.repo.DecrementInventory(ctx, id, -delta)
	}
	if err != nil {
		var short *store.InsufficientInventoryError
		if errors.As(err, &short) {
			if short.Missing {
				return 0, fmt.Errorf("inventory %s: %w", id, store.ErrNotFound)
			}
			return 0, &InsufficientInventoryError{
				InventoryID: id,
				Requested:   short.Requested,
				Available:   short.Available,
			}
		}
		return 0, err
	}

	s.logger.Info("Inventory adjusted",
		zap.String("inventory_id", id),
		zap.Int("delta", delta),
		zap.Int("quantity", remaining),
		zap.String("reason", reason))
	return remaining, nil
}
