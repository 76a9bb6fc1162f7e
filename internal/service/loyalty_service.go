package service

import (
	"context"
	"fmt"

	"pos-service/internal/loyalty"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LoyaltyService credits sales to loyalty accounts
type LoyaltyService struct {
	repo     LoyaltyRepository
	tiers    loyalty.Table
	provider string
	logger   *zap.Logger
}

// NewLoyaltyService creates a loyalty service for one provider
func NewLoyaltyService(repo LoyaltyRepository, tiers loyalty.Table, provider string) *LoyaltyService {
	if len(tiers) == 0 {
		tiers = loyalty.DefaultTiers
	}
	return &LoyaltyService{
		repo:     repo,
		tiers:    tiers,
		provider: provider,
		logger:   util.GetLogger(),
	}
}

// Provider is the loyalty provider accounts are keyed by
func (s *LoyaltyService) Provider() string {
	return s.provider
}

// LoyaltySale is the part of a committed sale that earns points
type LoyaltySale struct {
	CustomerID  string
	VendorID    string
	OrderID     string
	OrderNumber string
	TotalCents  int64
}

// LoyaltyResult is the account state after a sale was credited
type LoyaltyResult struct {
	PointsEarned    int64   `json:"pointsEarned"`
	TotalPoints     int64   `json:"totalPoints"`
	LifetimePoints  int64   `json:"lifetimePoints"`
	Tier            string  `json:"tier"`
	TierUpgrade     bool    `json:"tierUpgrade"`
	PreviousTier    string  `json:"previousTier,omitempty"`
	DiscountPercent float64 `json:"discountPercent"`

	Account *models.LoyaltyAccount `json:"-"`
}

// ApplySale credits a sale to the customer's account, opening it at the
// lowest tier when needed. The account row is locked for the whole update.
func (s *LoyaltyService) ApplySale(ctx context.Context, sale LoyaltySale) (*LoyaltyResult, error) {
	ctx, span := util.StartSpan(ctx, "LoyaltyService.ApplySale",
		attribute.String("customer_id", sale.CustomerID),
		attribute.String("order_id", sale.OrderID))
	defer span.End()

	base, baseLevel := s.tiers.Classify(0)
	seed := &models.LoyaltyAccount{
		CustomerID: sale.CustomerID,
		VendorID:   sale.VendorID,
		Provider:   s.provider,
		TierName:   base.Name,
		TierLevel:  baseLevel,
	}

	var result LoyaltyResult
	account, err := s.repo.ApplyLoyalty(ctx, seed, func(acct *models.LoyaltyAccount, created bool) ([]models.LoyaltyTransaction, error) {
		accrual := s.tiers.Accrue(acct.PointsBalance, acct.LifetimePoints, acct.TierName, sale.TotalCents)
		previousLevel := acct.TierLevel

		acct.PointsBalance = accrual.PointsBalance
		acct.LifetimePoints = accrual.LifetimePoints
		acct.TierName = accrual.Tier.Name
		acct.TierLevel = accrual.TierLevel

		result = LoyaltyResult{
			PointsEarned:    accrual.PointsEarned,
			TotalPoints:     accrual.PointsBalance,
			LifetimePoints:  accrual.LifetimePoints,
			Tier:            accrual.Tier.Name,
			TierUpgrade:     accrual.TierChanged && accrual.TierLevel > previousLevel,
			DiscountPercent: accrual.Tier.DiscountPercent,
		}
		if accrual.TierChanged {
			result.PreviousTier = accrual.PreviousTier
		}

		orderID := sale.OrderID
		var entries []models.LoyaltyTransaction
		if accrual.PointsEarned > 0 {
			entries = append(entries, models.LoyaltyTransaction{
				CustomerID:   sale.CustomerID,
				VendorID:     sale.VendorID,
				OrderID:      &orderID,
				Type:         models.LoyaltyTxEarned,
				Points:       accrual.PointsEarned,
				BalanceAfter: accrual.PointsBalance,
				Description:  fmt.Sprintf("Earned %d points on order %s", accrual.PointsEarned, sale.OrderNumber),
			})
		}
		if accrual.TierChanged {
			entries = append(entries, models.LoyaltyTransaction{
				CustomerID:   sale.CustomerID,
				VendorID:     sale.VendorID,
				OrderID:      &orderID,
				Type:         models.LoyaltyTxTierChange,
				Points:       0,
				BalanceAfter: accrual.PointsBalance,
				Description:  fmt.Sprintf("Tier changed from %s to %s", accrual.PreviousTier, accrual.Tier.Name),
			})
		}

		if created {
			s.logger.Info("Loyalty account opened",
				zap.String("customer_id", sale.CustomerID),
				zap.String("vendor_id", sale.VendorID))
		}
		return entries, nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to apply loyalty: %w", err)
	}

	result.Account = account
	util.LoyaltyPointsAwarded.Add(float64(result.PointsEarned))
	if result.PreviousTier != "" {
		util.LoyaltyTierChanges.WithLabelValues(result.Tier).Inc()
		s.logger.Info("Loyalty tier changed",
			zap.String("customer_id", sale.CustomerID),
			zap.String("from", result.PreviousTier),
			zap.String("to", result.Tier))
	}
	return &result, nil
}

// OpenAccount returns the customer's account, opening it at the base tier
// with no points when missing. It writes no ledger entries.
func (s *LoyaltyService) OpenAccount(ctx context.Context, customerID, vendorID string) (*models.LoyaltyAccount, error) {
	base, baseLevel := s.tiers.Classify(0)
	seed := &models.LoyaltyAccount{
		CustomerID: customerID,
		VendorID:   vendorID,
		Provider:   s.provider,
		TierName:   base.Name,
		TierLevel:  baseLevel,
	}
	return s.repo.ApplyLoyalty(ctx, seed, func(*models.LoyaltyAccount, bool) ([]models.LoyaltyTransaction, error) {
		return nil, nil
	})
}

// LoyaltyAccountView is an account with its tier details and ledger
type LoyaltyAccountView struct {
	*models.LoyaltyAccount
	DiscountPercent float64                     `json:"discountPercent"`
	Transactions    []models.LoyaltyTransaction `json:"transactions"`
}

// GetAccount loads a customer's account with a vendor
func (s *LoyaltyService) GetAccount(ctx context.Context, customerID, vendorID string) (*LoyaltyAccountView, error) {
	if err := lookupID("customer", customerID); err != nil {
		return nil, err
	}
	if err := lookupID("vendor", vendorID); err != nil {
		return nil, err
	}
	acct, err := s.repo.GetLoyaltyAccount(ctx, models.LoyaltyKey{
		CustomerID: customerID,
		VendorID:   vendorID,
		Provider:   s.provider,
	})
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListLoyaltyTransactions(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load loyalty ledger: %w", err)
	}
	if entries == nil {
		entries = []models.LoyaltyTransaction{}
	}

	view := &LoyaltyAccountView{LoyaltyAccount: acct, Transactions: entries}
	if tier, ok := s.tiers.Lookup(acct.TierName); ok {
		view.DiscountPercent = tier.DiscountPercent
	}
	return view, nil
}
