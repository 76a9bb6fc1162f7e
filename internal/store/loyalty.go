package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LoyaltyMutation updates a locked account in place and returns the ledger
// entries to append. created reports whether the account was just opened.
type LoyaltyMutation func(account *models.LoyaltyAccount, created bool) ([]models.LoyaltyTransaction, error)

const loyaltyColumns = `id, customer_id, vendor_id, provider, points_balance, lifetime_points,
	tier_name, tier_level, external_contact_id, created_at, updated_at`

// GetLoyaltyAccount retrieves the account for a customer, vendor and provider
func (s *Store) GetLoyaltyAccount(ctx context.Context, key models.LoyaltyKey) (*models.LoyaltyAccount, error) {
	var acct models.LoyaltyAccount
	err := s.db.GetContext(ctx, &acct,
		"SELECT "+loyaltyColumns+" FROM loyalty_accounts WHERE customer_id = $1 AND vendor_id = $2 AND provider = $3",
		key.CustomerID, key.VendorID, key.Provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loyalty account for customer %s: %w", key.CustomerID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// ApplyLoyalty locks the account row, creating it from seed when missing,
// runs fn and persists the result with its ledger entries.
func (s *Store) ApplyLoyalty(ctx context.Context, seed *models.LoyaltyAccount, fn LoyaltyMutation) (*models.LoyaltyAccount, error) {
	var result models.LoyaltyAccount

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO loyalty_accounts (id, customer_id, vendor_id, provider, points_balance,
				lifetime_points, tier_name, tier_level)
			VALUES ($1, $2, $3, $4, 0, 0, $5, $6)
			ON CONFLICT (customer_id, vendor_id, provider) DO NOTHING`,
			uuid.New().String(), seed.CustomerID, seed.VendorID, seed.Provider, seed.TierName, seed.TierLevel)
		if err != nil {
			return fmt.Errorf("failed to open loyalty account: %w", err)
		}
		inserted, _ := res.RowsAffected()

		err = tx.GetContext(ctx, &result,
			"SELECT "+loyaltyColumns+" FROM loyalty_accounts WHERE customer_id = $1 AND vendor_id = $2 AND provider = $3 FOR UPDATE",
			seed.CustomerID, seed.VendorID, seed.Provider)
		if err != nil {
			return fmt.Errorf("failed to lock loyalty account: %w", err)
		}

		entries, err := fn(&result, inserted == 1)
		if err != nil {
			return err
		}

		err = tx.GetContext(ctx, &result.UpdatedAt, `
			UPDATE loyalty_accounts
			SET points_balance = $1, lifetime_points = $2, tier_name = $3, tier_level = $4, updated_at = NOW()
			WHERE id = $5
			RETURNING updated_at`,
			result.PointsBalance, result.LifetimePoints, result.TierName, result.TierLevel, result.ID)
		if err != nil {
			return fmt.Errorf("failed to update loyalty account: %w", err)
		}

		for i := range entries {
			entry := &entries[i]
			if entry.ID == "" {
				entry.ID = uuid.New().String()
			}
			entry.AccountID = result.ID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO loyalty_transactions (id, account_id, customer_id, vendor_id, order_id,
					type, points, balance_after, description)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				entry.ID, entry.AccountID, entry.CustomerID, entry.VendorID, entry.OrderID,
				entry.Type, entry.Points, entry.BalanceAfter, entry.Description)
			if err != nil {
				return fmt.Errorf("failed to write loyalty transaction: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SetLoyaltyExternalContactID back-fills the CRM contact id if none is stored
func (s *Store) SetLoyaltyExternalContactID(ctx context.Context, accountID, contactID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE loyalty_accounts SET external_contact_id = $1, updated_at = NOW()
		WHERE id = $2 AND external_contact_id IS NULL`,
		contactID, accountID)
	return err
}

// ListLoyaltyTransactions returns the ledger of an account in write order.
// Entries of one transaction share created_at; seq breaks the tie.
func (s *Store) ListLoyaltyTransactions(ctx context.Context, accountID string) ([]models.LoyaltyTransaction, error) {
	var entries []models.LoyaltyTransaction
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM loyalty_transactions WHERE account_id = $1 ORDER BY created_at, seq", accountID)
	return entries, err
}
