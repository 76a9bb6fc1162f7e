package store

import (
	"context"
	"time"

	"pos-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func insertOutboxEvent(ctx context.Context, tx *sqlx.Tx, ev *models.OutboxEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	return tx.GetContext(ctx, &ev.CreatedAt, `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		ev.ID, ev.AggregateID, ev.EventType, ev.Payload)
}

// ListPendingOutbox returns unpublished events, oldest first
func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	return events, err
}

// MarkOutboxPublished stamps an event as relayed
func (s *Store) MarkOutboxPublished(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET published_at = $1 WHERE id = $2 AND published_at IS NULL", at, id)
	return err
}

// EnqueueCRMSync stores a CRM push for later retry
func (s *Store) EnqueueCRMSync(ctx context.Context, entry *models.CRMSyncEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	query := `
		INSERT INTO crm_sync_queue (id, order_id, customer_id, payload, status, retry_count,
			last_error, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		entry.ID, entry.OrderID, entry.CustomerID, entry.Payload, entry.Status,
		entry.RetryCount, entry.LastError, entry.NextAttemptAt,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
}

// ListDueCRMSyncs returns pending entries whose next attempt is due
func (s *Store) ListDueCRMSyncs(ctx context.Context, now time.Time, limit int) ([]models.CRMSyncEntry, error) {
	var entries []models.CRMSyncEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT * FROM crm_sync_queue
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at
		LIMIT $3`, models.SyncStatusPending, now, limit)
	return entries, err
}

// MarkCRMSyncSucceeded closes a queue entry
func (s *Store) MarkCRMSyncSucceeded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE crm_sync_queue SET status = $1, updated_at = NOW() WHERE id = $2",
		models.SyncStatusSucceeded, id)
	return err
}

// RescheduleCRMSync records a failed attempt and the next due time
func (s *Store) RescheduleCRMSync(ctx context.Context, id string, retryCount int, next time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_sync_queue
		SET retry_count = $1, next_attempt_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $4`,
		retryCount, next, lastErr, id)
	return err
}

// MarkCRMSyncFailed gives up on a queue entry
func (s *Store) MarkCRMSyncFailed(ctx context.Context, id string, retryCount int, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_sync_queue
		SET status = $1, retry_count = $2, last_error = $3, updated_at = NOW()
		WHERE id = $4`,
		models.SyncStatusFailed, retryCount, lastErr, id)
	return err
}
