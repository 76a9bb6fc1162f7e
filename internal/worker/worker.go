package worker

import (
	"context"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/redisclient"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// Locker serialises a job across replicas. A nil Locker runs the job
// unguarded.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (*redisclient.Lock, bool, error)
	ReleaseLock(ctx context.Context, lock *redisclient.Lock) error
}

// OutboxStore is the outbox surface the relay needs
type OutboxStore interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, id string, at time.Time) error
}

// Publisher writes encoded events to the broker
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload []byte) error
}

// runEvery calls fn every interval until ctx is done, holding lockName for
// the duration of each run when a locker is set.
func runEvery(ctx context.Context, interval time.Duration, locker Locker, lockName string, logger *zap.Logger, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runLocked(ctx, interval, locker, lockName, logger, fn)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runLocked(ctx context.Context, interval time.Duration, locker Locker, lockName string, logger *zap.Logger, fn func(context.Context)) {
	if locker == nil {
		fn(ctx)
		return
	}

	lock, ok, err := locker.AcquireLock(ctx, lockName, 2*interval+5*time.Second)
	if err != nil {
		logger.Warn("Failed to acquire worker lock", zap.String("lock", lockName), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := locker.ReleaseLock(context.Background(), lock); err != nil {
			logger.Warn("Failed to release worker lock", zap.String("lock", lockName), zap.Error(err))
		}
	}()
	fn(ctx)
}

// OutboxRelay publishes committed outbox events to Kafka
type OutboxRelay struct {
	store     OutboxStore
	publisher Publisher
	locker    Locker
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewOutboxRelay creates a relay. locker may be nil.
func NewOutboxRelay(store OutboxStore, publisher Publisher, locker Locker, interval time.Duration, batchSize int) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		locker:    locker,
		interval:  interval,
		batchSize: batchSize,
		logger:    util.GetLogger(),
	}
}

// Start relays until ctx is cancelled
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting outbox relay", zap.Duration("interval", r.interval))
	runEvery(ctx, r.interval, r.locker, "outbox-relay", r.logger, func(ctx context.Context) {
		if _, err := r.RelayOnce(ctx); err != nil {
			r.logger.Error("Outbox relay pass failed", zap.Error(err))
		}
	})
	r.logger.Info("Outbox relay stopped")
	return ctx.Err()
}

// RelayOnce publishes one batch in creation order and stops at the first
// publish failure so later events never overtake it.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.store.ListPendingOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, ev := range events {
		if err := r.publisher.Publish(ctx, ev.AggregateID, ev.EventType, ev.Payload); err != nil {
			return published, err
		}
		if err := r.store.MarkOutboxPublished(ctx, ev.ID, time.Now().UTC()); err != nil {
			// Published but unmarked: the consumer's processed_events check
			// absorbs the redelivery.
			return published, err
		}
		published++
		util.OutboxPublishedTotal.Inc()
	}

	if published > 0 {
		r.logger.Debug("Relayed outbox events", zap.Int("count", published))
	}
	return published, nil
}

// CRMSyncWorker consumes sale events and pushes them to the CRM
type CRMSyncWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewCRMSyncWorker creates a new CRM sync worker
func NewCRMSyncWorker(consumer *broker.Consumer, syncService *service.SyncService) *CRMSyncWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleCompleted(syncService.HandleSaleCompleted)

	return &CRMSyncWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *CRMSyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting CRM sync worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CRMSyncWorker) Stop() error {
	w.logger.Info("Stopping CRM sync worker")
	return w.consumer.Close()
}

// RetryProcessor drains the CRM retry queue
type RetryProcessor interface {
	ProcessRetries(ctx context.Context) (int, error)
}

// RetryWorker periodically retries failed CRM pushes
type RetryWorker struct {
	processor RetryProcessor
	locker    Locker
	interval  time.Duration
	logger    *zap.Logger
}

// NewRetryWorker creates a retry worker. locker may be nil.
func NewRetryWorker(processor RetryProcessor, locker Locker, interval time.Duration) *RetryWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &RetryWorker{
		processor: processor,
		locker:    locker,
		interval:  interval,
		logger:    util.GetLogger(),
	}
}

// Start runs retry passes until ctx is cancelled
func (w *RetryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting CRM retry worker", zap.Duration("interval", w.interval))
	runEvery(ctx, w.interval, w.locker, "crm-retry", w.logger, func(ctx context.Context) {
		n, err := w.processor.ProcessRetries(ctx)
		if err != nil {
			w.logger.Error("CRM retry pass failed", zap.Error(err))
			return
		}
		if n > 0 {
			w.logger.Info("CRM retry pass complete", zap.Int("attempted", n))
		}
	})
	w.logger.Info("CRM retry worker stopped")
	return ctx.Err()
}
