package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pos-service/config"
	"pos-service/internal/api"
	"pos-service/internal/broker"
	"pos-service/internal/crm"
	"pos-service/internal/loyalty"
	"pos-service/internal/redisclient"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/store/memory"
	"pos-service/internal/util"
	"pos-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type repository interface {
	service.Repository
	worker.OutboxStore
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS service", zap.String("crm_sync_mode", cfg.CRM.SyncMode))

	tp, err := util.InitTracer("pos-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	readiness := map[string]api.ReadinessCheck{}

	var repo repository
	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if cfg.Database.RunMigrations {
			if err := store.RunMigrations(db.GetDB().DB); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
		}
		repo = db
		readiness["database"] = db.Ping
		logger.Info("Database connected")
	} else {
		repo = memory.New()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	var (
		guard  service.DuplicateGuard
		locker worker.Locker
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, duplicate-sale guard and worker locks disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		guard = redisClient
		locker = redisClient
		readiness["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	crmClient := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.APIKey, cfg.CRM.Timeout)

	loyaltyService := service.NewLoyaltyService(repo, loyalty.DefaultTiers, cfg.Loyalty.Provider)
	syncService := service.NewSyncService(repo, crmClient, loyaltyService, cfg.Loyalty.Provider, cfg.CRM, nil)
	saleService := service.NewSaleService(repo, loyaltyService, syncService, guard,
		service.NewOrderNumberGenerator(nil), cfg.CRM.SyncMode)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var workers sync.WaitGroup

	startWorker := func(name string, run func(context.Context) error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := run(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Worker stopped with error", zap.String("worker", name), zap.Error(err))
			}
		}()
	}

	var crmWorker *worker.CRMSyncWorker
	if cfg.CRM.SyncMode == config.SyncModeOutbox {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales)
		defer producer.Close()

		relay := worker.NewOutboxRelay(repo, producer, locker, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)
		startWorker("outbox-relay", relay.Start)

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales, cfg.Kafka.ConsumerGroup)
		crmWorker = worker.NewCRMSyncWorker(consumer, syncService)
		startWorker("crm-sync", crmWorker.Start)
		logger.Info("Kafka outbox pipeline started", zap.String("topic", cfg.Kafka.TopicSales))
	}

	retryWorker := worker.NewRetryWorker(syncService, locker, cfg.CRM.RetryPolling)
	startWorker("crm-retry", retryWorker.Start)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var verifier *api.TokenVerifier
	if cfg.Auth.Secret != "" {
		verifier = api.NewTokenVerifier(cfg.Auth.Secret)
	}

	router := gin.New()
	handler := api.NewHandler(saleService, loyaltyService, verifier)
	for name, check := range readiness {
		handler.AddReadinessCheck(name, check)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if crmWorker != nil {
		if err := crmWorker.Stop(); err != nil {
			logger.Warn("Error stopping CRM sync worker", zap.Error(err))
		}
	}
	workers.Wait()

	logger.Info("Server exited")
}
