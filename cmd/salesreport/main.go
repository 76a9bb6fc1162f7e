package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"pos-service/config"
	"pos-service/internal/report"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

func main() {
	vendorID := flag.String("vendor", "", "vendor id to report on (required)")
	fromStr := flag.String("from", time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02"), "first day, inclusive (YYYY-MM-DD)")
	toStr := flag.String("to", time.Now().UTC().Format("2006-01-02"), "last day, inclusive (YYYY-MM-DD)")
	flag.Parse()

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	if *vendorID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	from, err := time.Parse("2006-01-02", *fromStr)
	if err != nil {
		logger.Fatal("Invalid -from date", zap.String("from", *fromStr), zap.Error(err))
	}
	to, err := time.Parse("2006-01-02", *toStr)
	if err != nil {
		logger.Fatal("Invalid -to date", zap.String("to", *toStr), zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := report.Generate(ctx, db, os.Stdout, *vendorID, from, to.AddDate(0, 0, 1)); err != nil {
		logger.Fatal("Failed to generate report", zap.Error(err))
	}
}
