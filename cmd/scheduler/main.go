package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/ledger-core/internal/bootstrap"
	"github.com/richardliu001/ledger-core/internal/config"
	"github.com/richardliu001/ledger-core/internal/logger"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/richardliu001/ledger-core/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := bootstrap.Postgres(cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	rdb, err := bootstrap.Redis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	emitter, closeAudit, err := bootstrap.Audit(cfg, rdb, log)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}
	defer closeAudit()

	store := repo.NewRepository(gdb, rdb, nil, log,
		repo.WithRetry(repo.RetryPolicy{Attempts: cfg.Retry.Attempts, BaseDelay: cfg.Retry.BaseDelay}),
		repo.WithCacheTTL(cfg.Redis.CacheTTL),
	)
	clock := service.SystemClock{}
	wallet := service.NewWalletService(store, log)
	positions := service.NewPositionEngine(store, wallet, emitter, clock, log,
		service.WithEarlyExit(service.EarlyExitFromConfig(cfg.Positions.EarlyExit)))

	ticker := time.NewTicker(cfg.Scheduler.Interval)
	defer ticker.Stop()

	log.Infow("ledger-scheduler started", "interval", cfg.Scheduler.Interval, "batch", cfg.Scheduler.BatchSize)
	for {
		select {
		case <-ctx.Done():
			log.Info("ledger-scheduler stopped")
			return
		case <-ticker.C:
			report, err := positions.MatureDue(ctx, service.ExpectedReturnValuer{}, cfg.Scheduler.BatchSize)
			if err != nil {
				log.Errorw("mature positions", "err", err)
			}
			if report.Unstaked+report.Completed > 0 {
				log.Infow("matured positions", "unstaked", report.Unstaked, "completed", report.Completed)
			}
		}
	}
}
