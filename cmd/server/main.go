package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/ledger-core/internal/auth"
	"github.com/richardliu001/ledger-core/internal/bootstrap"
	"github.com/richardliu001/ledger-core/internal/config"
	"github.com/richardliu001/ledger-core/internal/logger"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/richardliu001/ledger-core/internal/service"
	httptransport "github.com/richardliu001/ledger-core/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := bootstrap.Postgres(cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}

	// 4. redis
	rdb, err := bootstrap.Redis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	// 5. kafka writer and audit sinks
	kw := bootstrap.KafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer kw.Close()
	emitter, closeAudit, err := bootstrap.Audit(cfg, rdb, log)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}
	defer closeAudit()

	// 6. repo & services
	store := repo.NewRepository(gdb, rdb, kw, log,
		repo.WithRetry(repo.RetryPolicy{Attempts: cfg.Retry.Attempts, BaseDelay: cfg.Retry.BaseDelay}),
		repo.WithCacheTTL(cfg.Redis.CacheTTL),
	)
	clock := service.SystemClock{}
	wallet := service.NewWalletService(store, log)
	deposits := service.NewDepositWorkflow(store, wallet, emitter, clock, log)
	withdrawals := service.NewWithdrawalWorkflow(store, wallet, emitter, clock, log)
	catalog, err := service.NewCatalog(cfg.Positions)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	positions := service.NewPositionEngine(store, wallet, emitter, clock, log,
		service.WithEarlyExit(service.EarlyExitFromConfig(cfg.Positions.EarlyExit)))

	// 7. gin router
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	h := httptransport.NewHandler(wallet, deposits, withdrawals, positions, catalog, log)
	router := httptransport.NewRouter(h, tokens, cfg.RateLimit, log)

	// 8. serve until signalled
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: router}
	go func() {
		log.Infof("ledger-server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
