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
)

const batchSize = 100

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

	kw := bootstrap.KafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer kw.Close()

	store := repo.NewRepository(gdb, nil, kw, log)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	log.Info("ledger-poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info("ledger-poller stopped")
			return
		case <-ticker.C:
			sent, err := repo.Relay(ctx, store, batchSize, log)
			if err != nil {
				log.Errorf("relay outbox: %v", err)
			}
			if sent > 0 {
				log.Infof("relayed %d events", sent)
			}
		}
	}
}
