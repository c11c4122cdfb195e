// Package bootstrap opens the external dependencies shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/richardliu001/ledger-core/internal/audit"
	"github.com/richardliu001/ledger-core/internal/config"
	"github.com/richardliu001/ledger-core/internal/repo"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Postgres opens the database and brings the schema up to date.
func Postgres(cfg config.PostgresConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := repo.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}

func Redis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func KafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

var newAuditWriter = KafkaWriter

// Audit builds the async emitter over the configured sinks. The returned
// closer drains the buffer and releases any broker connections. On error the
// sinks opened so far are released before returning.
func Audit(cfg *config.Config, rdb *redis.Client, log *zap.SugaredLogger) (em *audit.AsyncEmitter, closeFn func(), err error) {
	var (
		sinks   []audit.Sink
		closers []func()
	)
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if err != nil {
			release()
		}
	}()
	for _, name := range cfg.Audit.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, audit.LogSink{Log: log})
		case "kafka":
			w := newAuditWriter(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
			sinks = append(sinks, audit.KafkaSink{Writer: w})
			closers = append(closers, func() { _ = w.Close() })
		case "redis":
			if rdb == nil {
				return nil, nil, fmt.Errorf("audit sink redis: no redis client")
			}
			sinks = append(sinks, audit.RedisSink{Client: rdb, Channel: "ledger:audit"})
		case "rabbitmq":
			conn, err := amqp.Dial(cfg.RabbitMQ.URL)
			if err != nil {
				return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
			}
			closers = append(closers, func() { _ = conn.Close() })
			ch, err := conn.Channel()
			if err != nil {
				return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
			}
			sink, err := audit.NewRabbitSink(ch, cfg.RabbitMQ.Exchange)
			if err != nil {
				return nil, nil, err
			}
			sinks = append(sinks, sink)
		default:
			return nil, nil, fmt.Errorf("unknown audit sink %q", name)
		}
	}
	em = audit.NewAsyncEmitter(log, cfg.Audit.BufferSize, sinks...)
	return em, func() {
		em.Close()
		release()
	}, nil
}
