package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/ledger-core/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// PollOutbox pulls unprocessed events in commit order.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = ?", false).Order("id").Limit(limit).Find(&evts).Error
	return evts, storageErr("poll outbox", err)
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := r.now()
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
	return storageErr("mark outbox processed", err)
}

// PublishEvent sends to Kafka, keyed by user so one wallet's events stay ordered.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	if r.writer == nil {
		return errors.New("publish event: no kafka writer configured")
	}
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Headers: []kafka.Header{
			{Key: "aggregate", Value: []byte(evt.Aggregate)},
			{Key: "event_type", Value: []byte(evt.EventType)},
		},
		Time: evt.CreatedAt,
	}
	return r.writer.WriteMessages(ctx, msg)
}

// Outbox is the slice of the store the relay needs.
type Outbox interface {
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
}

// Relay ships one batch of pending events. An event that fails to publish stays
// pending and stops the batch so per-user order is kept.
func Relay(ctx context.Context, o Outbox, limit int, log *zap.SugaredLogger) (int, error) {
	events, err := o.PollOutbox(ctx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		if err := o.PublishEvent(ctx, evt); err != nil {
			return sent, fmt.Errorf("publish id=%d: %w", evt.ID, err)
		}
		if err := o.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			return sent, fmt.Errorf("mark processed id=%d: %w", evt.ID, err)
		}
		sent++
		log.Debugw("event sent", "id", evt.ID, "type", evt.EventType, "aggregate_id", evt.AggregateID)
	}
	return sent, nil
}
