package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// LogSink writes events to the structured log.
type LogSink struct {
	Log *zap.SugaredLogger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Write(_ context.Context, e Event) error {
	s.Log.Infow("audit", "action", e.Action, "user_id", e.UserID, "actor_id", e.ActorID,
		"ip", e.IP, "details", e.Details, "ts", e.Timestamp)
	return nil
}

// KafkaSink publishes events keyed by user id.
type KafkaSink struct {
	Writer *kafka.Writer
}

func (KafkaSink) Name() string { return "kafka" }

func (s KafkaSink) Write(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.UserID),
		Value: b,
		Time:  e.Timestamp,
	})
}

// RedisSink publishes events on a pub/sub channel.
type RedisSink struct {
	Client  *redis.Client
	Channel string
}

func (RedisSink) Name() string { return "redis" }

func (s RedisSink) Write(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.Client.Publish(ctx, s.Channel, b).Err()
}

// RabbitSink publishes persistent messages to a topic exchange, routed by action.
type RabbitSink struct {
	channel  *amqp.Channel
	exchange string
}

// NewRabbitSink declares the exchange on ch.
func NewRabbitSink(ch *amqp.Channel, exchange string) (*RabbitSink, error) {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &RabbitSink{channel: ch, exchange: exchange}, nil
}

func (*RabbitSink) Name() string { return "rabbitmq" }

func (s *RabbitSink) Write(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.channel.PublishWithContext(ctx,
		s.exchange, // exchange
		e.Action,   // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         b,
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.Timestamp,
		},
	)
}
