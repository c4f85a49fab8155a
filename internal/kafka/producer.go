package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const defaultRetryInterval = 500 * time.Millisecond

type Producer struct {
	brokers       []string
	writer        messageWriter
	retryInterval time.Duration
	log           *zap.Logger
}

func NewProducer(brokers []string, log *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{brokers: brokers, writer: writer, log: log}
}

// Publish writes payload as JSON. Messages with the same key land on the
// same partition, so events for one booking stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.log.Debug("published to kafka", zap.String("topic", topic), zap.String("key", key))
	return nil
}

// PublishWithRetry makes up to maxRetries attempts, waiting a growing
// interval between them.
func (p *Producer) PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error {
	maxRetries = max(maxRetries, 1)
	interval := p.retryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	schedule := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(interval),
		backoff.WithMultiplier(2),
		backoff.WithMaxElapsedTime(0),
	)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return p.Publish(ctx, topic, key, payload)
	}, backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(maxRetries-1)), ctx), func(err error, next time.Duration) {
		p.log.Warn("kafka publish attempt failed",
			zap.Int("attempt", attempt), zap.String("topic", topic), zap.Duration("retry_in", next), zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("failed after %d attempts: %w", attempt, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	return conn.Close()
}
