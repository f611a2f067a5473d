package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"exchange-order-worker/internal/domain"
	"exchange-order-worker/internal/storage"
)

// DeadLetterProducer implements storage.DeadLetterSink by publishing each
// record to a Kafka topic, keyed by its dead-letter key.
type DeadLetterProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewDeadLetterProducer connects a synchronous producer to brokers.
func NewDeadLetterProducer(brokers []string, topic string) (*DeadLetterProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewDeadLetterProducerWith(producer, topic), nil
}

// NewDeadLetterProducerWith wraps an existing producer.
func NewDeadLetterProducerWith(producer sarama.SyncProducer, topic string) *DeadLetterProducer {
	return &DeadLetterProducer{producer: producer, topic: topic}
}

// Compile-time interface check.
var _ storage.DeadLetterSink = (*DeadLetterProducer)(nil)

// Write publishes rec as JSON. Blocks until the broker acknowledges.
func (p *DeadLetterProducer) Write(ctx context.Context, key string, rec *domain.DeadLetter) error {
	if key == "" || rec == nil {
		return storage.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("orderId"), Value: []byte(rec.OrderID)},
		},
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish dead letter to %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the underlying producer.
func (p *DeadLetterProducer) Close() error {
	return p.producer.Close()
}
