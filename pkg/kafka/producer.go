// Package kafka wraps segmentio/kafka-go for the commit event topic: a
// producer that publishes JSON events keyed by index directory and a
// consumer loop that hands each message to a callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
)

// DefaultCommitTopic is used when the config leaves CommitTopic empty.
const DefaultCommitTopic = "index.commits"

// Event is one message. Key drives partitioning so every commit of one
// index lands on the same partition, in order.
type Event struct {
	Key   string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON-encoded events synchronously.
type Producer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig) *Producer {
	topic := cfg.CommitTopic
	if topic == "" {
		topic = DefaultCommitTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(w, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		logger: logger.WithComponent("kafka-producer").With("topic", topic),
	}
}

func (p *Producer) Topic() string { return p.topic }

func encode(events []Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling event %s: %w", e.Key, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.Key), Value: value})
	}
	return msgs, nil
}

// Publish writes events in one call.
func (p *Producer) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("failed to publish", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("published", "count", len(msgs), "key", events[0].Key)
	return nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
