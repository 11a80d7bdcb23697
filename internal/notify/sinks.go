package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/kafka"
)

type eventPublisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// KafkaSink publishes events to the commit topic keyed by index directory.
type KafkaSink struct {
	producer eventPublisher
}

func NewKafkaSink(p *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, ev CommitEvent) error {
	return s.producer.Publish(ctx, kafka.Event{Key: ev.Dir, Value: ev})
}

type pointerStore interface {
	Key(parts ...string) string
	SetIfGreater(ctx context.Context, key string, value int64) (bool, error)
	Publish(ctx context.Context, channel string, message any) error
}

// RedisSink keeps <prefix>:generation:<dir> at the newest generation and
// publishes the event on <prefix>:commits.
type RedisSink struct {
	store pointerStore
}

func NewRedisSink(store pointerStore) *RedisSink {
	return &RedisSink{store: store}
}

func (s *RedisSink) Name() string { return "redis" }

// GenerationKey names the key holding dir's latest generation.
func (s *RedisSink) GenerationKey(dir string) string {
	return s.store.Key("generation", dir)
}

// Channel names the pub/sub channel events are published on.
func (s *RedisSink) Channel() string {
	return s.store.Key("commits")
}

func (s *RedisSink) Publish(ctx context.Context, ev CommitEvent) error {
	updated, err := s.store.SetIfGreater(ctx, s.GenerationKey(ev.Dir), ev.Generation)
	if err != nil {
		return fmt.Errorf("updating generation pointer: %w", err)
	}
	if !updated {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling commit event: %w", err)
	}
	return s.store.Publish(ctx, s.Channel(), payload)
}
