package repository

import (
	"context"

	"PulseDeck/internal/domain/models"
	"PulseDeck/internal/domain/repository"
	pkgkafka "PulseDeck/pkg/kafka"
)

// KafkaOutcomePublisher implements OutcomePublisher for Kafka. The signal
// id is the message key so redeliveries land on the same partition and
// consumers can dedupe.
type KafkaOutcomePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaOutcomePublisher creates a Kafka outcome publisher.
func NewKafkaOutcomePublisher(producer *pkgkafka.Producer, topic string) repository.OutcomePublisher {
	return &KafkaOutcomePublisher{producer: producer, topic: topic}
}

func (p *KafkaOutcomePublisher) Publish(ctx context.Context, ev models.OutcomeEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.SignalID), ev)
}

func (p *KafkaOutcomePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// PublisherSubscriber adapts an OutcomePublisher into a dispatch subscriber.
type PublisherSubscriber struct {
	pub repository.OutcomePublisher
}

func NewPublisherSubscriber(pub repository.OutcomePublisher) *PublisherSubscriber {
	return &PublisherSubscriber{pub: pub}
}

func (s *PublisherSubscriber) Name() string { return "kafka_outcomes" }

func (s *PublisherSubscriber) HandleOutcome(ctx context.Context, ev models.OutcomeEvent) error {
	return s.pub.Publish(ctx, ev)
}
