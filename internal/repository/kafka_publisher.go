package repository

import (
	"context"
	"time"

	drepo "MoodTreasury/internal/domain/repository"
	pkgkafka "MoodTreasury/pkg/kafka"
)

type artifactEnvelope struct {
	Kind      string      `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// KafkaPublisher implements ArtifactPublisher on a Kafka topic, keyed by
// artifact kind so each kind stays ordered within its partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates a Kafka artifact publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) drepo.ArtifactPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, kind string, value interface{}) error {
	return p.producer.Publish(ctx, p.topic, []byte(kind), artifactEnvelope{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   value,
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher drops artifacts; used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NoopPublisher) Close() error                                       { return nil }
