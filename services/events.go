package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"filealchemy/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher emits each conversion record as a Kafka message keyed by
// record id.
type EventPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewEventPublisher(brokers []string, topic string) *EventPublisher {
	return &EventPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			MaxAttempts:            3,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func (p *EventPublisher) Record(ctx context.Context, rec models.ConversionRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(rec.ID),
		Value: value,
		Time:  rec.CompletedAt,
		Headers: []kafka.Header{
			{Key: "execution_path", Value: []byte(rec.Path)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

func (p *EventPublisher) Name() string {
	return "kafka"
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
