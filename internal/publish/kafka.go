// Package publish streams forecast snapshots to Kafka for downstream
// consumers. Publishing is best effort: a failed write is logged and
// dropped, never fed back into the pass that produced the snapshot.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Publisher wraps a Kafka writer keyed by line ID, so all snapshots of one
// line land on one partition in order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Publish sends one JSON-encoded snapshot keyed by line ID.
func (p *Publisher) Publish(ctx context.Context, lineID string, snapshot interface{}) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(lineID),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("line", lineID).Msg("Failed to publish snapshot to Kafka")
		return err
	}

	log.Debug().Str("line", lineID).Int("bytes", len(payload)).Msg("Snapshot published")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
