// Package stream connects the chat gateway and the persistence consumer to
// Kafka. Messages are keyed by conversation ID so all messages for one
// conversation land in the same partition and preserve their order.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"eshop-marketplace/chatting-service/pkg/logger"
)

// Producer publishes chat message events. Writes are synchronous so the
// gateway can report delivery status back to the sender.
type Producer struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewProducer creates a producer for the given topic. RequireAll leaves
// acknowledgement to the full ISR, which is what we want for a durability
// boundary.
func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger: log.WithComponent("stream.producer"),
	}
}

// Publish writes a single event keyed by conversation ID.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close flushes pending writes and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Ping dials the first broker to verify reachability. Used by health checks.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka %s: %w", brokers[0], err)
	}
	return conn.Close()
}
