package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"

	"eshop-marketplace/chatting-service/pkg/logger"
)

// Handler processes one fetched record. Offsets are not committed at read
// time; the handler (or a downstream stage) calls Commit once the record
// has been durably handled.
type Handler func(ctx context.Context, msg kafka.Message)

// Consumer reads chat message events as part of a consumer group, so
// multiple service replicas share the partition set.
type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		logger: log.WithComponent("stream.consumer"),
	}
}

// Run blocks fetching messages until the context is cancelled or the
// reader is closed. Fetched records stay uncommitted until Commit is
// called for them, so a crash replays everything the batch stage had not
// yet persisted.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		handle(ctx, msg)
	}
}

// Commit marks the given records consumed. Per partition this advances the
// group offset past the highest record in the set, so callers must only
// commit records whose predecessors have also been handled.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return c.reader.CommitMessages(ctx, msgs...)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// OffsetTracker maps in-flight record ids to their stream positions so the
// offsets can be committed once a later stage reports the records handled.
type OffsetTracker struct {
	mu       sync.Mutex
	inFlight map[string]kafka.Message
}

func NewOffsetTracker() *OffsetTracker {
	return &OffsetTracker{inFlight: make(map[string]kafka.Message)}
}

// Track records the stream position of an in-flight record. A replayed id
// overwrites the stale position from the previous delivery.
func (t *OffsetTracker) Track(id string, msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight[id] = msg
}

// Take removes and returns the positions for the given ids. Ids with no
// tracked position (already taken, or produced outside this process run)
// are skipped.
func (t *OffsetTracker) Take(ids []string) []kafka.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := make([]kafka.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := t.inFlight[id]; ok {
			msgs = append(msgs, msg)
			delete(t.inFlight, id)
		}
	}
	return msgs
}
