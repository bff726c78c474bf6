// Package batch implements the micro-batching persistence stage of the chat
// pipeline. Events consumed from the message stream are buffered in memory
// and written to the database in one insert after a short accumulation
// window, trading a few seconds of write latency for far fewer round trips.
package batch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"eshop-marketplace/chatting-service/internal/chat/events"
	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/internal/chat/metrics"
	"eshop-marketplace/chatting-service/internal/models"
	"eshop-marketplace/chatting-service/pkg/logger"
)

// MessageSaver persists a batch of messages in a single statement. The
// implementation must tolerate replays: messages carry IDs assigned at
// ingress, so a re-flushed batch may contain rows that already exist.
type MessageSaver interface {
	SaveBatch(ctx context.Context, msgs []models.Message) error
}

// UnseenCounter tracks per-conversation unread counts for the recipient
// side of a conversation.
type UnseenCounter interface {
	Increment(ctx context.Context, role identity.Role, conversationID string) (int64, error)
}

// DeadLetterPublisher receives messages that could not be persisted after
// all retries, preserving them for offline repair.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// countOp is an unseen-count increment owed for a message that has been
// persisted. Counts are retried independently from persistence so a flaky
// Redis never forces duplicate message inserts.
type countOp struct {
	role           identity.Role
	conversationID string
}

// Config controls flush timing and retry policy.
type Config struct {
	FlushInterval time.Duration
	MaxRetries    int
	BackoffCap    time.Duration
	// AfterFlush, when set, is called with messages that have permanently
	// left the batcher: persisted to the store, or shipped to the
	// dead-letter topic. The stream consumer uses it to commit offsets
	// only once records are out of volatile memory.
	AfterFlush func(ctx context.Context, handled []models.Message)
}

// Batcher accumulates message events and flushes them on a timer. The timer
// is armed lazily on the first buffered event, so an idle conversation costs
// nothing. All state transitions happen under mu.
type Batcher struct {
	cfg    Config
	saver  MessageSaver
	counts UnseenCounter
	dlq    DeadLetterPublisher
	logger *logger.Logger

	mu            sync.Mutex
	buf           []models.Message
	pendingCounts []countOp
	timer         *time.Timer
	armed         bool
	attempts      int
	closed        bool
}

func New(cfg Config, saver MessageSaver, counts UnseenCounter, dlq DeadLetterPublisher, log *logger.Logger) *Batcher {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 3 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 16 * cfg.FlushInterval
	}
	return &Batcher{
		cfg:    cfg,
		saver:  saver,
		counts: counts,
		dlq:    dlq,
		logger: log.WithComponent("batch"),
	}
}

// OnEvent buffers one message event. The first event after an empty buffer
// arms the flush timer.
func (b *Batcher) OnEvent(msg models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.buf = append(b.buf, msg)
	b.armLocked(b.cfg.FlushInterval)
}

func (b *Batcher) armLocked(d time.Duration) {
	if b.armed || b.closed {
		return
	}
	b.armed = true
	b.timer = time.AfterFunc(d, func() { b.Flush(context.Background()) })
}

// Flush drains the buffer and writes it to the store, then settles any owed
// unseen-count increments. On persistence failure the entire batch is
// re-queued ahead of newer events and the timer re-armed with exponential
// backoff; once retries are exhausted the batch is shipped to the
// dead-letter topic and dropped.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.buf
	counts := b.pendingCounts
	b.buf = nil
	b.pendingCounts = nil
	b.armed = false
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(batch) > 0 {
		if err := b.saver.SaveBatch(ctx, batch); err != nil {
			b.requeueBatch(batch, counts, err)
			return
		}
		metrics.BatchFlushes.WithLabelValues("success").Inc()
		metrics.BatchSize.Observe(float64(len(batch)))
		b.mu.Lock()
		b.attempts = 0
		b.mu.Unlock()
		if b.cfg.AfterFlush != nil {
			b.cfg.AfterFlush(ctx, batch)
		}
		for _, m := range batch {
			sender, err := identity.ParseRole(m.SenderType)
			if err != nil {
				// senderType is validated at gateway ingress; a bad value
				// here means a foreign producer wrote to the topic.
				b.logger.Warn("skipping count for unknown sender type",
					"senderType", m.SenderType, "messageId", m.ID)
				continue
			}
			counts = append(counts, countOp{
				role:           identity.Opposite(sender),
				conversationID: m.ConversationID,
			})
		}
	}

	b.settleCounts(ctx, counts)
}

// requeueBatch puts a failed batch back at the head of the buffer so order
// is preserved relative to events that arrived mid-flush.
func (b *Batcher) requeueBatch(batch []models.Message, counts []countOp, cause error) {
	metrics.BatchFlushes.WithLabelValues("failure").Inc()

	b.mu.Lock()
	b.attempts++
	attempts := b.attempts
	if attempts >= b.cfg.MaxRetries {
		b.attempts = 0
		b.pendingCounts = append(counts, b.pendingCounts...)
		if len(b.buf) > 0 || len(b.pendingCounts) > 0 {
			b.armLocked(b.cfg.FlushInterval)
		}
		b.mu.Unlock()
		b.deadLetter(batch, cause)
		return
	}
	b.buf = append(batch, b.buf...)
	b.pendingCounts = append(counts, b.pendingCounts...)
	backoff := b.backoff(attempts)
	b.armLocked(backoff)
	b.mu.Unlock()

	b.logger.Warn("batch flush failed, retrying",
		"error", cause, "attempt", attempts, "backoff", backoff, "size", len(batch))
}

// settleCounts applies owed unseen-count increments. Failures are re-queued
// for the next flush; the messages themselves are already durable.
func (b *Batcher) settleCounts(ctx context.Context, counts []countOp) {
	var failed []countOp
	for i, op := range counts {
		if _, err := b.counts.Increment(ctx, op.role, op.conversationID); err != nil {
			failed = counts[i:]
			b.logger.Warn("unseen count increment failed, re-queueing",
				"error", err, "remaining", len(failed))
			break
		}
	}
	if len(failed) == 0 {
		return
	}
	b.mu.Lock()
	b.pendingCounts = append(b.pendingCounts, failed...)
	if !b.closed {
		b.armLocked(b.cfg.FlushInterval)
	}
	b.mu.Unlock()
}

func (b *Batcher) backoff(attempt int) time.Duration {
	d := b.cfg.FlushInterval
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.cfg.BackoffCap {
			return b.cfg.BackoffCap
		}
	}
	if d > b.cfg.BackoffCap {
		d = b.cfg.BackoffCap
	}
	return d
}

// deadLetter ships an unpersistable batch to the dead-letter topic so it
// can be replayed once the store recovers.
func (b *Batcher) deadLetter(batch []models.Message, cause error) {
	b.logger.Error("batch exhausted retries, dead-lettering",
		"error", cause, "size", len(batch))
	ctx := context.Background()
	for _, m := range batch {
		// Dead-letter records keep the stream record shape so they can be
		// replayed through the same consumer.
		payload, err := json.Marshal(events.MessagePayload{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			SenderType:     m.SenderType,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
		})
		if err != nil {
			b.logger.Error("dead-letter marshal failed", "error", err, "messageId", m.ID)
			continue
		}
		if err := b.dlq.Publish(ctx, m.ConversationID, payload); err != nil {
			b.logger.Error("dead-letter publish failed", "error", err, "messageId", m.ID)
			continue
		}
		metrics.DeadLettered.Inc()
	}
	if b.cfg.AfterFlush != nil {
		b.cfg.AfterFlush(ctx, batch)
	}
}

// Close stops the timer and performs a final synchronous flush so buffered
// messages survive a graceful shutdown.
func (b *Batcher) Close(ctx context.Context) {
	b.mu.Lock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.armed = false
	b.mu.Unlock()
	b.Flush(ctx)
}

// Pending reports buffered message and count volume, for tests and health
// introspection.
func (b *Batcher) Pending() (msgs, counts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf), len(b.pendingCounts)
}
