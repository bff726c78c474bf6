package batch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eshop-marketplace/chatting-service/internal/chat/events"
	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/internal/models"
	"eshop-marketplace/chatting-service/pkg/logger"
)

type fakeSaver struct {
	mu      sync.Mutex
	batches [][]models.Message
	failN   int
}

func (f *fakeSaver) SaveBatch(_ context.Context, msgs []models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("store unavailable")
	}
	batch := make([]models.Message, len(msgs))
	copy(batch, msgs)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSaver) saved() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeCounter struct {
	mu    sync.Mutex
	incs  []string
	failN int
}

func (f *fakeCounter) Increment(_ context.Context, role identity.Role, conversationID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return 0, errors.New("redis unavailable")
	}
	f.incs = append(f.incs, string(role)+":"+conversationID)
	return int64(len(f.incs)), nil
}

type fakeDLQ struct {
	mu      sync.Mutex
	records [][]byte
}

func (f *fakeDLQ) Publish(_ context.Context, _ string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, value)
	return nil
}

func newTestBatcher(saver *fakeSaver, counter *fakeCounter, dlq *fakeDLQ, maxRetries int) *Batcher {
	// A huge interval keeps the timer from firing mid-test; flushes are
	// driven explicitly.
	return New(Config{
		FlushInterval: time.Hour,
		MaxRetries:    maxRetries,
		BackoffCap:    2 * time.Hour,
	}, saver, counter, dlq, logger.New(logger.Config{Level: "error"}))
}

func msg(id, conv, senderType string) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       "s1",
		SenderType:     senderType,
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestFlushPersistsAndCountsForRecipient(t *testing.T) {
	saver := &fakeSaver{}
	counter := &fakeCounter{}
	b := newTestBatcher(saver, counter, &fakeDLQ{}, 3)

	b.OnEvent(msg("m1", "c1", "user"))
	b.OnEvent(msg("m2", "c1", "seller"))
	b.Flush(context.Background())

	require.Len(t, saver.saved(), 2)
	// Counts go to the side opposite the sender.
	assert.Equal(t, []string{"seller:c1", "user:c1"}, counter.incs)

	msgs, counts := b.Pending()
	assert.Zero(t, msgs)
	assert.Zero(t, counts)
}

func TestFlushFailureRequeuesInOrder(t *testing.T) {
	saver := &fakeSaver{failN: 1}
	counter := &fakeCounter{}
	b := newTestBatcher(saver, counter, &fakeDLQ{}, 5)

	b.OnEvent(msg("m1", "c1", "user"))
	b.OnEvent(msg("m2", "c1", "user"))
	b.Flush(context.Background())

	// Nothing persisted, everything requeued.
	assert.Empty(t, saver.saved())
	pending, _ := b.Pending()
	assert.Equal(t, 2, pending)

	// Events arriving after the failure queue up behind the retried batch.
	b.OnEvent(msg("m3", "c1", "user"))
	b.Flush(context.Background())

	saved := saver.saved()
	require.Len(t, saved, 3)
	assert.Equal(t, "m1", saved[0].ID)
	assert.Equal(t, "m2", saved[1].ID)
	assert.Equal(t, "m3", saved[2].ID)
}

func TestCounterFailureDoesNotRepersist(t *testing.T) {
	saver := &fakeSaver{}
	counter := &fakeCounter{failN: 1}
	b := newTestBatcher(saver, counter, &fakeDLQ{}, 5)

	b.OnEvent(msg("m1", "c1", "user"))
	b.Flush(context.Background())

	// Persisted once, but the count is still owed.
	require.Len(t, saver.saved(), 1)
	pendingMsgs, pendingCounts := b.Pending()
	assert.Zero(t, pendingMsgs)
	assert.Equal(t, 1, pendingCounts)

	b.Flush(context.Background())

	// The retry settles the count without re-inserting the message.
	assert.Len(t, saver.saved(), 1)
	assert.Equal(t, []string{"seller:c1"}, counter.incs)
	_, pendingCounts = b.Pending()
	assert.Zero(t, pendingCounts)
}

func TestExhaustedRetriesDeadLetter(t *testing.T) {
	saver := &fakeSaver{failN: 10}
	counter := &fakeCounter{}
	dlq := &fakeDLQ{}
	b := newTestBatcher(saver, counter, dlq, 2)

	b.OnEvent(msg("m1", "c1", "user"))
	b.Flush(context.Background())
	b.Flush(context.Background())

	// Second failure hit MaxRetries: the batch is dead-lettered and dropped.
	pending, _ := b.Pending()
	assert.Zero(t, pending)
	require.Len(t, dlq.records, 1)

	var payload events.MessagePayload
	require.NoError(t, json.Unmarshal(dlq.records[0], &payload))
	assert.Equal(t, "m1", payload.ID)
	assert.Equal(t, "c1", payload.ConversationID)

	// No count increments for messages that never persisted.
	assert.Empty(t, counter.incs)
}

func TestReplayedFlushKeepsIDs(t *testing.T) {
	saver := &fakeSaver{failN: 1}
	b := newTestBatcher(saver, &fakeCounter{}, &fakeDLQ{}, 5)

	m := msg("m1", "c1", "user")
	b.OnEvent(m)
	b.Flush(context.Background())
	b.Flush(context.Background())

	saved := saver.saved()
	require.Len(t, saved, 1)
	// The retried insert carries the ingress-assigned ID, which is what
	// lets the store deduplicate a replay.
	assert.Equal(t, m.ID, saved[0].ID)
	assert.Equal(t, m.CreatedAt, saved[0].CreatedAt)
}

func TestCloseFlushesBufferedMessages(t *testing.T) {
	saver := &fakeSaver{}
	b := newTestBatcher(saver, &fakeCounter{}, &fakeDLQ{}, 3)

	b.OnEvent(msg("m1", "c1", "user"))
	b.Close(context.Background())

	assert.Len(t, saver.saved(), 1)

	// Events after Close are refused.
	b.OnEvent(msg("m2", "c1", "user"))
	pending, _ := b.Pending()
	assert.Zero(t, pending)
}

// AfterFlush fires only when messages have permanently left the batcher,
// so stream offsets are never committed for a batch that is still being
// retried in memory.
func TestAfterFlushReportsHandledMessages(t *testing.T) {
	saver := &fakeSaver{failN: 1}
	var handled []string
	b := New(Config{
		FlushInterval: time.Hour,
		MaxRetries:    5,
		BackoffCap:    2 * time.Hour,
		AfterFlush: func(_ context.Context, msgs []models.Message) {
			for _, m := range msgs {
				handled = append(handled, m.ID)
			}
		},
	}, saver, &fakeCounter{}, &fakeDLQ{}, logger.New(logger.Config{Level: "error"}))

	b.OnEvent(msg("m1", "c1", "user"))
	b.Flush(context.Background())

	// The failed batch is requeued, not handled.
	assert.Empty(t, handled)

	b.OnEvent(msg("m2", "c1", "user"))
	b.Flush(context.Background())

	assert.Equal(t, []string{"m1", "m2"}, handled)
}

func TestAfterFlushReportsDeadLetteredMessages(t *testing.T) {
	saver := &fakeSaver{failN: 10}
	dlq := &fakeDLQ{}
	var handled []string
	b := New(Config{
		FlushInterval: time.Hour,
		MaxRetries:    2,
		BackoffCap:    2 * time.Hour,
		AfterFlush: func(_ context.Context, msgs []models.Message) {
			for _, m := range msgs {
				handled = append(handled, m.ID)
			}
		},
	}, saver, &fakeCounter{}, dlq, logger.New(logger.Config{Level: "error"}))

	b.OnEvent(msg("m1", "c1", "user"))
	b.Flush(context.Background())
	b.Flush(context.Background())

	// Dead-lettered messages count as handled; the dead-letter topic now
	// owns them.
	require.Len(t, dlq.records, 1)
	assert.Equal(t, []string{"m1"}, handled)
}

func TestTimerDrivenFlush(t *testing.T) {
	saver := &fakeSaver{}
	counter := &fakeCounter{}
	b := New(Config{
		FlushInterval: 20 * time.Millisecond,
		MaxRetries:    3,
		BackoffCap:    time.Second,
	}, saver, counter, &fakeDLQ{}, logger.New(logger.Config{Level: "error"}))

	b.OnEvent(msg("m1", "c1", "user"))

	assert.Eventually(t, func() bool {
		return len(saver.saved()) == 1
	}, time.Second, 10*time.Millisecond)
}
