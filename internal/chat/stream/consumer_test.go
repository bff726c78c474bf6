package stream

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetTrackerTakeRemovesTracked(t *testing.T) {
	tracker := NewOffsetTracker()
	tracker.Track("m1", kafka.Message{Partition: 0, Offset: 10})
	tracker.Track("m2", kafka.Message{Partition: 0, Offset: 11})

	msgs := tracker.Take([]string{"m1", "m2"})
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(10), msgs[0].Offset)
	assert.Equal(t, int64(11), msgs[1].Offset)

	// A second take finds nothing; the positions are spent.
	assert.Empty(t, tracker.Take([]string{"m1", "m2"}))
}

func TestOffsetTrackerSkipsUnknownIDs(t *testing.T) {
	tracker := NewOffsetTracker()
	tracker.Track("m1", kafka.Message{Offset: 5})

	// Ids replayed from the dead-letter topic have no in-flight position.
	msgs := tracker.Take([]string{"m1", "replayed"})
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(5), msgs[0].Offset)
}

func TestOffsetTrackerRedeliveryOverwrites(t *testing.T) {
	tracker := NewOffsetTracker()
	tracker.Track("m1", kafka.Message{Offset: 5})
	// A rebalance redelivers the record at a new fetch position.
	tracker.Track("m1", kafka.Message{Offset: 9})

	msgs := tracker.Take([]string{"m1"})
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(9), msgs[0].Offset)
}
