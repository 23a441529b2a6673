package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netcode/internal/protocol"
)

func msgN(n int, priority float64) Message {
	return Message{
		Type:     protocol.TypeCustom,
		Sender:   uint32(n),
		Payload:  []byte{byte(n)},
		Priority: priority,
	}
}

func TestQueueFIFOAtEqualPriority(t *testing.T) {
	var q Queue
	for i := 0; i < 5; i++ {
		q.Enqueue(msgN(i, 1))
	}

	for i := 0; i < 5; i++ {
		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, uint32(i), got.Sender)
	}

	_, ok := q.Dequeue()
	assert.False(t, ok, "dequeue from drained queue")
}

func TestQueuePriorityBeatsArrivalOrder(t *testing.T) {
	var q Queue
	q.Enqueue(msgN(1, 1))
	q.Enqueue(msgN(2, 0.5))
	q.Enqueue(msgN(3, 3))

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	third, _ := q.Dequeue()

	assert.Equal(t, uint32(3), first.Sender, "highest priority first")
	assert.Equal(t, uint32(1), second.Sender)
	assert.Equal(t, uint32(2), third.Sender, "voice-grade traffic last")
}

func TestQueueOverflowEvictsOldest(t *testing.T) {
	var q Queue
	for i := 0; i < QueueCapacity+1; i++ {
		q.Enqueue(msgN(i, 1))
	}

	assert.Equal(t, QueueCapacity, q.Len())
	assert.Equal(t, int64(1), q.Evicted())

	// Message 0 was evicted; 1 is now the oldest.
	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, uint32(1), got.Sender)
}

func TestQueueCopiesPayload(t *testing.T) {
	var q Queue
	payload := []byte{1, 2, 3}
	q.Enqueue(Message{Type: protocol.TypeCustom, Payload: payload, Priority: 1})

	payload[0] = 99

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, byte(1), got.Payload[0], "queue must own its buffers")
}

func TestQueueReclaimsProcessedSlots(t *testing.T) {
	var q Queue

	// Fill and drain repeatedly past the capacity to prove slots recycle.
	for round := 0; round < 3; round++ {
		for i := 0; i < QueueCapacity; i++ {
			q.Enqueue(msgN(i, 1))
		}
		for i := 0; i < QueueCapacity; i++ {
			_, ok := q.Dequeue()
			require.True(t, ok, "round %d, message %d", round, i)
		}
		assert.Equal(t, 0, q.Len())
	}
	assert.Equal(t, int64(0), q.Evicted())
}
