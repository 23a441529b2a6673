package transport

import "github.com/1ureka/netcode/internal/protocol"

// Message dispatch queue: a bounded ring decoupling "a packet arrived" from
// "game logic processed it". Enqueue copies the payload so the queue owns
// its buffers; overflow evicts the oldest entry. Dequeue is NOT FIFO — it
// scans for the highest-priority unprocessed entry, an O(capacity) pull
// that is fine at this size and is observable protocol behavior.

// QueueCapacity bounds the number of buffered messages.
const QueueCapacity = 1024

// Message is one decoded application payload awaiting consumption.
type Message struct {
	Type      protocol.PacketType
	Sender    uint32
	Payload   []byte
	Timestamp uint32
	Priority  float64

	processed bool
	used      bool
}

// Queue is the bounded dispatch buffer. Owned by the Transport; not safe
// for concurrent use on its own.
type Queue struct {
	entries  [QueueCapacity]Message
	head     int // next write position
	tail     int // oldest entry
	count    int
	evicted  int64
	enqueued int64
}

// Len returns the number of buffered entries (processed ones included until
// the tail advances past them).
func (q *Queue) Len() int { return q.count }

// Evicted returns how many entries were dropped to overflow.
func (q *Queue) Evicted() int64 { return q.evicted }

// Enqueue buffers a message, copying the payload. When the queue is full
// the oldest entry is evicted, processed or not — availability over
// completeness.
func (q *Queue) Enqueue(msg Message) {
	if q.count == QueueCapacity {
		q.entries[q.tail] = Message{}
		q.tail = (q.tail + 1) % QueueCapacity
		q.count--
		q.evicted++
	}

	owned := make([]byte, len(msg.Payload))
	copy(owned, msg.Payload)
	msg.Payload = owned
	msg.processed = false
	msg.used = true

	q.entries[q.head] = msg
	q.head = (q.head + 1) % QueueCapacity
	q.count++
	q.enqueued++
}

// Dequeue returns the highest-priority unprocessed message, marking it
// processed in place. Once the run of entries at the tail is fully
// processed those slots are freed and the tail advances.
func (q *Queue) Dequeue() (Message, bool) {
	if q.count == 0 {
		return Message{}, false
	}

	best := -1
	bestPriority := -1.0

	idx := q.tail
	for i := 0; i < q.count; i++ {
		e := &q.entries[idx]
		if e.used && !e.processed && e.Priority > bestPriority {
			bestPriority = e.Priority
			best = idx
		}
		idx = (idx + 1) % QueueCapacity
	}

	if best < 0 {
		// Everything buffered is processed; reclaim the ring.
		for q.count > 0 && q.entries[q.tail].processed {
			q.entries[q.tail] = Message{}
			q.tail = (q.tail + 1) % QueueCapacity
			q.count--
		}
		return Message{}, false
	}

	e := &q.entries[best]
	e.processed = true
	out := *e

	// Advance the tail over any leading processed run.
	for q.count > 0 && q.entries[q.tail].processed {
		q.entries[q.tail] = Message{}
		q.tail = (q.tail + 1) % QueueCapacity
		q.count--
	}

	return out, true
}
