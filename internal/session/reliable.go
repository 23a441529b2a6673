package session

import "github.com/1ureka/netcode/internal/protocol"

// Reliable delivery engine. Each connection keeps two fixed-capacity
// circular arrays indexed by sequence mod capacity: outgoing in-flight
// packets awaiting acknowledgment, and a receipt window over recently
// received sequences that suppresses duplicates caused by retransmission.
//
// Window control is a simple additive-increase/linear-decrease heuristic:
// every acknowledgment grows the retransmission budget by one, every
// retransmission shrinks it by one.
const (
	// WindowCapacity is the size of the in-flight rings.
	WindowCapacity = 512

	// MinWindow and MaxWindow bound the per-tick retransmission budget.
	MinWindow = 4
	MaxWindow = WindowCapacity / 2

	// MaxRetries is the retry budget before a packet is abandoned.
	MaxRetries = 10

	// Adaptive timeout clamp, milliseconds.
	minRetryTimeout = 100
	maxRetryTimeout = 5000

	// initialWindow is the budget a fresh connection starts with.
	initialWindow = 32
)

// inFlight is one sent reliable packet awaiting acknowledgment.
type inFlight struct {
	header    protocol.Header
	payload   []byte
	sendTime  int64
	lastRetry int64
	retries   int
	acked     bool
	used      bool
}

// Resend is a retransmission order returned by Due: the stored packet bytes
// must be sent again verbatim.
type Resend struct {
	Header  protocol.Header
	Payload []byte
}

// Reliable holds one connection's delivery state.
type Reliable struct {
	outgoing [WindowCapacity]inFlight

	// Receipt window for duplicate suppression. Slots are cleared as the
	// window advances past them, so sequence wraparound cannot misflag a
	// fresh packet.
	incoming     [WindowCapacity]bool
	lastIncoming uint16 // serially newest sequence received
	incomingInit bool

	window int
	rtt    int64 // smoothed round-trip, ms
	jitter int64 // smoothed |sample - rtt|, ms

	lost int64 // packets abandoned after retry exhaustion
}

func (r *Reliable) init() {
	r.window = initialWindow
}

// Window returns the current retransmission budget.
func (r *Reliable) Window() int { return r.window }

// Lost returns how many packets were abandoned after retry exhaustion.
func (r *Reliable) Lost() int64 { return r.lost }

// Track records a just-sent reliable packet. The slot is overwritten
// unconditionally: by the time a sequence wraps around the ring, the old
// occupant has either been acknowledged or abandoned.
func (r *Reliable) Track(h protocol.Header, payload []byte, now int64) {
	slot := &r.outgoing[int(h.Sequence)%WindowCapacity]

	stored := make([]byte, len(payload))
	copy(stored, payload)

	*slot = inFlight{
		header:    h,
		payload:   stored,
		sendTime:  now,
		lastRetry: now,
		used:      true,
	}
}

// Acknowledge marks the matching outgoing slot delivered. It is idempotent:
// only the first ack for a sequence updates RTT, jitter, and the window.
// Acks for empty or recycled slots are no-ops.
func (r *Reliable) Acknowledge(seq uint16, now int64) bool {
	slot := &r.outgoing[int(seq)%WindowCapacity]

	if !slot.used || slot.header.Sequence != seq || slot.acked {
		return false
	}
	slot.acked = true
	slot.payload = nil

	r.ObserveRTT(now - slot.sendTime)

	if r.window < MaxWindow {
		r.window++
	}
	return true
}

// ObserveRTT folds a round-trip sample into the smoothed estimates. Fed by
// acknowledgments and by ping echoes.
func (r *Reliable) ObserveRTT(sample int64) {
	if sample < 0 {
		sample = 0
	}

	// Exponential moving averages, 7/8 weight on history.
	r.rtt = (r.rtt*7 + sample) / 8

	delta := sample - r.rtt
	if delta < 0 {
		delta = -delta
	}
	r.jitter = (r.jitter*7 + delta) / 8
}

// retryTimeout is the adaptive retransmission deadline.
func (r *Reliable) retryTimeout() int64 {
	t := r.rtt + 4*r.jitter
	if t < minRetryTimeout {
		t = minRetryTimeout
	}
	if t > maxRetryTimeout {
		t = maxRetryTimeout
	}
	return t
}

// Due scans the outgoing ring for overdue packets. At most the current
// window's worth of resends is issued per call; each resend shrinks the
// window by one. Packets past the retry budget are abandoned: marked
// delivered, never resurrected, counted as lost exactly once, and reported
// in the second return value so the caller can surface the loss.
func (r *Reliable) Due(now int64) (resend []Resend, abandoned []uint16) {
	timeout := r.retryTimeout()
	budget := r.window

	for i := range r.outgoing {
		slot := &r.outgoing[i]
		if !slot.used || slot.acked {
			continue
		}
		if now-slot.lastRetry <= timeout {
			continue
		}

		if slot.retries >= MaxRetries {
			slot.acked = true
			slot.payload = nil
			r.lost++
			abandoned = append(abandoned, slot.header.Sequence)
			continue
		}

		slot.lastRetry = now
		slot.retries++
		resend = append(resend, Resend{Header: slot.header, Payload: slot.payload})

		if r.window > MinWindow {
			r.window--
		}

		budget--
		if budget <= 0 {
			break
		}
	}

	return resend, abandoned
}

// MarkIncoming records a received reliable sequence and reports whether it
// was already seen — retransmitted duplicates must be acked again but not
// re-queued for the application. Sequences are compared serially: when the
// window advances, the slots it moves past are cleared, so a wrapped-around
// sequence number reads as fresh. Anything more than the window's capacity
// behind the newest sequence is stale and reported as a duplicate.
func (r *Reliable) MarkIncoming(seq uint16) (duplicate bool) {
	idx := int(seq) % WindowCapacity

	if !r.incomingInit {
		r.incomingInit = true
		r.lastIncoming = seq
		r.incoming[idx] = true
		return false
	}

	delta := int(int16(seq - r.lastIncoming))
	if delta > 0 {
		steps := delta
		if steps > WindowCapacity {
			steps = WindowCapacity
		}
		for i := 0; i < steps; i++ {
			r.incoming[(idx+WindowCapacity-i)%WindowCapacity] = false
		}
		r.incoming[idx] = true
		r.lastIncoming = seq
		return false
	}

	if -delta >= WindowCapacity {
		return true
	}
	if r.incoming[idx] {
		return true
	}
	r.incoming[idx] = true
	return false
}
