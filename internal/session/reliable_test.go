package session

import (
	"net"
	"testing"

	"github.com/1ureka/netcode/internal/protocol"
)

func testConn(t *testing.T) *Connection {
	t.Helper()
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7777}
	return NewConnection(1, addr, 0)
}

func trackOne(c *Connection, now int64) uint16 {
	seq := c.NextSequence()
	h := protocol.Header{Type: protocol.TypeEvent, Sequence: seq, Flags: protocol.FlagReliable}
	c.Reliable.Track(h, []byte("payload"), now)
	return seq
}

func TestNextSequenceSkipsZero(t *testing.T) {
	c := testConn(t)

	prev := c.NextSequence()
	for i := 0; i < 70000; i++ {
		seq := c.NextSequence()
		if seq == 0 {
			t.Fatal("sequence 0 was issued")
		}
		if seq != prev+1 && !(prev == 65535 && seq == 1) {
			t.Fatalf("sequence jumped from %d to %d", prev, seq)
		}
		prev = seq
	}
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	c := testConn(t)
	seq := trackOne(c, 100)

	if !c.Reliable.Acknowledge(seq, 150) {
		t.Fatal("first ack rejected")
	}
	windowAfterFirst := c.Reliable.Window()
	pingAfterFirst := c.PingMillis()

	// Duplicate acks must not move RTT or the window again.
	if c.Reliable.Acknowledge(seq, 900) {
		t.Error("duplicate ack accepted")
	}
	if c.Reliable.Window() != windowAfterFirst {
		t.Error("duplicate ack changed the window")
	}
	if c.PingMillis() != pingAfterFirst {
		t.Error("duplicate ack changed the RTT estimate")
	}

	// Acks for sequences never sent are no-ops too.
	if c.Reliable.Acknowledge(seq+100, 200) {
		t.Error("ack for unsent sequence accepted")
	}
}

func TestWindowGrowsOnAckShrinksOnRetry(t *testing.T) {
	c := testConn(t)

	start := c.Reliable.Window()

	seq := trackOne(c, 0)
	c.Reliable.Acknowledge(seq, 10)
	if c.Reliable.Window() != start+1 {
		t.Errorf("window after ack: got %d, want %d", c.Reliable.Window(), start+1)
	}

	// An unacked packet past the timeout shrinks the window per resend.
	trackOne(c, 100)
	resend, abandoned := c.Reliable.Due(100 + maxRetryTimeout + 1)
	if len(resend) != 1 || len(abandoned) != 0 {
		t.Fatalf("Due: %d resends, %d abandoned", len(resend), len(abandoned))
	}
	if c.Reliable.Window() != start {
		t.Errorf("window after retry: got %d, want %d", c.Reliable.Window(), start)
	}
}

func TestWindowStaysWithinBounds(t *testing.T) {
	c := testConn(t)

	for i := 0; i < MaxWindow*2; i++ {
		seq := trackOne(c, int64(i))
		c.Reliable.Acknowledge(seq, int64(i)+1)
	}
	if w := c.Reliable.Window(); w != MaxWindow {
		t.Errorf("window exceeded cap: %d", w)
	}

	now := int64(1000000)
	for i := 0; i < MaxWindow*2; i++ {
		trackOne(c, now)
		now += maxRetryTimeout + 1
		c.Reliable.Due(now)
	}
	if w := c.Reliable.Window(); w != MinWindow {
		t.Errorf("window fell past floor: %d", w)
	}
}

func TestRetryExhaustionAbandonsOnce(t *testing.T) {
	c := testConn(t)
	seq := trackOne(c, 0)

	now := int64(0)
	var abandonedTotal int

	// Walk time forward far enough to burn through every retry.
	for i := 0; i < MaxRetries+5; i++ {
		now += maxRetryTimeout + 1
		_, abandoned := c.Reliable.Due(now)
		for _, a := range abandoned {
			if a != seq {
				t.Errorf("abandoned unexpected sequence %d", a)
			}
			abandonedTotal++
		}
	}

	if abandonedTotal != 1 {
		t.Errorf("packet abandoned %d times, want exactly 1", abandonedTotal)
	}
	if c.Reliable.Lost() != 1 {
		t.Errorf("lost counter = %d, want 1", c.Reliable.Lost())
	}

	// The slot is spent: no more resends, no late resurrection.
	now += maxRetryTimeout + 1
	resend, abandoned := c.Reliable.Due(now)
	if len(resend) != 0 || len(abandoned) != 0 {
		t.Error("abandoned packet came back to life")
	}
}

func TestDueRespectsResendBudget(t *testing.T) {
	c := testConn(t)

	tracked := c.Reliable.Window() + 10
	for i := 0; i < tracked; i++ {
		trackOne(c, 0)
	}

	budget := c.Reliable.Window()
	resend, _ := c.Reliable.Due(maxRetryTimeout + 1)
	if len(resend) > budget {
		t.Errorf("issued %d resends with a budget of %d", len(resend), budget)
	}
}

func TestMarkIncomingDetectsDuplicates(t *testing.T) {
	c := testConn(t)

	if c.Reliable.MarkIncoming(5) {
		t.Error("fresh sequence flagged as duplicate")
	}
	if !c.Reliable.MarkIncoming(5) {
		t.Error("repeated sequence not flagged")
	}
	if c.Reliable.MarkIncoming(6) {
		t.Error("different sequence flagged as duplicate")
	}

	// Out-of-order arrival within the window is fresh once, duplicate after.
	if c.Reliable.MarkIncoming(3) {
		t.Error("older in-window sequence flagged as duplicate")
	}
	if !c.Reliable.MarkIncoming(3) {
		t.Error("repeated older sequence not flagged")
	}
}

func TestMarkIncomingSurvivesWraparound(t *testing.T) {
	c := testConn(t)

	if c.Reliable.MarkIncoming(200) {
		t.Error("fresh sequence flagged as duplicate")
	}
	if !c.Reliable.MarkIncoming(200) {
		t.Error("repeated sequence not flagged")
	}

	// The stream advances a full lap of the sequence space; 200 then comes
	// around again as a brand-new packet and must not be mistaken for the
	// old one.
	seq := uint16(200)
	for i := 0; i < 66; i++ {
		seq += 1000
		if c.Reliable.MarkIncoming(seq) {
			t.Fatalf("advancing sequence %d flagged as duplicate", seq)
		}
	}
	if c.Reliable.MarkIncoming(200) {
		t.Error("wrapped-around sequence flagged as duplicate")
	}

	// Anything the window has long moved past is stale, not deliverable.
	if !c.Reliable.MarkIncoming(64000) {
		t.Error("stale sequence behind the window not suppressed")
	}
}

func TestTouchAdvancesAckAcrossWraparound(t *testing.T) {
	c := testConn(t)

	h := protocol.Header{Sequence: 65535}
	c.Touch(&h, 0, 0)
	if c.LastAck != 65535 {
		t.Fatalf("LastAck = %d, want 65535", c.LastAck)
	}

	// The peer's counter wraps; the piggyback ack must keep advancing.
	h.Sequence = 2
	c.Touch(&h, 0, 0)
	if c.LastAck != 2 {
		t.Errorf("LastAck = %d after wraparound, want 2", c.LastAck)
	}

	// A stale retransmit from before the wrap must not drag it back.
	h.Sequence = 65534
	c.Touch(&h, 0, 0)
	if c.LastAck != 2 {
		t.Errorf("LastAck = %d after stale sequence, want 2", c.LastAck)
	}
}

func TestObserveRTTSmooths(t *testing.T) {
	c := testConn(t)

	for i := 0; i < 50; i++ {
		c.Reliable.ObserveRTT(80)
	}
	if ping := c.PingMillis(); ping < 70 || ping > 80 {
		t.Errorf("smoothed RTT %d after steady 80ms samples", ping)
	}

	// One outlier must not yank the estimate to the sample.
	c.Reliable.ObserveRTT(800)
	if ping := c.PingMillis(); ping > 200 {
		t.Errorf("single outlier moved RTT to %d", ping)
	}
}
