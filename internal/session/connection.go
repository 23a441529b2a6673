// Package session tracks per-peer state: the connection table, the reliable
// delivery windows, the lag-compensation history, and the movement
// validator. Everything here is plain data driven by the transport's tick —
// no I/O, no goroutines.
package session

import (
	"net"

	"github.com/1ureka/netcode/internal/protocol"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating // reserved; the handshake currently goes straight to Connected
	StateConnected
	StateTimeout
	StateBanned
)

var stateNames = []string{"DISCONNECTED", "CONNECTING", "AUTHENTICATING", "CONNECTED", "TIMEOUT", "BANNED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Bandwidth tracks per-connection traffic and the optional throttle
// deadline derived from a configured KB/s limit.
type Bandwidth struct {
	BytesSent       int
	BytesReceived   int
	PacketsSent     int
	PacketsReceived int

	RateInKBs  float64 // gauges refreshed once per second
	RateOutKBs float64

	lastUpdate    int64
	ThrottleUntil int64
}

// Refresh recomputes the KB/s gauges and resets the window counters. Called
// by the driver roughly once per second.
func (b *Bandwidth) Refresh(now int64) {
	if b.lastUpdate == 0 {
		b.lastUpdate = now
		return
	}
	elapsed := float64(now-b.lastUpdate) / 1000.0
	if elapsed < 1.0 {
		return
	}

	b.RateInKBs = float64(b.BytesReceived) / 1024.0 / elapsed
	b.RateOutKBs = float64(b.BytesSent) / 1024.0 / elapsed

	b.BytesSent = 0
	b.BytesReceived = 0
	b.PacketsSent = 0
	b.PacketsReceived = 0
	b.lastUpdate = now
}

// Connection is one remote peer's session record.
type Connection struct {
	ID       uint32
	Addr     *net.UDPAddr
	AddrKey  string // canonical address string, the table's lookup key
	State    State
	Name     string
	Features uint32
	Security uint8

	// Sequence bookkeeping. lastSequence is the last outgoing sequence
	// issued; LastAck is the highest sequence seen from the peer, echoed
	// back in every outgoing header.
	lastSequence uint16
	LastAck      uint16

	LastActivity  int64
	LastHeartbeat int64
	JoinTime      int64

	Reliable  Reliable
	History   History
	Validator Validator
	Bandwidth Bandwidth

	// Opaque player info carried for broadcasts.
	Team  int
	Score int

	VoiceEnabled bool
	VoiceMuted   bool
}

// NewConnection creates a connected session record with neutral trust and a
// small initial reliable window. Callers adjust State for pending handshakes.
func NewConnection(id uint32, addr *net.UDPAddr, now int64) *Connection {
	c := &Connection{
		ID:            id,
		Addr:          addr,
		AddrKey:       addr.String(),
		State:         StateConnected,
		LastActivity:  now,
		LastHeartbeat: now,
		JoinTime:      now,
	}
	c.Reliable.init()
	c.Validator.init()
	return c
}

// NextSequence returns the next outgoing sequence number. Zero is skipped
// on wraparound because a zero ack field means "nothing to acknowledge".
func (c *Connection) NextSequence() uint16 {
	c.lastSequence++
	if c.lastSequence == 0 {
		c.lastSequence = 1
	}
	return c.lastSequence
}

// Touch records peer activity and updates the serially newest sequence seen.
// Serial arithmetic keeps the piggyback ack advancing across uint16
// wraparound.
func (c *Connection) Touch(h *protocol.Header, size int, now int64) {
	c.LastActivity = now
	c.Bandwidth.BytesReceived += size
	c.Bandwidth.PacketsReceived++
	if int16(h.Sequence-c.LastAck) > 0 {
		c.LastAck = h.Sequence
	}
}

// PingMillis returns the smoothed round-trip estimate.
func (c *Connection) PingMillis() int64 { return c.Reliable.rtt }

// JitterMillis returns the smoothed RTT deviation estimate.
func (c *Connection) JitterMillis() int64 { return c.Reliable.jitter }
