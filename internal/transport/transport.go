// Package transport is the driver tying everything together: UDP sockets,
// the connection table, the reliable delivery engine, and the dispatch
// queue. One Transport instance is either a server or a client; a single
// mutex serializes its exported methods, so the game loop and any helper
// goroutines may call in freely.
package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/1ureka/netcode/internal/config"
	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/session"
	"github.com/1ureka/netcode/internal/transfer"
	"github.com/1ureka/netcode/internal/util"
)

// Mode identifies which end of the protocol this transport speaks.
type Mode int

const (
	ModeIdle Mode = iota
	ModeServer
	ModeClient
)

// Driver timing, milliseconds.
const (
	heartbeatInterval = 5000
	connectionTimeout = 30000
	pingInterval      = 5000

	// serverConnID is the client side's fixed table key for the server.
	serverConnID = 0
)

// Transport owns all networking state. Zero value is not usable; construct
// with New.
type Transport struct {
	mu sync.Mutex

	cfg  *config.Config
	mode Mode

	sock4 *net.UDPConn
	sock6 *net.UDPConn

	table     *session.Table
	queue     Queue
	transfers *transfer.Manager
	stats     util.Stats

	localID uint32
	key     []byte // session cipher key; nil until the handshake completes

	epoch time.Time

	lastPing  int64
	pingSeq   uint32
	connectAt int64 // client: when the connect request went out

	readBuf []byte
}

// New creates an idle transport bound to the given configuration.
func New(cfg *config.Config) *Transport {
	t := &Transport{
		cfg:     cfg,
		epoch:   time.Now(),
		readBuf: make([]byte, protocol.MaxPacketSize+64),
	}
	t.transfers = transfer.NewManager(t.transferSend, t.transferDone)
	return t
}

// now returns milliseconds since the transport was created. All protocol
// timestamps and timers use this clock.
func (t *Transport) now() int64 {
	return time.Since(t.epoch).Milliseconds()
}

// Mode returns the current operating mode.
func (t *Transport) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// LocalID returns this peer's client ID (0 for the server).
func (t *Transport) LocalID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.localID
}

// Stats exposes the traffic counters. Safe to read concurrently.
func (t *Transport) Stats() *util.Stats { return &t.stats }

// LocalAddr returns the bound address of the primary socket, or nil when
// idle. Useful when the configured port is 0 (ephemeral).
func (t *Transport) LocalAddr() *net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()

	sock := t.sock4
	if sock == nil {
		sock = t.sock6
	}
	if sock == nil {
		return nil
	}
	addr, _ := sock.LocalAddr().(*net.UDPAddr)
	return addr
}

// ConnectionCount returns the number of live sessions.
func (t *Transport) ConnectionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.table == nil {
		return 0
	}
	return t.table.Len()
}

// PeerInfo is a read-only snapshot of one connection for display.
type PeerInfo struct {
	ID           uint32
	Name         string
	Addr         string
	State        session.State
	PingMillis   int64
	JitterMillis int64
	Trust        float64
	Team         int
	Score        int
}

// Peers returns a snapshot of every live connection.
func (t *Transport) Peers() []PeerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.table == nil {
		return nil
	}
	out := make([]PeerInfo, 0, t.table.Len())
	t.table.All(func(c *session.Connection) {
		out = append(out, PeerInfo{
			ID:           c.ID,
			Name:         c.Name,
			Addr:         c.AddrKey,
			State:        c.State,
			PingMillis:   c.PingMillis(),
			JitterMillis: c.JitterMillis(),
			Trust:        c.Validator.Trust,
			Team:         c.Team,
			Score:        c.Score,
		})
	})
	return out
}

// StartServer opens the listen socket(s) and switches to server mode. The
// server always answers IPv4; IPv6 is an opt-in second socket.
func (t *Transport) StartServer() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode != ModeIdle {
		return fmt.Errorf("transport already active")
	}

	sock4, err := openSocket("udp4", t.cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("failed to open IPv4 socket: %w", err)
	}
	t.sock4 = sock4

	if t.cfg.Server.IPv6 {
		sock6, err := openSocket("udp6", t.cfg.Server.Port)
		if err != nil {
			sock4.Close()
			t.sock4 = nil
			return fmt.Errorf("failed to open IPv6 socket: %w", err)
		}
		t.sock6 = sock6
	}

	if t.cfg.Features.Encryption {
		t.key = protocol.NewSessionKey()
	}

	t.mode = ModeServer
	t.localID = 0
	t.table = session.NewTable(t.cfg.Server.MaxClients)

	util.LogSuccess("Server %q listening on port %d (max %d clients, tick %g)",
		t.cfg.Server.Name, t.cfg.Server.Port, t.cfg.Server.MaxClients, t.cfg.Tuning.TickRate)
	return nil
}

// Connect opens a socket, records the server as a pending session, and
// sends the connect request. The handshake completes asynchronously; poll
// PullMessage for the CONNECT_RESPONSE notification.
func (t *Transport) Connect(host string, port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode != ModeIdle {
		return fmt.Errorf("transport already active")
	}

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return fmt.Errorf("failed to resolve %s:%d: %w", host, port, err)
	}

	network := "udp4"
	if raddr.IP.To4() == nil {
		network = "udp6"
	}
	sock, err := openSocket(network, 0)
	if err != nil {
		return fmt.Errorf("failed to open socket: %w", err)
	}
	if network == "udp6" {
		t.sock6 = sock
	} else {
		t.sock4 = sock
	}

	t.mode = ModeClient
	t.table = session.NewTable(1)

	now := t.now()
	server := session.NewConnection(serverConnID, raddr, now)
	server.State = session.StateConnecting
	server.Name = t.cfg.Server.Name
	t.table.Insert(server)

	t.connectAt = now
	t.sendConnectRequest(server, now)

	util.LogInfo("Connecting to %s as %q", raddr, t.cfg.Server.PlayerName)
	return nil
}

// Disconnect tears the transport down. A best-effort disconnect notice goes
// to every live peer; no reply is awaited.
func (t *Transport) Disconnect(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode == ModeIdle {
		return
	}

	now := t.now()
	notice := protocol.DisconnectPayload{Reason: reason}
	payload := notice.Marshal()

	t.table.All(func(c *session.Connection) {
		t.sendToConn(c, protocol.TypeDisconnect, payload, false, now)
		t.transfers.CancelPeer(c.ID)
	})

	t.closeSockets()
	t.mode = ModeIdle
	t.table = nil
	t.key = nil
	t.localID = 0

	util.LogInfo("Disconnected: %s", reason)
}

func (t *Transport) closeSockets() {
	if t.sock4 != nil {
		t.sock4.Close()
		t.sock4 = nil
	}
	if t.sock6 != nil {
		t.sock6.Close()
		t.sock6 = nil
	}
}

// Update runs one driver tick: drain incoming datagrams, retransmit overdue
// reliable packets, expire silent peers, emit heartbeats and pings, advance
// file transfers, and refresh gauges. Call at the simulation tick rate.
func (t *Transport) Update() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode == ModeIdle {
		return
	}

	now := t.now()

	t.drainSockets(now)
	if t.mode == ModeIdle {
		// A refusal or remote disconnect during the drain tore us down.
		return
	}
	t.expireConnections(now)
	t.serviceReliable(now)
	t.transfers.Tick()
	t.serviceHeartbeats(now)
	t.serviceBandwidth(now)
	t.refreshPingStat()
}

// PullMessage pops the next application message off the dispatch queue.
func (t *Transport) PullMessage() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Dequeue()
}

// QueueDepth returns the number of buffered dispatch messages.
func (t *Transport) QueueDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Len()
}

// ---------------------------------------------------------------------------
// Tick stages
// ---------------------------------------------------------------------------

// serviceReliable retransmits overdue packets and surfaces abandoned ones.
// An abandoned packet is reported locally as a PACKET_LOST event; the wire
// stays silent about it.
func (t *Transport) serviceReliable(now int64) {
	for _, id := range t.table.IDs() {
		c := t.table.ByID(id)
		if c == nil {
			continue
		}

		resend, abandoned := c.Reliable.Due(now)

		for _, r := range resend {
			t.sendRaw(c, r.Header, r.Payload)
		}
		for _, seq := range abandoned {
			t.stats.ReliableLost.Add(1)
			util.LogWarning("Gave up on packet %d to client %d after %d retries",
				seq, c.ID, session.MaxRetries)

			ev := protocol.EventPayload{
				Kind:    protocol.EventPacketLost,
				Subject: c.ID,
				Data:    fmt.Sprintf("seq %d", seq),
			}
			t.queue.Enqueue(Message{
				Type:      protocol.TypeEvent,
				Sender:    t.localID,
				Payload:   ev.Marshal(),
				Timestamp: uint32(now),
				Priority:  priorityFor(protocol.TypeEvent),
			})
		}
	}
}

// expireConnections drops peers that have been silent past the timeout, and
// in server mode kicks anyone whose smoothed ping exceeds the configured
// ceiling.
func (t *Transport) expireConnections(now int64) {
	for _, id := range t.table.IDs() {
		c := t.table.ByID(id)
		if c == nil {
			continue
		}

		if now-c.LastActivity > connectionTimeout {
			c.State = session.StateTimeout
			util.LogWarning("Client %d (%s) timed out", c.ID, c.Name)
			t.dropConnection(c, "connection timed out", now)
			continue
		}

		if t.mode == ModeServer && c.PingMillis() > int64(t.cfg.Tuning.MaxPingMillis) {
			util.LogWarning("Client %d (%s) over ping limit: %d ms", c.ID, c.Name, c.PingMillis())
			t.kickLocked(c, "ping too high", now)
		}
	}
}

// serviceHeartbeats keeps idle links warm and measures RTT with pings.
func (t *Transport) serviceHeartbeats(now int64) {
	t.table.All(func(c *session.Connection) {
		if now-c.LastHeartbeat >= heartbeatInterval {
			c.LastHeartbeat = now
			t.sendToConn(c, protocol.TypeHeartbeat, nil, false, now)
		}
	})

	if now-t.lastPing >= pingInterval {
		t.lastPing = now
		t.pingSeq++
		ping := protocol.PingPayload{Timestamp: uint32(now), Sequence: t.pingSeq}
		payload := ping.Marshal()
		t.table.All(func(c *session.Connection) {
			t.sendToConn(c, protocol.TypePing, payload, false, now)
		})
	}
}

// serviceBandwidth refreshes the per-connection rate gauges and applies the
// optional throttle.
func (t *Transport) serviceBandwidth(now int64) {
	limit := t.cfg.Tuning.BandwidthLimit
	t.table.All(func(c *session.Connection) {
		before := c.Bandwidth.RateOutKBs
		c.Bandwidth.Refresh(now)
		if limit > 0 && c.Bandwidth.RateOutKBs > float64(limit) && c.Bandwidth.RateOutKBs != before {
			c.Bandwidth.ThrottleUntil = now + 1000
			util.LogDebug("Throttling client %d: %.1f KB/s over %d KB/s limit",
				c.ID, c.Bandwidth.RateOutKBs, limit)
		}
	})
}

func (t *Transport) refreshPingStat() {
	var sum, n int64
	t.table.All(func(c *session.Connection) {
		sum += c.PingMillis()
		n++
	})
	if n > 0 {
		t.stats.AveragePingMillis.Store(sum / n)
	}
}

// dropConnection removes a peer without ceremony: transfers cancelled, a
// leave event broadcast in server mode, and in client mode the transport
// goes idle.
func (t *Transport) dropConnection(c *session.Connection, reason string, now int64) {
	t.table.Remove(c.ID)
	t.transfers.CancelPeer(c.ID)

	if t.mode == ModeServer {
		t.broadcastEvent(protocol.EventPlayerLeft, c.ID, reason, now)
	} else {
		t.closeSockets()
		t.mode = ModeIdle
		t.table = session.NewTable(1)
		t.key = nil
	}

	t.queue.Enqueue(Message{
		Type:      protocol.TypeDisconnect,
		Sender:    c.ID,
		Payload:   (&protocol.DisconnectPayload{Reason: reason}).Marshal(),
		Timestamp: uint32(now),
		Priority:  priorityFor(protocol.TypeDisconnect),
	})
}

// transferSend adapts the locked send path for the transfer manager.
func (t *Transport) transferSend(target uint32, typ protocol.PacketType, payload []byte, reliable bool) bool {
	c := t.table.ByID(target)
	if c == nil {
		return false
	}
	return t.sendToConn(c, typ, payload, reliable, t.now())
}

// transferDone surfaces a finished download to the application. The queue is
// local, so the wire payload ceiling does not apply; the payload is the
// filename (u8 length prefix) followed by the raw file content. SplitFile
// undoes the framing.
func (t *Transport) transferDone(peer uint32, filename string, data []byte) {
	name := filename
	if len(name) > 255 {
		name = name[:255]
	}
	payload := make([]byte, 0, 1+len(name)+len(data))
	payload = append(payload, byte(len(name)))
	payload = append(payload, name...)
	payload = append(payload, data...)

	t.queue.Enqueue(Message{
		Type:      protocol.TypeFileComplete,
		Sender:    peer,
		Payload:   payload,
		Timestamp: uint32(t.now()),
		Priority:  priorityFor(protocol.TypeFileComplete),
	})
}

// SplitFile decodes a TypeFileComplete dispatch payload into filename and
// content.
func SplitFile(payload []byte) (filename string, data []byte, ok bool) {
	if len(payload) < 1 {
		return "", nil, false
	}
	n := int(payload[0])
	if 1+n > len(payload) {
		return "", nil, false
	}
	return string(payload[1 : 1+n]), payload[1+n:], true
}
