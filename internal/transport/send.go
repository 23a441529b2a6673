package transport

import (
	"errors"
	"net"

	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/session"
	"github.com/1ureka/netcode/internal/util"
)

var errDownloadsDisabled = errors.New("file downloads are disabled")

// Outgoing path. Everything funnels through sendToConn, which stamps the
// header, tracks reliable packets, and respects the bandwidth throttle.
// All functions here assume the driver lock is held; the exported wrappers
// in this file take it themselves.

// socketFor picks the socket matching the peer's address family.
func (t *Transport) socketFor(addr *net.UDPAddr) *net.UDPConn {
	if addr.IP.To4() == nil {
		return t.sock6
	}
	return t.sock4
}

// writeDatagram encodes and transmits one packet to an explicit address.
// Used for stateless replies (handshake refusals, discovery answers) where
// no connection exists.
func (t *Transport) writeDatagram(addr *net.UDPAddr, h protocol.Header, payload []byte) bool {
	sock := t.socketFor(addr)
	if sock == nil {
		return false
	}

	wire, err := protocol.Encode(h, payload, t.key)
	if err != nil {
		t.stats.Errors.Add(1)
		util.LogError("Failed to encode %s packet: %v", h.Type, err)
		return false
	}

	n, err := sock.WriteToUDP(wire, addr)
	if err != nil {
		t.stats.Errors.Add(1)
		util.LogDebug("Failed to send %s to %s: %v", h.Type, addr, err)
		return false
	}

	t.stats.AddSent(n)
	return true
}

// sendRaw transmits a pre-stamped header and payload to a connection,
// bypassing sequencing and tracking. Retransmissions use this so a resend
// keeps its original sequence number.
func (t *Transport) sendRaw(c *session.Connection, h protocol.Header, payload []byte) bool {
	if !t.writeDatagram(c.Addr, h, payload) {
		return false
	}
	c.Bandwidth.BytesSent += protocol.HeaderSize + len(payload)
	c.Bandwidth.PacketsSent++
	return true
}

// droppable reports whether a packet type may be shed under throttle.
// Lifecycle, acknowledgment, and file traffic always goes out; losing any of
// those costs more than the bandwidth saves.
func droppable(typ protocol.PacketType) bool {
	switch typ {
	case protocol.TypeConnectRequest, protocol.TypeConnectResponse,
		protocol.TypeDisconnect, protocol.TypeHeartbeat, protocol.TypeKeepAlive,
		protocol.TypeReliableAck, protocol.TypePing, protocol.TypePong,
		protocol.TypeFileRequest, protocol.TypeFileData, protocol.TypeFileComplete:
		return false
	}
	return true
}

// sendToConn builds, stamps, and transmits one packet on a connection.
// Reliable packets are tracked for retransmission before the send so a
// failed write still retries later.
func (t *Transport) sendToConn(c *session.Connection, typ protocol.PacketType, payload []byte, reliable bool, now int64) bool {
	if c.Bandwidth.ThrottleUntil > now && droppable(typ) && !reliable {
		return false
	}

	h := protocol.Header{
		Magic:     protocol.MagicFor(c.Addr.IP.To4() == nil),
		Version:   protocol.Version,
		Type:      typ,
		Security:  c.Security,
		Sequence:  c.NextSequence(),
		Ack:       c.LastAck,
		Timestamp: uint32(now),
		Sender:    t.localID,
	}

	if reliable {
		h.Flags |= protocol.FlagReliable
	}
	if t.key != nil && typ != protocol.TypeConnectRequest && typ != protocol.TypeConnectResponse {
		h.Flags |= protocol.FlagEncrypted
		h.Security = protocol.SecurityEncrypted
	}

	if reliable {
		c.Reliable.Track(h, payload, now)
		t.stats.ReliableSent.Add(1)
	}

	return t.sendRaw(c, h, payload)
}

// Send transmits an application payload to one peer. Target 0 addresses the
// server from a client. Returns false when the peer is unknown or the send
// was shed.
func (t *Transport) Send(target uint32, typ protocol.PacketType, payload []byte, reliable bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.table == nil {
		return false
	}
	c := t.table.ByID(target)
	if c == nil || c.State != session.StateConnected {
		return false
	}
	return t.sendToConn(c, typ, payload, reliable, t.now())
}

// Broadcast transmits a payload to every connected peer except the given ID.
// Pass except=0 on the server to reach everyone.
func (t *Transport) Broadcast(typ protocol.PacketType, payload []byte, reliable bool, except uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.broadcastLocked(typ, payload, reliable, except, t.now())
}

func (t *Transport) broadcastLocked(typ protocol.PacketType, payload []byte, reliable bool, except uint32, now int64) int {
	if t.table == nil {
		return 0
	}
	sent := 0
	t.table.All(func(c *session.Connection) {
		if c.ID == except || c.State != session.StateConnected {
			return
		}
		if t.sendToConn(c, typ, payload, reliable, now) {
			sent++
		}
	})
	return sent
}

// broadcastEvent emits a lifecycle/game event to every peer (reliable) and
// mirrors it into the local dispatch queue.
func (t *Transport) broadcastEvent(kind uint8, subject uint32, data string, now int64) {
	ev := protocol.EventPayload{Kind: kind, Subject: subject, Data: data}
	payload := ev.Marshal()
	t.broadcastLocked(protocol.TypeEvent, payload, true, subject, now)
	t.queue.Enqueue(Message{
		Type:      protocol.TypeEvent,
		Sender:    t.localID,
		Payload:   payload,
		Timestamp: uint32(now),
		Priority:  priorityFor(protocol.TypeEvent),
	})
}

// ---------------------------------------------------------------------------
// Typed helpers
// ---------------------------------------------------------------------------

// SendMovement reports the local pose to the server. Unreliable: a newer
// sample supersedes a lost one.
func (t *Transport) SendMovement(m protocol.MovementUpdate) bool {
	return t.Send(serverConnID, protocol.TypePlayerState, m.Marshal(), false)
}

// SendPlayerInput forwards an opaque input snapshot to the server.
func (t *Transport) SendPlayerInput(input []byte) bool {
	return t.Send(serverConnID, protocol.TypePlayerInput, input, false)
}

// BroadcastPlayerState fans one player's pose out to every other client.
// Unreliable, like the updates it relays.
func (t *Transport) BroadcastPlayerState(subject uint32, payload []byte) int {
	return t.Broadcast(protocol.TypePlayerState, payload, false, subject)
}

// BroadcastEvent announces a game event to every peer and mirrors it into
// the local queue.
func (t *Transport) BroadcastEvent(kind uint8, subject uint32, data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.table == nil {
		return
	}
	t.broadcastEvent(kind, subject, data, t.now())
}

// SendChat sends a chat line. Clients address the server, which relays;
// the server broadcasts directly.
func (t *Transport) SendChat(text string, teamOnly bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	msg := protocol.ChatMessage{
		Sender:     t.localID,
		SenderName: t.cfg.Server.PlayerName,
		Message:    text,
		TeamOnly:   teamOnly,
		Timestamp:  uint32(now),
	}
	typ := protocol.TypeChatMessage
	if teamOnly {
		typ = protocol.TypeTeamMessage
	}
	payload := msg.Marshal()

	if t.mode == ModeServer {
		return t.broadcastLocked(typ, payload, true, 0, now) > 0
	}
	c := t.table.ByID(serverConnID)
	if c == nil || c.State != session.StateConnected {
		return false
	}
	return t.sendToConn(c, typ, payload, true, now)
}

// SendVoice ships a compressed voice frame. Unreliable and never relayed to
// muted listeners.
func (t *Transport) SendVoice(frame []byte) bool {
	if !t.cfg.Features.VoiceChat {
		return false
	}
	return t.Send(serverConnID, protocol.TypeVoiceData, frame, false)
}

// BroadcastGameState pushes an authoritative state snapshot to all clients.
func (t *Transport) BroadcastGameState(snapshot []byte, reliable bool) int {
	return t.Broadcast(protocol.TypeGameState, snapshot, reliable, 0)
}

// SendFile starts a chunked transfer to one peer.
func (t *Transport) SendFile(target uint32, filename string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.cfg.Features.Downloads {
		return errDownloadsDisabled
	}
	return t.transfers.Offer(target, filename, data)
}
