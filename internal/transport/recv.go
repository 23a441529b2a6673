package transport

import (
	"net"

	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/session"
	"github.com/1ureka/netcode/internal/util"
)

// Incoming path: decode, route by type, acknowledge, enqueue. Malformed
// datagrams are dropped without a reply; only a successfully decoded packet
// from a known peer mutates any state.

// priorityFor maps a packet type to its dispatch priority. Lifecycle and
// events outrank gameplay; voice is the first thing to wait under load.
func priorityFor(typ protocol.PacketType) float64 {
	switch typ {
	case protocol.TypeConnectRequest, protocol.TypeConnectResponse, protocol.TypeDisconnect:
		return 3
	case protocol.TypeEvent, protocol.TypeFileComplete:
		return 2
	case protocol.TypeVoiceData:
		return 0.5
	default:
		return 1
	}
}

func (t *Transport) enqueue(h *protocol.Header, payload []byte) {
	t.queue.Enqueue(Message{
		Type:      h.Type,
		Sender:    h.Sender,
		Payload:   payload,
		Timestamp: h.Timestamp,
		Priority:  priorityFor(h.Type),
	})
}

// handlePacket processes one received datagram.
func (t *Transport) handlePacket(data []byte, addr *net.UDPAddr, now int64) {
	h, payload, err := protocol.Decode(data, t.key)
	if err != nil {
		t.stats.Errors.Add(1)
		util.LogDebug("Dropped datagram from %s: %v", addr, err)
		return
	}

	// Stateless exchanges need no connection.
	switch h.Type {
	case protocol.TypeConnectRequest:
		if t.mode == ModeServer {
			t.handleConnectRequest(&h, payload, addr, now)
		}
		return
	case protocol.TypeServerInfoRequest:
		if t.mode == ModeServer {
			t.handleInfoRequest(addr, now)
		}
		return
	}

	c := t.table.ByAddr(addr.String())
	if c == nil {
		util.LogDebug("Packet %s from unknown peer %s", h.Type, addr)
		return
	}

	c.Touch(&h, len(data), now)

	// Piggybacked acknowledgment in every header.
	if h.Ack != 0 {
		c.Reliable.Acknowledge(h.Ack, now)
	}

	// Reliable packets are acked immediately, duplicates included: the
	// duplicate means our previous ack was lost.
	if h.Reliable() {
		dup := c.Reliable.MarkIncoming(h.Sequence)
		ack := protocol.AckPayload{Sequence: h.Sequence, Timestamp: uint32(now)}
		t.sendToConn(c, protocol.TypeReliableAck, ack.Marshal(), false, now)
		if dup {
			return
		}
		t.stats.ReliableReceived.Add(1)
	}

	switch h.Type {
	case protocol.TypeConnectResponse:
		if t.mode == ModeClient {
			t.handleConnectResponse(c, payload, now)
		}

	case protocol.TypeDisconnect:
		var d protocol.DisconnectPayload
		if err := d.Unmarshal(payload); err != nil {
			d.Reason = "no reason given"
		}
		util.LogInfo("Peer %d disconnected: %s", c.ID, d.Reason)
		t.dropConnection(c, d.Reason, now)

	case protocol.TypeReliableAck:
		var ack protocol.AckPayload
		if err := ack.Unmarshal(payload); err != nil {
			t.stats.Errors.Add(1)
			return
		}
		c.Reliable.Acknowledge(ack.Sequence, now)

	case protocol.TypeHeartbeat, protocol.TypeKeepAlive:
		// Touch already recorded the activity.

	case protocol.TypePing:
		t.sendToConn(c, protocol.TypePong, payload, false, now)

	case protocol.TypePong:
		var ping protocol.PingPayload
		if err := ping.Unmarshal(payload); err != nil {
			t.stats.Errors.Add(1)
			return
		}
		c.Reliable.ObserveRTT(now - int64(ping.Timestamp))

	case protocol.TypePlayerState:
		t.handleMovement(c, &h, payload, now)

	case protocol.TypeChatMessage, protocol.TypeTeamMessage:
		t.handleChat(c, &h, payload, now)

	case protocol.TypeVoiceData:
		t.handleVoice(c, &h, payload, now)

	case protocol.TypeFileRequest:
		var req protocol.FileRequest
		if err := req.Unmarshal(payload); err != nil {
			t.stats.Errors.Add(1)
			return
		}
		if !t.cfg.Features.Downloads {
			util.LogDebug("Refused transfer %q from %d: downloads disabled", req.Filename, c.ID)
			return
		}
		if err := t.transfers.HandleRequest(c.ID, &req); err != nil {
			util.LogWarning("%v", err)
		}

	case protocol.TypeFileData:
		var chunk protocol.FileChunk
		if err := chunk.Unmarshal(payload); err != nil {
			t.stats.Errors.Add(1)
			return
		}
		if err := t.transfers.HandleChunk(c.ID, &chunk); err != nil {
			util.LogDebug("%v", err)
		}

	case protocol.TypeFileComplete:
		var done protocol.FileComplete
		if err := done.Unmarshal(payload); err != nil {
			t.stats.Errors.Add(1)
			return
		}
		if err := t.transfers.HandleComplete(c.ID, &done); err != nil {
			util.LogWarning("%v", err)
		}

	default:
		// Opaque application traffic: input, game state, entity updates,
		// events, custom packets.
		t.enqueue(&h, payload)
	}
}

// handleMovement feeds a pose report through the validator and into the
// lag-compensation history. A rejected update is discarded entirely; the
// peer's committed position stays where it was.
func (t *Transport) handleMovement(c *session.Connection, h *protocol.Header, payload []byte, now int64) {
	var m protocol.MovementUpdate
	if err := m.Unmarshal(payload); err != nil {
		t.stats.Errors.Add(1)
		return
	}

	if t.mode == ModeServer && t.cfg.Features.AntiCheat {
		if !c.Validator.Validate(m.Position, now) {
			util.LogDebug("Rejected movement from %d (%s): suspicion %d, trust %.2f",
				c.ID, c.Name, c.Validator.Suspicion, c.Validator.Trust)
			if c.Validator.Violations > 0 {
				t.kickLocked(c, "movement validation failed repeatedly", now)
			}
			return
		}
	}

	if t.cfg.Features.LagCompensation {
		c.History.Record(session.Snapshot{
			Position:  m.Position,
			Rotation:  m.Rotation,
			Velocity:  m.Velocity,
			Timestamp: now,
		})
	}

	t.enqueue(h, payload)
}

// handleChat relays chat through the server and queues it locally. Team
// messages only reach peers on the sender's team.
func (t *Transport) handleChat(c *session.Connection, h *protocol.Header, payload []byte, now int64) {
	var msg protocol.ChatMessage
	if err := msg.Unmarshal(payload); err != nil {
		t.stats.Errors.Add(1)
		return
	}

	if t.mode == ModeServer {
		if h.Type == protocol.TypeTeamMessage {
			t.table.All(func(peer *session.Connection) {
				if peer.ID != c.ID && peer.Team == c.Team && peer.State == session.StateConnected {
					t.sendToConn(peer, h.Type, payload, true, now)
				}
			})
		} else {
			t.broadcastLocked(h.Type, payload, true, c.ID, now)
		}
	}

	t.enqueue(h, payload)
}

// handleVoice relays a voice frame to every unmuted listener. Voice is
// never queued reliably and a muted speaker's frames are dropped at the
// server.
func (t *Transport) handleVoice(c *session.Connection, h *protocol.Header, payload []byte, now int64) {
	if !t.cfg.Features.VoiceChat || c.VoiceMuted {
		return
	}

	if t.mode == ModeServer {
		t.table.All(func(peer *session.Connection) {
			if peer.ID != c.ID && peer.VoiceEnabled && !peer.VoiceMuted && peer.State == session.StateConnected {
				t.sendToConn(peer, protocol.TypeVoiceData, payload, false, now)
			}
		})
	}

	t.enqueue(h, payload)
}
