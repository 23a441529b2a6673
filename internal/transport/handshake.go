package transport

import (
	"net"

	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/session"
	"github.com/1ureka/netcode/internal/util"
)

// Connection handshake. Refusals are stateless: the server answers with a
// reason and forgets the exchange, so a flood of bogus connect requests
// never occupies table slots.

// localFeatures derives the feature bits advertised in the handshake.
func (t *Transport) localFeatures() uint32 {
	var f uint32
	if t.cfg.Features.VoiceChat {
		f |= protocol.FeatureVoice
	}
	if t.cfg.Features.Encryption {
		f |= protocol.FeatureEncryption
	}
	if t.cfg.Features.Downloads {
		f |= protocol.FeatureDownloads
	}
	return f
}

// sendConnectRequest fires the client's opening packet. Reliable, so the
// engine retries it until the server answers or the retry budget runs out.
func (t *Transport) sendConnectRequest(server *session.Connection, now int64) {
	req := protocol.ConnectRequest{
		Protocol:      protocol.ProtocolID,
		Name:          t.cfg.Server.PlayerName,
		Password:      t.cfg.Server.Password,
		ClientVersion: uint32(protocol.Version),
		Features:      t.localFeatures(),
	}
	t.sendToConn(server, protocol.TypeConnectRequest, req.Marshal(), true, now)
}

// refuse answers a connect request negatively without creating any state.
func (t *Transport) refuse(addr *net.UDPAddr, reason string, now int64) {
	resp := protocol.ConnectResponse{
		Result: protocol.ConnectRefused,
		Reason: reason,
	}
	h := protocol.Header{
		Magic:     protocol.MagicFor(addr.IP.To4() == nil),
		Version:   protocol.Version,
		Type:      protocol.TypeConnectResponse,
		Timestamp: uint32(now),
	}
	t.writeDatagram(addr, h, resp.Marshal())
	t.stats.Rejected.Add(1)
	util.LogInfo("Refused connection from %s: %s", addr, reason)
}

// handleConnectRequest admits or refuses a prospective client.
func (t *Transport) handleConnectRequest(h *protocol.Header, payload []byte, addr *net.UDPAddr, now int64) {
	if t.table.IsBanned(addr.IP.String()) {
		t.refuse(addr, "you are banned from this server", now)
		return
	}

	var req protocol.ConnectRequest
	if err := req.Unmarshal(payload); err != nil {
		t.stats.Errors.Add(1)
		util.LogDebug("Malformed connect request from %s: %v", addr, err)
		return
	}

	if req.Protocol != protocol.ProtocolID {
		t.refuse(addr, "protocol version mismatch", now)
		return
	}
	if t.cfg.Server.Password != "" && req.Password != t.cfg.Server.Password {
		t.refuse(addr, "invalid password", now)
		return
	}

	// The connect request is reliable on the client side, so a lost
	// response produces a retransmit. Answer the existing session again
	// instead of refusing a "duplicate" peer.
	if existing := t.table.ByAddr(addr.String()); existing != nil {
		existing.Touch(h, 0, now)
		t.sendAccept(existing, now)
		return
	}

	if t.table.Full() {
		t.refuse(addr, "server is full", now)
		return
	}

	c, ok := t.table.Add(addr, now)
	if !ok {
		t.refuse(addr, "server is full", now)
		return
	}
	// Record the request sequence so the accept piggybacks its ack.
	c.Touch(h, 0, now)
	c.Name = req.Name
	c.Features = req.Features
	c.VoiceEnabled = req.Features&protocol.FeatureVoice != 0
	if t.cfg.Features.Encryption {
		c.Security = protocol.SecurityEncrypted
	}

	t.stats.Accepted.Add(1)
	util.LogSuccess("Client %d (%s) connected from %s", c.ID, c.Name, addr)

	t.sendAccept(c, now)
	t.broadcastEvent(protocol.EventPlayerJoined, c.ID, c.Name, now)
}

// sendAccept transmits the positive handshake reply, session key included
// when encryption is on. Reliable: losing it would strand the client.
func (t *Transport) sendAccept(c *session.Connection, now int64) {
	resp := protocol.ConnectResponse{
		Result:      protocol.ConnectOK,
		ClientID:    c.ID,
		ServerName:  t.cfg.Server.Name,
		Features:    t.localFeatures(),
		PlayerCount: uint16(t.table.Len()),
		MaxPlayers:  uint16(t.cfg.Server.MaxClients),
		TickRate:    float32(t.cfg.Tuning.TickRate),
		Key:         t.key,
	}
	t.sendToConn(c, protocol.TypeConnectResponse, resp.Marshal(), true, now)
}

// handleConnectResponse finishes the client side of the handshake.
func (t *Transport) handleConnectResponse(server *session.Connection, payload []byte, now int64) {
	var resp protocol.ConnectResponse
	if err := resp.Unmarshal(payload); err != nil {
		t.stats.Errors.Add(1)
		util.LogError("Malformed connect response: %v", err)
		return
	}

	if resp.Result != protocol.ConnectOK {
		util.LogWarning("Connection refused: %s", resp.Reason)
		t.queue.Enqueue(Message{
			Type:      protocol.TypeConnectResponse,
			Payload:   payload,
			Timestamp: uint32(now),
			Priority:  priorityFor(protocol.TypeConnectResponse),
		})
		t.closeSockets()
		t.mode = ModeIdle
		t.table = session.NewTable(1)
		return
	}

	if server.State == session.StateConnected {
		// Retransmitted accept; the handshake already finished.
		return
	}

	t.localID = resp.ClientID
	if len(resp.Key) == protocol.KeySize {
		t.key = resp.Key
	}
	server.State = session.StateConnected
	server.Name = resp.ServerName

	util.LogSuccess("Connected to %q as client %d (%d/%d players, tick %g)",
		resp.ServerName, resp.ClientID, resp.PlayerCount, resp.MaxPlayers, resp.TickRate)

	t.queue.Enqueue(Message{
		Type:      protocol.TypeConnectResponse,
		Sender:    serverConnID,
		Payload:   payload,
		Timestamp: uint32(now),
		Priority:  priorityFor(protocol.TypeConnectResponse),
	})
}

// handleInfoRequest answers a discovery probe. Stateless and unreliable:
// browsers retry on their own schedule.
func (t *Transport) handleInfoRequest(addr *net.UDPAddr, now int64) {
	var flags uint8
	if t.cfg.Server.Password != "" {
		flags |= protocol.InfoPassworded
	}
	if t.cfg.Features.AntiCheat {
		flags |= protocol.InfoAntiCheat
	}
	flags |= protocol.InfoDedicated

	info := protocol.ServerInfoPayload{
		Name:        t.cfg.Server.Name,
		Map:         t.cfg.Server.Tags, // map rotation is game logic; tags stand in
		Mode:        "default",
		Version:     protocol.ProtocolID,
		PlayerCount: uint16(t.table.Len()),
		MaxPlayers:  uint16(t.cfg.Server.MaxClients),
		Flags:       flags,
		Tags:        t.cfg.Server.Tags,
	}

	h := protocol.Header{
		Magic:     protocol.MagicFor(addr.IP.To4() == nil),
		Version:   protocol.Version,
		Type:      protocol.TypeServerInfoResponse,
		Timestamp: uint32(now),
	}
	t.writeDatagram(addr, h, info.Marshal())
}

// kickLocked force-disconnects a client: a best-effort disconnect notice,
// then immediate removal. The notice is unreliable on purpose — the session
// is gone before any retransmission could run. Callers hold the driver lock.
func (t *Transport) kickLocked(c *session.Connection, reason string, now int64) {
	notice := protocol.DisconnectPayload{Reason: reason}
	t.sendToConn(c, protocol.TypeDisconnect, notice.Marshal(), false, now)
	util.LogInfo("Kicked client %d (%s): %s", c.ID, c.Name, reason)
	t.dropConnection(c, reason, now)
}

// Kick removes a client with a reason. Server mode only.
func (t *Transport) Kick(id uint32, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode != ModeServer {
		return false
	}
	c := t.table.ByID(id)
	if c == nil {
		return false
	}
	t.kickLocked(c, reason, t.now())
	return true
}

// BanClient kicks a client and refuses its address for the life of the
// process.
func (t *Transport) BanClient(id uint32, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode != ModeServer {
		return false
	}
	c := t.table.ByID(id)
	if c == nil {
		return false
	}
	c.State = session.StateBanned
	t.table.Ban(c.Addr.IP.String())
	t.kickLocked(c, reason, t.now())
	return true
}

// MuteVoice toggles a client's voice relay.
func (t *Transport) MuteVoice(id uint32, muted bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.table == nil {
		return false
	}
	c := t.table.ByID(id)
	if c == nil {
		return false
	}
	c.VoiceMuted = muted
	return true
}

// Suppress skips the next movement validation for a client, for scripted
// teleports and respawns.
func (t *Transport) Suppress(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.table == nil {
		return false
	}
	c := t.table.ByID(id)
	if c == nil {
		return false
	}
	c.Validator.Suppress()
	return true
}

// PoseAt reconstructs where a client was at a past instant, for server-side
// hit rewind.
func (t *Transport) PoseAt(id uint32, when int64) (session.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.table == nil {
		return session.Snapshot{}, false
	}
	c := t.table.ByID(id)
	if c == nil {
		return session.Snapshot{}, false
	}
	return c.History.At(when)
}

// Now exposes the transport clock so callers can form PoseAt targets.
func (t *Transport) Now() int64 { return t.now() }
