package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Typed payloads for the protocol's own packet types. Application payloads
// (player input, game state, entity updates, voice samples) stay opaque —
// the transport never interprets them.
//
// Strings are length-prefixed (u8 for names, u16 for free text). Every
// decode checks the remaining length before reading a single field; a
// truncated payload yields an error, never a partial struct.

// ProtocolID is the handshake identification string. A connect request
// carrying anything else is refused without creating a connection.
const ProtocolID = "NETCODE_1.0"

// Feature bits exchanged during the handshake.
const (
	FeatureVoice      uint32 = 1 << 0
	FeatureEncryption uint32 = 1 << 1
	FeatureDownloads  uint32 = 1 << 2
)

// Connect results.
const (
	ConnectRefused uint8 = 0
	ConnectOK      uint8 = 1
)

// Event kinds carried by EventPayload.
const (
	EventPlayerJoined uint8 = iota
	EventPlayerLeft
	EventPacketLost
	EventCustom
)

// ---------------------------------------------------------------------------
// Little-endian append/consume helpers
// ---------------------------------------------------------------------------

type writer struct{ buf []byte }

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}

// str8 writes a short string with a u8 length prefix, truncating at 255.
func (w *writer) str8(s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	w.u8(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

// str16 writes free text with a u16 length prefix, truncating at 64 KiB.
func (w *writer) str16(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// bytes16 writes a byte blob with a u16 length prefix.
func (w *writer) bytes16(b []byte) {
	w.u16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("truncated payload at offset %d", r.off)
	}
}

func (r *reader) u8() uint8 {
	if r.err != nil || r.off+1 > len(r.buf) {
		r.fail()
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if r.err != nil || r.off+2 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil || r.off+4 > len(r.buf) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) take(n int) []byte {
	if r.err != nil || n < 0 || r.off+n > len(r.buf) {
		r.fail()
		return nil
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}

func (r *reader) str8() string  { return string(r.take(int(r.u8()))) }
func (r *reader) str16() string { return string(r.take(int(r.u16()))) }

func (r *reader) bytes16() []byte {
	b := r.take(int(r.u16()))
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) done() error { return r.err }

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

// ConnectRequest is the client→server handshake payload.
type ConnectRequest struct {
	Protocol      string
	Name          string
	Password      string
	ClientVersion uint32
	Features      uint32
}

func (m *ConnectRequest) Marshal() []byte {
	var w writer
	w.str8(m.Protocol)
	w.str8(m.Name)
	w.str8(m.Password)
	w.u32(m.ClientVersion)
	w.u32(m.Features)
	return w.buf
}

func (m *ConnectRequest) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Protocol = r.str8()
	m.Name = r.str8()
	m.Password = r.str8()
	m.ClientVersion = r.u32()
	m.Features = r.u32()
	return r.done()
}

// ConnectResponse is the server→client handshake reply. Refusals carry
// Result==ConnectRefused and a Reason; everything else is zero.
type ConnectResponse struct {
	Result      uint8
	ClientID    uint32
	Reason      string
	ServerName  string
	Features    uint32
	PlayerCount uint16
	MaxPlayers  uint16
	TickRate    float32
	Key         []byte // session cipher key, empty unless encryption is on
}

func (m *ConnectResponse) Marshal() []byte {
	var w writer
	w.u8(m.Result)
	w.u32(m.ClientID)
	w.str8(m.Reason)
	w.str8(m.ServerName)
	w.u32(m.Features)
	w.u16(m.PlayerCount)
	w.u16(m.MaxPlayers)
	w.f32(m.TickRate)
	w.u8(uint8(len(m.Key)))
	w.buf = append(w.buf, m.Key...)
	return w.buf
}

func (m *ConnectResponse) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Result = r.u8()
	m.ClientID = r.u32()
	m.Reason = r.str8()
	m.ServerName = r.str8()
	m.Features = r.u32()
	m.PlayerCount = r.u16()
	m.MaxPlayers = r.u16()
	m.TickRate = r.f32()
	keyLen := int(r.u8())
	if keyLen > 0 {
		key := r.take(keyLen)
		if r.err == nil {
			m.Key = make([]byte, keyLen)
			copy(m.Key, key)
		}
	}
	return r.done()
}

// DisconnectPayload carries the reason for an orderly disconnect or kick.
type DisconnectPayload struct {
	Reason string
}

func (m *DisconnectPayload) Marshal() []byte {
	var w writer
	w.str16(m.Reason)
	return w.buf
}

func (m *DisconnectPayload) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Reason = r.str16()
	return r.done()
}

// ---------------------------------------------------------------------------
// System
// ---------------------------------------------------------------------------

// AckPayload is the standalone acknowledgment for one reliable sequence.
type AckPayload struct {
	Sequence  uint16
	Timestamp uint32
}

func (m *AckPayload) Marshal() []byte {
	var w writer
	w.u16(m.Sequence)
	w.u32(m.Timestamp)
	return w.buf
}

func (m *AckPayload) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Sequence = r.u16()
	m.Timestamp = r.u32()
	return r.done()
}

// PingPayload is echoed back verbatim in a PONG.
type PingPayload struct {
	Timestamp uint32
	Sequence  uint32
}

func (m *PingPayload) Marshal() []byte {
	var w writer
	w.u32(m.Timestamp)
	w.u32(m.Sequence)
	return w.buf
}

func (m *PingPayload) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Timestamp = r.u32()
	m.Sequence = r.u32()
	return r.done()
}

// EventPayload is a broadcast notification (player joined/left, local
// delivery failure, custom game events).
type EventPayload struct {
	Kind    uint8
	Subject uint32
	Data    string
}

func (m *EventPayload) Marshal() []byte {
	var w writer
	w.u8(m.Kind)
	w.u32(m.Subject)
	w.str16(m.Data)
	return w.buf
}

func (m *EventPayload) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Kind = r.u8()
	m.Subject = r.u32()
	m.Data = r.str16()
	return r.done()
}

// ---------------------------------------------------------------------------
// Communication
// ---------------------------------------------------------------------------

// ChatMessage carries chat and team text.
type ChatMessage struct {
	Sender     uint32
	SenderName string
	Message    string
	TeamOnly   bool
	Timestamp  uint32
}

func (m *ChatMessage) Marshal() []byte {
	var w writer
	w.u32(m.Sender)
	w.str8(m.SenderName)
	w.str16(m.Message)
	if m.TeamOnly {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u32(m.Timestamp)
	return w.buf
}

func (m *ChatMessage) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Sender = r.u32()
	m.SenderName = r.str8()
	m.Message = r.str16()
	m.TeamOnly = r.u8() != 0
	m.Timestamp = r.u32()
	return r.done()
}

// ---------------------------------------------------------------------------
// Gameplay
// ---------------------------------------------------------------------------

// MovementUpdate is the pose sample a client reports each tick. It feeds
// the anti-cheat validator and the lag-compensation history.
type MovementUpdate struct {
	Position  [3]float32
	Rotation  [3]float32
	Velocity  [3]float32
	Timestamp uint32
}

func (m *MovementUpdate) Marshal() []byte {
	var w writer
	for _, v := range m.Position {
		w.f32(v)
	}
	for _, v := range m.Rotation {
		w.f32(v)
	}
	for _, v := range m.Velocity {
		w.f32(v)
	}
	w.u32(m.Timestamp)
	return w.buf
}

func (m *MovementUpdate) Unmarshal(data []byte) error {
	r := reader{buf: data}
	for i := range m.Position {
		m.Position[i] = r.f32()
	}
	for i := range m.Rotation {
		m.Rotation[i] = r.f32()
	}
	for i := range m.Velocity {
		m.Velocity[i] = r.f32()
	}
	m.Timestamp = r.u32()
	return r.done()
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

// ServerInfo flag bits.
const (
	InfoPassworded uint8 = 1 << 0
	InfoAntiCheat  uint8 = 1 << 1
	InfoModded     uint8 = 1 << 2
	InfoDedicated  uint8 = 1 << 3
)

// ServerInfoPayload answers a discovery query.
type ServerInfoPayload struct {
	Name        string
	Map         string
	Mode        string
	Version     string
	PlayerCount uint16
	MaxPlayers  uint16
	BotCount    uint16
	Flags       uint8
	Tags        string
	Skill       float32
}

func (m *ServerInfoPayload) Marshal() []byte {
	var w writer
	w.str8(m.Name)
	w.str8(m.Map)
	w.str8(m.Mode)
	w.str8(m.Version)
	w.u16(m.PlayerCount)
	w.u16(m.MaxPlayers)
	w.u16(m.BotCount)
	w.u8(m.Flags)
	w.str8(m.Tags)
	w.f32(m.Skill)
	return w.buf
}

func (m *ServerInfoPayload) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Name = r.str8()
	m.Map = r.str8()
	m.Mode = r.str8()
	m.Version = r.str8()
	m.PlayerCount = r.u16()
	m.MaxPlayers = r.u16()
	m.BotCount = r.u16()
	m.Flags = r.u8()
	m.Tags = r.str8()
	m.Skill = r.f32()
	return r.done()
}

// ---------------------------------------------------------------------------
// File transfer
// ---------------------------------------------------------------------------

// FileRequest announces an upload (metadata filled in) or asks for a
// download (only Filename set, sizes zero).
type FileRequest struct {
	Filename    string
	FileSize    uint32
	ChunkSize   uint32
	TotalChunks uint32
}

func (m *FileRequest) Marshal() []byte {
	var w writer
	w.str8(m.Filename)
	w.u32(m.FileSize)
	w.u32(m.ChunkSize)
	w.u32(m.TotalChunks)
	return w.buf
}

func (m *FileRequest) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Filename = r.str8()
	m.FileSize = r.u32()
	m.ChunkSize = r.u32()
	m.TotalChunks = r.u32()
	return r.done()
}

// FileChunk carries one slice of file content, addressed by chunk index.
type FileChunk struct {
	Filename string
	Index    uint32
	Data     []byte
}

func (m *FileChunk) Marshal() []byte {
	var w writer
	w.str8(m.Filename)
	w.u32(m.Index)
	w.bytes16(m.Data)
	return w.buf
}

func (m *FileChunk) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Filename = r.str8()
	m.Index = r.u32()
	m.Data = r.bytes16()
	return r.done()
}

// FileComplete signals the end of an upload.
type FileComplete struct {
	Filename string
	Checksum uint32
}

func (m *FileComplete) Marshal() []byte {
	var w writer
	w.str8(m.Filename)
	w.u32(m.Checksum)
	return w.buf
}

func (m *FileComplete) Unmarshal(data []byte) error {
	r := reader{buf: data}
	m.Filename = r.str8()
	m.Checksum = r.u32()
	return r.done()
}
