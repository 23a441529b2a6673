// Package protocol defines the wire format shared by every peer: the fixed
// packet header, the closed set of packet types, and the stateless
// encode/decode pipeline (checksum, optional cipher, optional compression).
package protocol

// Magic values. The family tag doubles as a sanity check that a datagram
// really belongs to this protocol.
const (
	MagicIPv4 uint16 = 0xE4D0
	MagicIPv6 uint16 = 0xE6D0
)

// Version is the protocol version carried in every header. Packets with a
// different version are rejected during decode.
const Version uint8 = 1

// HeaderSize is the fixed header size in bytes:
// magic(2) + version(1) + type(1) + flags(1) + security(1) + sequence(2) +
// ack(2) + timestamp(4) + sender(4) + payloadSize(2) + checksum(2).
const HeaderSize = 22

// MaxPacketSize bounds a whole datagram (header + payload). Chosen to stay
// under typical path MTU.
const MaxPacketSize = 1400

// MaxPayloadSize is the largest payload that fits in one packet.
const MaxPayloadSize = MaxPacketSize - HeaderSize

// Header flag bits.
const (
	FlagReliable   uint8 = 1 << 0
	FlagEncrypted  uint8 = 1 << 1
	FlagCompressed uint8 = 1 << 2
)

// Security levels carried in the header. Informational only — the XOR
// keystream is a legacy obfuscation step, not a security boundary.
const (
	SecurityNone uint8 = iota
	SecurityBasic
	SecurityEncrypted
	SecurityAuthenticated
)

// KeySize is the cipher key length exchanged during the handshake.
const KeySize = 32

// PacketType identifies the payload carried by a packet.
type PacketType uint8

// The closed set of packet types. Adding a value requires bumping Version.
const (
	// Connection lifecycle.
	TypeConnectRequest PacketType = iota
	TypeConnectResponse
	TypeDisconnect
	TypeHeartbeat
	TypeKeepAlive

	// Gameplay.
	TypePlayerInput
	TypePlayerState
	TypeGameState
	TypeEntityUpdate
	TypeEvent

	// Communication.
	TypeChatMessage
	TypeVoiceData
	TypeTeamMessage

	// File transfer.
	TypeFileRequest
	TypeFileData
	TypeFileComplete

	// Discovery.
	TypeServerInfoRequest
	TypeServerInfoResponse
	TypeMasterServerList

	// System.
	TypeReliableAck
	TypePing
	TypePong
	TypeBandwidthTest
	TypeCustom

	PacketTypeCount
)

// packetTypeNames is indexed by PacketType for log output.
var packetTypeNames = [PacketTypeCount]string{
	"CONNECT_REQUEST", "CONNECT_RESPONSE", "DISCONNECT", "HEARTBEAT", "KEEP_ALIVE",
	"PLAYER_INPUT", "PLAYER_STATE", "GAME_STATE", "ENTITY_UPDATE", "EVENT",
	"CHAT_MESSAGE", "VOICE_DATA", "TEAM_MESSAGE",
	"FILE_REQUEST", "FILE_DATA", "FILE_COMPLETE",
	"SERVER_INFO_REQUEST", "SERVER_INFO_RESPONSE", "MASTER_SERVER_LIST",
	"RELIABLE_ACK", "PING", "PONG", "BANDWIDTH_TEST", "CUSTOM",
}

// String returns the packet type name, or "UNKNOWN" for out-of-range values.
func (t PacketType) String() string {
	if t < PacketTypeCount {
		return packetTypeNames[t]
	}
	return "UNKNOWN"
}

// Header is the decoded fixed-size packet header. Field order matches the
// wire layout; the checksum covers the whole packet with Checksum zeroed.
type Header struct {
	Magic       uint16
	Version     uint8
	Type        PacketType
	Flags       uint8
	Security    uint8
	Sequence    uint16
	Ack         uint16
	Timestamp   uint32
	Sender      uint32
	PayloadSize uint16
	Checksum    uint16
}

// Reliable reports whether the reliable flag is set.
func (h *Header) Reliable() bool { return h.Flags&FlagReliable != 0 }

// MagicFor returns the protocol family tag for the given address family.
func MagicFor(ipv6 bool) uint16 {
	if ipv6 {
		return MagicIPv6
	}
	return MagicIPv4
}
