package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Wire layout is little-endian throughout. The codec is a pure function
// pair: no retries, no I/O, no state beyond the caller-supplied key.

// Errors returned by Decode. Callers drop the datagram with no reply on any
// of them — answering malformed input would hand an attacker an oracle.
var (
	ErrTooShort     = fmt.Errorf("packet shorter than header")
	ErrBadMagic     = fmt.Errorf("unknown protocol magic")
	ErrBadVersion   = fmt.Errorf("unsupported protocol version")
	ErrSizeMismatch = fmt.Errorf("declared payload size does not match datagram")
	ErrBadChecksum  = fmt.Errorf("checksum verification failed")
	ErrBadPayload   = fmt.Errorf("payload transform failed")
)

// checksum computes the wire checksum: CRC-32 (IEEE) over the full buffer,
// truncated to 16 bits. The buffer must have the checksum field zeroed.
func checksum(buf []byte) uint16 {
	return uint16(crc32.ChecksumIEEE(buf))
}

// putHeader writes h into buf[:HeaderSize].
func putHeader(buf []byte, h *Header) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Magic)
	buf[2] = h.Version
	buf[3] = uint8(h.Type)
	buf[4] = h.Flags
	buf[5] = h.Security
	binary.LittleEndian.PutUint16(buf[6:8], h.Sequence)
	binary.LittleEndian.PutUint16(buf[8:10], h.Ack)
	binary.LittleEndian.PutUint32(buf[10:14], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[14:18], h.Sender)
	binary.LittleEndian.PutUint16(buf[18:20], h.PayloadSize)
	binary.LittleEndian.PutUint16(buf[20:22], h.Checksum)
}

// parseHeader reads a Header from buf[:HeaderSize]. Length is checked by
// the caller.
func parseHeader(buf []byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint16(buf[0:2]),
		Version:     buf[2],
		Type:        PacketType(buf[3]),
		Flags:       buf[4],
		Security:    buf[5],
		Sequence:    binary.LittleEndian.Uint16(buf[6:8]),
		Ack:         binary.LittleEndian.Uint16(buf[8:10]),
		Timestamp:   binary.LittleEndian.Uint32(buf[10:14]),
		Sender:      binary.LittleEndian.Uint32(buf[14:18]),
		PayloadSize: binary.LittleEndian.Uint16(buf[18:20]),
		Checksum:    binary.LittleEndian.Uint16(buf[20:22]),
	}
}

// Encode serializes header+payload into a single datagram buffer.
//
// Pipeline, in order: compress the payload if that strictly reduces its
// size (sets FlagCompressed), XOR-mask it if FlagEncrypted is already set
// on the header, then compute the checksum over the whole buffer with the
// checksum field zeroed and write it back.
//
// The header's PayloadSize and Checksum fields are overwritten; all other
// fields are taken as given.
func Encode(h Header, payload, key []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	body := payload
	if compressed, ok := Compress(payload); ok {
		body = compressed
		h.Flags |= FlagCompressed
	}

	if h.Flags&FlagEncrypted != 0 {
		if len(key) == 0 {
			return nil, fmt.Errorf("encrypted flag set without a key")
		}
		masked := make([]byte, len(body))
		copy(masked, body)
		XORKeystream(masked, key)
		body = masked
	}

	h.PayloadSize = uint16(len(body))
	h.Checksum = 0

	buf := make([]byte, HeaderSize+len(body))
	putHeader(buf, &h)
	copy(buf[HeaderSize:], body)

	h.Checksum = checksum(buf)
	binary.LittleEndian.PutUint16(buf[20:22], h.Checksum)

	return buf, nil
}

// Decode validates and deserializes a received datagram. Validation order:
// length, magic, version, declared-vs-actual payload size, checksum — only
// then are the decrypt and decompress transforms applied. The returned
// payload is a fresh slice; data is not retained.
func Decode(data, key []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(data))
	}

	h := parseHeader(data)

	if h.Magic != MagicIPv4 && h.Magic != MagicIPv6 {
		return Header{}, nil, fmt.Errorf("%w: 0x%04X", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Header{}, nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if int(h.PayloadSize) != len(data)-HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: declared %d, got %d",
			ErrSizeMismatch, h.PayloadSize, len(data)-HeaderSize)
	}

	// Verify checksum against a zeroed checksum field without mutating data.
	scratch := make([]byte, len(data))
	copy(scratch, data)
	binary.LittleEndian.PutUint16(scratch[20:22], 0)
	if checksum(scratch) != h.Checksum {
		return Header{}, nil, ErrBadChecksum
	}

	payload := scratch[HeaderSize:]

	if h.Flags&FlagEncrypted != 0 {
		if len(key) == 0 {
			return Header{}, nil, fmt.Errorf("%w: encrypted packet without session key", ErrBadPayload)
		}
		XORKeystream(payload, key)
	}

	if h.Flags&FlagCompressed != 0 {
		expanded, err := Decompress(payload, MaxPayloadSize)
		if err != nil {
			return Header{}, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		payload = expanded
	}

	return h, payload, nil
}
