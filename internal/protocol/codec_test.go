package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func testHeader(typ PacketType) Header {
	return Header{
		Magic:     MagicIPv4,
		Version:   Version,
		Type:      typ,
		Sequence:  42,
		Ack:       7,
		Timestamp: 123456,
		Sender:    9,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello, world")

	wire, err := Encode(testHeader(TypeChatMessage), payload, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	h, got, err := Decode(wire, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if h.Type != TypeChatMessage || h.Sequence != 42 || h.Ack != 7 || h.Sender != 9 {
		t.Errorf("header mismatch: %+v", h)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %q want %q", got, payload)
	}
}

func TestEncodeDecodeEncrypted(t *testing.T) {
	key := NewSessionKey()
	payload := []byte("secret game state")
	h := testHeader(TypeGameState)
	h.Flags |= FlagEncrypted

	wire, err := Encode(h, payload, key)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// The masked payload must not appear in the clear on the wire.
	if bytes.Contains(wire, payload) {
		t.Error("payload visible on the wire despite encryption")
	}

	_, got, err := Decode(wire, key)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch after decrypt: got %q", got)
	}

	// Without the key the checksum still passes but the payload transform
	// is impossible; Decode must refuse rather than return garbage.
	if _, _, err := Decode(wire, nil); err == nil {
		t.Error("Decode accepted an encrypted packet without the key")
	}
}

func TestEncodeCompressesRuns(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, 600)

	wire, err := Encode(testHeader(TypeEntityUpdate), payload, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(wire) >= HeaderSize+len(payload) {
		t.Errorf("run of 600 bytes was not compressed: wire is %d bytes", len(wire))
	}

	_, got, err := Decode(wire, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload mismatch after decompression")
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	wire, err := Encode(testHeader(TypeEvent), []byte("important"), nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flipping any single byte must fail the checksum (or an earlier
	// structural check). No flipped variant may decode successfully.
	for i := range wire {
		corrupted := make([]byte, len(wire))
		copy(corrupted, wire)
		corrupted[i] ^= 0x01

		if _, _, err := Decode(corrupted, nil); err == nil {
			t.Errorf("Decode accepted packet with byte %d flipped", i)
		}
	}
}

func TestDecodeValidationOrder(t *testing.T) {
	good, err := Encode(testHeader(TypePing), []byte("ping"), nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{"too short", func(b []byte) []byte { return b[:HeaderSize-1] }, ErrTooShort},
		{"bad magic", func(b []byte) []byte { b[0] = 0x00; b[1] = 0x00; return b }, ErrBadMagic},
		{"bad version", func(b []byte) []byte { b[2] = Version + 1; return b }, ErrBadVersion},
		{"size mismatch", func(b []byte) []byte { return append(b, 0xFF) }, ErrSizeMismatch},
		{"bad checksum", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }, ErrBadChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, len(good))
			copy(buf, good)

			_, _, err := Decode(tt.mutate(buf), nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	if _, err := Encode(testHeader(TypeCustom), make([]byte, MaxPayloadSize+1), nil); err == nil {
		t.Error("Encode accepted a payload over the datagram budget")
	}
}

func TestXORKeystreamSelfInverse(t *testing.T) {
	key := NewSessionKey()
	buf := []byte("round and round we go")
	orig := make([]byte, len(buf))
	copy(orig, buf)

	XORKeystream(buf, key)
	if bytes.Equal(buf, orig) {
		t.Error("keystream left the buffer unchanged")
	}
	XORKeystream(buf, key)
	if !bytes.Equal(buf, orig) {
		t.Error("applying the keystream twice did not restore the buffer")
	}
}
