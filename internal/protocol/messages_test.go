package protocol

import (
	"bytes"
	"testing"
)

func TestConnectHandshakeRoundTrip(t *testing.T) {
	req := ConnectRequest{
		Protocol:      ProtocolID,
		Name:          "PlayerOne",
		Password:      "hunter2",
		ClientVersion: 1,
		Features:      FeatureVoice | FeatureDownloads,
	}

	var gotReq ConnectRequest
	if err := gotReq.Unmarshal(req.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if gotReq != req {
		t.Errorf("request mismatch: %+v != %+v", gotReq, req)
	}

	key := bytes.Repeat([]byte{0xAB}, KeySize)
	resp := ConnectResponse{
		Result:      ConnectOK,
		ClientID:    3,
		ServerName:  "Test Arena",
		Features:    FeatureEncryption,
		PlayerCount: 4,
		MaxPlayers:  32,
		TickRate:    60,
		Key:         key,
	}

	var gotResp ConnectResponse
	if err := gotResp.Unmarshal(resp.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if gotResp.ClientID != 3 || gotResp.ServerName != "Test Arena" || !bytes.Equal(gotResp.Key, key) {
		t.Errorf("response mismatch: %+v", gotResp)
	}
}

func TestMovementUpdateRoundTrip(t *testing.T) {
	m := MovementUpdate{
		Position:  [3]float32{1.5, -2.25, 300},
		Rotation:  [3]float32{0, 90, 0},
		Velocity:  [3]float32{-5, 0, 12.5},
		Timestamp: 987654,
	}

	var got MovementUpdate
	if err := got.Unmarshal(m.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != m {
		t.Errorf("mismatch: %+v != %+v", got, m)
	}
}

func TestUnmarshalRejectsTruncation(t *testing.T) {
	chat := ChatMessage{
		Sender:     7,
		SenderName: "Alice",
		Message:    "the quick brown fox",
		TeamOnly:   true,
		Timestamp:  100,
	}
	wire := chat.Marshal()

	// Every strict prefix must fail cleanly; none may yield a partial
	// struct without an error.
	for n := 0; n < len(wire); n++ {
		var got ChatMessage
		if err := got.Unmarshal(wire[:n]); err == nil {
			t.Errorf("truncation at %d bytes accepted", n)
		}
	}

	var got ChatMessage
	if err := got.Unmarshal(wire); err != nil {
		t.Fatalf("full payload rejected: %v", err)
	}
	if got != chat {
		t.Errorf("mismatch: %+v != %+v", got, chat)
	}
}

func TestFileChunkRoundTrip(t *testing.T) {
	chunk := FileChunk{
		Filename: "maps/arena.pak",
		Index:    17,
		Data:     bytes.Repeat([]byte{1, 2, 3}, 100),
	}

	var got FileChunk
	if err := got.Unmarshal(chunk.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Filename != chunk.Filename || got.Index != 17 || !bytes.Equal(got.Data, chunk.Data) {
		t.Errorf("mismatch: %+v", got)
	}
}
