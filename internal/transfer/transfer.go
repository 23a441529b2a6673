// Package transfer implements chunked file delivery over the reliable
// channel: maps, mods, and demo files pushed from the server to clients or
// uploaded by clients. Content is split into fixed-size chunks; each chunk
// rides a reliable packet, so ordering and retransmission come from the
// delivery engine and the manager only tracks assembly.
package transfer

import (
	"fmt"
	"hash/crc32"

	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/util"
)

const (
	// ChunkSize is the content carried per FILE_DATA packet. It must leave
	// room for the packet header and the chunk framing inside one datagram.
	ChunkSize = 1024

	// MaxConcurrent bounds simultaneous transfers across all peers.
	MaxConcurrent = 4

	// MaxFileSize is the largest file a peer may announce. Anything bigger
	// is refused before a single chunk is buffered.
	MaxFileSize = 64 << 20

	// chunksPerTick is the upload pacing: how many chunks each active
	// upload pushes per driver tick.
	chunksPerTick = 2
)

// SendFunc transmits one packet to a peer. Provided by the transport so the
// manager never touches sockets.
type SendFunc func(target uint32, t protocol.PacketType, payload []byte, reliable bool) bool

// CompleteFunc is invoked when a download finishes and verifies.
type CompleteFunc func(peer uint32, filename string, data []byte)

type direction int

const (
	dirUpload direction = iota
	dirDownload
)

// slot is one active transfer.
type slot struct {
	dir      direction
	peer     uint32
	filename string

	data      []byte
	chunkSize uint32 // download: chunk stride announced by the sender
	total     uint32 // chunk count
	next      uint32 // upload: next chunk index to send
	received  []bool // download: receipt bitmap
	have      uint32 // download: chunks received

	// The sender's FILE_COMPLETE may overtake a retransmitted chunk; when it
	// does, the expected checksum is stashed here and the download finishes
	// from HandleChunk once the last bitmap bit sets.
	senderDone bool
	checksum   uint32
}

// Manager drives all active transfers. Owned by the transport and called
// only under its lock.
type Manager struct {
	send       SendFunc
	onComplete CompleteFunc

	slots []*slot
}

// NewManager creates a transfer manager wired to the given sender.
func NewManager(send SendFunc, onComplete CompleteFunc) *Manager {
	return &Manager{send: send, onComplete: onComplete}
}

// Active returns the number of in-flight transfers.
func (m *Manager) Active() int { return len(m.slots) }

func (m *Manager) find(peer uint32, filename string) *slot {
	for _, s := range m.slots {
		if s.peer == peer && s.filename == filename {
			return s
		}
	}
	return nil
}

func (m *Manager) remove(target *slot) {
	for i, s := range m.slots {
		if s == target {
			m.slots = append(m.slots[:i], m.slots[i+1:]...)
			return
		}
	}
}

// Offer starts pushing a file to a peer. The announce rides a reliable
// packet; chunks follow on subsequent ticks.
func (m *Manager) Offer(peer uint32, filename string, data []byte) error {
	if len(m.slots) >= MaxConcurrent {
		return fmt.Errorf("transfer limit reached (%d active)", len(m.slots))
	}
	if len(data) > MaxFileSize {
		return fmt.Errorf("file %q exceeds the %d byte transfer limit", filename, MaxFileSize)
	}
	if m.find(peer, filename) != nil {
		return fmt.Errorf("transfer of %q to client %d already active", filename, peer)
	}

	total := uint32((len(data) + ChunkSize - 1) / ChunkSize)
	req := protocol.FileRequest{
		Filename:    filename,
		FileSize:    uint32(len(data)),
		ChunkSize:   ChunkSize,
		TotalChunks: total,
	}
	if !m.send(peer, protocol.TypeFileRequest, req.Marshal(), true) {
		return fmt.Errorf("failed to announce %q to client %d", filename, peer)
	}

	owned := make([]byte, len(data))
	copy(owned, data)
	m.slots = append(m.slots, &slot{
		dir:      dirUpload,
		peer:     peer,
		filename: filename,
		data:     owned,
		total:    total,
	})

	util.LogInfo("Sending %q to client %d (%d bytes, %d chunks)", filename, peer, len(data), total)
	return nil
}

// HandleRequest processes an incoming announce and opens a download slot.
// Oversized or duplicate announces are refused without buffering.
func (m *Manager) HandleRequest(peer uint32, req *protocol.FileRequest) error {
	if len(m.slots) >= MaxConcurrent {
		return fmt.Errorf("transfer limit reached, refusing %q", req.Filename)
	}
	if req.FileSize > MaxFileSize {
		return fmt.Errorf("refusing %q: declared size %d exceeds limit", req.Filename, req.FileSize)
	}
	if req.ChunkSize == 0 || req.ChunkSize > ChunkSize {
		return fmt.Errorf("refusing %q: bad chunk size %d", req.Filename, req.ChunkSize)
	}
	if uint64(req.TotalChunks)*uint64(req.ChunkSize) < uint64(req.FileSize) {
		return fmt.Errorf("refusing %q: %d chunks cannot hold %d bytes", req.Filename, req.TotalChunks, req.FileSize)
	}
	if m.find(peer, req.Filename) != nil {
		return fmt.Errorf("download of %q from client %d already active", req.Filename, peer)
	}

	m.slots = append(m.slots, &slot{
		dir:       dirDownload,
		peer:      peer,
		filename:  req.Filename,
		data:      make([]byte, req.FileSize),
		chunkSize: req.ChunkSize,
		total:     req.TotalChunks,
		received:  make([]bool, req.TotalChunks),
	})

	util.LogInfo("Receiving %q from client %d (%d bytes, %d chunks)", req.Filename, peer, req.FileSize, req.TotalChunks)
	return nil
}

// HandleChunk places one received chunk. Duplicates (reliable retransmits
// that raced their ack) are ignored; chunks without a matching slot are
// dropped. A chunk filling the last bitmap bit after the sender already
// signaled completion finishes the download.
func (m *Manager) HandleChunk(peer uint32, chunk *protocol.FileChunk) error {
	s := m.find(peer, chunk.Filename)
	if s == nil || s.dir != dirDownload {
		return fmt.Errorf("chunk for unknown transfer %q from client %d", chunk.Filename, peer)
	}
	if chunk.Index >= s.total {
		return fmt.Errorf("chunk index %d out of range for %q", chunk.Index, chunk.Filename)
	}
	if s.received[chunk.Index] {
		return nil
	}

	offset := int(chunk.Index) * int(s.chunkSize)
	if offset+len(chunk.Data) > len(s.data) {
		return fmt.Errorf("chunk %d of %q overflows declared size", chunk.Index, chunk.Filename)
	}
	copy(s.data[offset:], chunk.Data)
	s.received[chunk.Index] = true
	s.have++

	if s.senderDone && s.have == s.total {
		return m.finishDownload(s)
	}
	return nil
}

// HandleComplete records the sender's completion marker. The download only
// finishes once every bitmap bit is set: chunks ride the reliable channel,
// which guarantees arrival but not order, so the marker may overtake a
// retransmitted chunk. In that case the slot stays open and HandleChunk
// finishes the job.
func (m *Manager) HandleComplete(peer uint32, done *protocol.FileComplete) error {
	s := m.find(peer, done.Filename)
	if s == nil || s.dir != dirDownload {
		return fmt.Errorf("completion for unknown transfer %q from client %d", done.Filename, peer)
	}

	s.senderDone = true
	s.checksum = done.Checksum

	if s.have != s.total {
		util.LogDebug("Completion for %q ahead of %d outstanding chunks", done.Filename, s.total-s.have)
		return nil
	}
	return m.finishDownload(s)
}

// finishDownload verifies and delivers a fully received file, releasing its
// slot whether or not the checksum holds.
func (m *Manager) finishDownload(s *slot) error {
	m.remove(s)

	if sum := crc32.ChecksumIEEE(s.data); sum != s.checksum {
		return fmt.Errorf("transfer %q checksum mismatch: got %08x want %08x", s.filename, sum, s.checksum)
	}

	util.LogSuccess("Received %q from client %d (%d bytes)", s.filename, s.peer, len(s.data))
	if m.onComplete != nil {
		m.onComplete(s.peer, s.filename, s.data)
	}
	return nil
}

// Tick advances every active upload by a few chunks. Finished uploads send
// the completion marker and free their slot.
func (m *Manager) Tick() {
	var finished []*slot

	for _, s := range m.slots {
		if s.dir != dirUpload {
			continue
		}

		for i := 0; i < chunksPerTick && s.next < s.total; i++ {
			start := int(s.next) * ChunkSize
			end := start + ChunkSize
			if end > len(s.data) {
				end = len(s.data)
			}

			chunk := protocol.FileChunk{
				Filename: s.filename,
				Index:    s.next,
				Data:     s.data[start:end],
			}
			if !m.send(s.peer, protocol.TypeFileData, chunk.Marshal(), true) {
				break
			}
			s.next++
		}

		if s.next >= s.total {
			finished = append(finished, s)
		}
	}

	for _, s := range finished {
		done := protocol.FileComplete{
			Filename: s.filename,
			Checksum: crc32.ChecksumIEEE(s.data),
		}
		m.send(s.peer, protocol.TypeFileComplete, done.Marshal(), true)
		m.remove(s)
		util.LogSuccess("Finished sending %q to client %d", s.filename, s.peer)
	}
}

// CancelPeer drops every transfer involving a departed peer.
func (m *Manager) CancelPeer(peer uint32) {
	kept := m.slots[:0]
	for _, s := range m.slots {
		if s.peer == peer {
			util.LogDebug("Cancelled transfer %q for client %d", s.filename, peer)
			continue
		}
		kept = append(kept, s)
	}
	m.slots = kept
}
