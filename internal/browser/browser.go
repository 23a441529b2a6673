// Package browser discovers game servers: LAN broadcast probes answered by
// the transport's discovery handler, and master-server lists fetched over
// websocket. The browser runs on its own socket so it works without being
// connected to anything.
package browser

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/util"
)

// Entry is one discovered server.
type Entry struct {
	Addr       string
	Info       protocol.ServerInfoPayload
	PingMillis int64
	LastSeen   time.Time
	Favorite   bool
}

// Browser collects discovery responses. Safe for concurrent use.
type Browser struct {
	mu sync.Mutex

	sock    *net.UDPConn
	servers map[string]*Entry
	probeAt map[string]time.Time // outstanding probes, keyed by addr ("" = broadcast)
	buf     []byte
}

// New opens the discovery socket.
func New() (*Browser, error) {
	sock, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	return &Browser{
		sock:    sock,
		servers: make(map[string]*Entry),
		probeAt: make(map[string]time.Time),
		buf:     make([]byte, protocol.MaxPacketSize+64),
	}, nil
}

// Close releases the discovery socket.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sock != nil {
		b.sock.Close()
		b.sock = nil
	}
}

func (b *Browser) request() ([]byte, error) {
	h := protocol.Header{
		Magic:   protocol.MagicIPv4,
		Version: protocol.Version,
		Type:    protocol.TypeServerInfoRequest,
	}
	return protocol.Encode(h, nil, nil)
}

// Refresh broadcasts a discovery probe on the local network. Responses
// arrive asynchronously; call Poll to collect them.
func (b *Browser) Refresh(port int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sock == nil {
		return fmt.Errorf("browser is closed")
	}

	wire, err := b.request()
	if err != nil {
		return err
	}

	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	if _, err := b.sock.WriteToUDP(wire, dest); err != nil {
		return fmt.Errorf("failed to broadcast discovery probe: %w", err)
	}

	b.probeAt[""] = time.Now()
	util.LogDebug("Discovery probe broadcast to port %d", port)
	return nil
}

// Probe queries one specific server, typically an address from a master
// list that has not answered a broadcast.
func (b *Browser) Probe(addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sock == nil {
		return fmt.Errorf("browser is closed")
	}

	dest, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	wire, err := b.request()
	if err != nil {
		return err
	}
	if _, err := b.sock.WriteToUDP(wire, dest); err != nil {
		return fmt.Errorf("failed to probe %s: %w", addr, err)
	}

	b.probeAt[dest.String()] = time.Now()
	return nil
}

// Poll drains pending responses, updating known servers in place and adding
// new ones. Returns how many responses were processed.
func (b *Browser) Poll() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sock == nil {
		return 0
	}

	handled := 0
	for {
		b.sock.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, addr, err := b.sock.ReadFromUDP(b.buf)
		if err != nil {
			return handled
		}

		h, payload, err := protocol.Decode(b.buf[:n], nil)
		if err != nil || h.Type != protocol.TypeServerInfoResponse {
			continue
		}

		var info protocol.ServerInfoPayload
		if err := info.Unmarshal(payload); err != nil {
			continue
		}

		key := addr.String()
		now := time.Now()

		ping := int64(0)
		if at, ok := b.probeAt[key]; ok {
			ping = now.Sub(at).Milliseconds()
			delete(b.probeAt, key)
		} else if at, ok := b.probeAt[""]; ok {
			ping = now.Sub(at).Milliseconds()
		}

		e := b.servers[key]
		if e == nil {
			e = &Entry{Addr: key}
			b.servers[key] = e
			util.LogDebug("Discovered server %q at %s", info.Name, key)
		}
		e.Info = info
		e.LastSeen = now
		if ping > 0 {
			e.PingMillis = ping
		}
		handled++
	}
}

// SetFavorite marks a known server as a favorite, floating it to the top of
// the listing.
func (b *Browser) SetFavorite(addr string, favorite bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.servers[addr]
	if e == nil {
		return false
	}
	e.Favorite = favorite
	return true
}

// Servers returns a snapshot: favorites first, then by ping, unanswered
// pings last.
func (b *Browser) Servers() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.servers))
	for _, e := range b.servers {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Favorite != out[j].Favorite {
			return out[i].Favorite
		}
		pi, pj := out[i].PingMillis, out[j].PingMillis
		if pi == 0 {
			pi = 1 << 30
		}
		if pj == 0 {
			pj = 1 << 30
		}
		if pi != pj {
			return pi < pj
		}
		return out[i].Addr < out[j].Addr
	})
	return out
}

// Prune drops servers that have not answered within maxAge.
func (b *Browser) Prune(maxAge time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, e := range b.servers {
		if e.LastSeen.Before(cutoff) {
			delete(b.servers, key)
		}
	}
}
