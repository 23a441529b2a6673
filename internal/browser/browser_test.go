package browser

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netcode/internal/protocol"
)

// fakeServer answers discovery probes the way a game server would.
func fakeServer(t *testing.T, info protocol.ServerInfoPayload) string {
	t.Helper()

	sock, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })

	go func() {
		buf := make([]byte, protocol.MaxPacketSize)
		for {
			n, addr, err := sock.ReadFromUDP(buf)
			if err != nil {
				return
			}
			h, _, err := protocol.Decode(buf[:n], nil)
			if err != nil || h.Type != protocol.TypeServerInfoRequest {
				continue
			}
			reply := protocol.Header{
				Magic:   protocol.MagicIPv4,
				Version: protocol.Version,
				Type:    protocol.TypeServerInfoResponse,
			}
			wire, err := protocol.Encode(reply, info.Marshal(), nil)
			if err != nil {
				return
			}
			sock.WriteToUDP(wire, addr)
		}
	}()

	return sock.LocalAddr().String()
}

func pollUntil(t *testing.T, b *Browser, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		b.Poll()
		if len(b.Servers()) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("discovered %d servers, want %d", len(b.Servers()), want)
}

func TestProbeDiscoversServer(t *testing.T) {
	addr := fakeServer(t, protocol.ServerInfoPayload{
		Name:        "LAN Party",
		Map:         "arena",
		PlayerCount: 3,
		MaxPlayers:  16,
		Flags:       protocol.InfoDedicated,
	})

	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Probe(addr))
	pollUntil(t, b, 1)

	servers := b.Servers()
	require.Len(t, servers, 1)
	assert.Equal(t, addr, servers[0].Addr)
	assert.Equal(t, "LAN Party", servers[0].Info.Name)
	assert.Equal(t, uint16(3), servers[0].Info.PlayerCount)
	assert.False(t, servers[0].LastSeen.IsZero())
}

func TestRepeatedProbeUpdatesInPlace(t *testing.T) {
	addr := fakeServer(t, protocol.ServerInfoPayload{Name: "Stable", MaxPlayers: 8})

	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Probe(addr))
	pollUntil(t, b, 1)

	// A second answer must refresh the entry, not duplicate it.
	require.NoError(t, b.Probe(addr))
	time.Sleep(100 * time.Millisecond)
	b.Poll()

	assert.Len(t, b.Servers(), 1)
}

func TestServersSortedByPing(t *testing.T) {
	addrA := fakeServer(t, protocol.ServerInfoPayload{Name: "A"})
	addrB := fakeServer(t, protocol.ServerInfoPayload{Name: "B"})

	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Probe(addrA))
	require.NoError(t, b.Probe(addrB))
	pollUntil(t, b, 2)

	servers := b.Servers()
	require.Len(t, servers, 2)
	for i := 1; i < len(servers); i++ {
		prev, cur := servers[i-1].PingMillis, servers[i].PingMillis
		if prev == 0 {
			prev = 1 << 30
		}
		if cur == 0 {
			cur = 1 << 30
		}
		assert.LessOrEqual(t, prev, cur, "list must be sorted by ping")
	}
}

func TestPruneDropsStaleServers(t *testing.T) {
	addr := fakeServer(t, protocol.ServerInfoPayload{Name: "Ghost"})

	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Probe(addr))
	pollUntil(t, b, 1)

	b.Prune(time.Hour)
	assert.Len(t, b.Servers(), 1, "fresh entry pruned")

	time.Sleep(20 * time.Millisecond)
	b.Prune(time.Millisecond)
	assert.Len(t, b.Servers(), 0, "stale entry survived")
}
