package transport

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/1ureka/netcode/internal/util"
)

// openSocket binds a UDP socket on the given port (0 picks an ephemeral
// port) with a receive buffer large enough to ride out a burst of full-size
// datagrams between ticks.
func openSocket(network string, port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP(network, &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}

	// Best effort; some platforms clamp silently.
	if err := conn.SetReadBuffer(1 << 20); err != nil {
		util.LogDebug("SetReadBuffer failed: %v", err)
	}
	if err := conn.SetWriteBuffer(1 << 20); err != nil {
		util.LogDebug("SetWriteBuffer failed: %v", err)
	}
	return conn, nil
}

// drainSockets pulls every pending datagram off both sockets without
// blocking the tick: a short read deadline turns the blocking reads into a
// poll. Each datagram is handled inline under the driver lock.
func (t *Transport) drainSockets(now int64) {
	if t.sock4 != nil {
		t.drainOne(t.sock4, now)
	}
	if t.sock6 != nil {
		t.drainOne(t.sock6, now)
	}
}

func (t *Transport) drainOne(sock *net.UDPConn, now int64) {
	for {
		sock.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, addr, err := sock.ReadFromUDP(t.readBuf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.stats.Errors.Add(1)
			util.LogDebug("Socket read error: %v", err)
			return
		}
		if n == 0 {
			continue
		}

		t.stats.AddReceived(n)
		t.handlePacket(t.readBuf[:n], addr, now)
	}
}
