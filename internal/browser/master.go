package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/util"
)

// Master-server client. A master is a plain websocket endpoint: the client
// sends one JSON query and receives one JSON listing, then the socket is
// closed. Entries from a master carry no ping; Probe them to measure one.

// masterQuery is the request sent to a master server.
type masterQuery struct {
	Action   string `json:"action"`
	Protocol string `json:"protocol"`
}

// MasterEntry is one server as listed by a master.
type MasterEntry struct {
	Addr        string `json:"addr"`
	Name        string `json:"name"`
	Map         string `json:"map"`
	Mode        string `json:"mode"`
	PlayerCount uint16 `json:"players"`
	MaxPlayers  uint16 `json:"max_players"`
	Passworded  bool   `json:"passworded"`
}

// masterReply is the listing returned by a master server.
type masterReply struct {
	Servers []MasterEntry `json:"servers"`
	Error   string        `json:"error,omitempty"`
}

// QueryMaster fetches the server list from one master endpoint.
func QueryMaster(ctx context.Context, url string) ([]MasterEntry, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to reach master %s: %w", url, err)
	}
	defer conn.Close()

	query := masterQuery{Action: "list", Protocol: protocol.ProtocolID}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	}

	if err := conn.WriteJSON(query); err != nil {
		return nil, fmt.Errorf("failed to query master %s: %w", url, err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read master reply from %s: %w", url, err)
	}

	var reply masterReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("malformed master reply from %s: %w", url, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("master %s refused: %s", url, reply.Error)
	}

	return reply.Servers, nil
}

// QueryMasters merges the listings of several masters, deduplicating by
// address. A master that fails is logged and skipped; one dead master must
// not empty the browser.
func QueryMasters(ctx context.Context, urls []string) []MasterEntry {
	seen := make(map[string]bool)
	var out []MasterEntry

	for _, url := range urls {
		entries, err := QueryMaster(ctx, url)
		if err != nil {
			util.LogWarning("%v", err)
			continue
		}
		for _, e := range entries {
			if e.Addr == "" || seen[e.Addr] {
				continue
			}
			seen[e.Addr] = true
			out = append(out, e)
		}
		util.LogInfo("Master %s listed %d servers", url, len(entries))
	}

	return out
}
