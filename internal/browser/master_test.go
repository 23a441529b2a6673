package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// fakeMaster serves one websocket listing per connection.
func fakeMaster(t *testing.T, reply masterReply) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var query masterQuery
		if err := conn.ReadJSON(&query); err != nil {
			return
		}
		if query.Action != "list" {
			conn.WriteJSON(masterReply{Error: "unknown action"})
			return
		}

		data, _ := json.Marshal(reply)
		conn.WriteMessage(websocket.TextMessage, data)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestQueryMasterReturnsListing(t *testing.T) {
	url := fakeMaster(t, masterReply{Servers: []MasterEntry{
		{Addr: "203.0.113.1:7777", Name: "Public One", PlayerCount: 10, MaxPlayers: 32},
		{Addr: "203.0.113.2:7777", Name: "Public Two"},
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := QueryMaster(ctx, url)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Public One", entries[0].Name)
	assert.Equal(t, uint16(10), entries[0].PlayerCount)
}

func TestQueryMastersMergesAndDeduplicates(t *testing.T) {
	first := fakeMaster(t, masterReply{Servers: []MasterEntry{
		{Addr: "203.0.113.1:7777", Name: "Shared"},
		{Addr: "203.0.113.2:7777", Name: "OnlyFirst"},
	}})
	second := fakeMaster(t, masterReply{Servers: []MasterEntry{
		{Addr: "203.0.113.1:7777", Name: "Shared"},
		{Addr: "203.0.113.3:7777", Name: "OnlySecond"},
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries := QueryMasters(ctx, []string{first, second})
	assert.Len(t, entries, 3, "shared address listed once")
}

func TestQueryMastersSurvivesDeadMaster(t *testing.T) {
	alive := fakeMaster(t, masterReply{Servers: []MasterEntry{
		{Addr: "203.0.113.1:7777", Name: "Alive"},
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries := QueryMasters(ctx, []string{"ws://127.0.0.1:1/ws", alive})
	require.Len(t, entries, 1)
	assert.Equal(t, "Alive", entries[0].Name)
}
