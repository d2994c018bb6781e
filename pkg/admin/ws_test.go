package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpHandler(hub *Hub) http.Handler {
	return http.HandlerFunc(hub.HandleWS)
}

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", n, hub.ClientCount())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	conn := dialHub(t, server)
	waitForClients(t, hub, 1)

	hub.Broadcast(newEvent("library.changed", map[string]interface{}{"count": 3}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, "library.changed", msg.Event)
	assert.NotZero(t, msg.Timestamp)
}

func TestHubMultipleClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	conn1 := dialHub(t, server)
	conn2 := dialHub(t, server)
	waitForClients(t, hub, 2)

	hub.Broadcast(newEvent("library.changed", nil))

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		assert.NoError(t, err)
	}
}

func TestHubDisconnectCleanup(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	conn := dialHub(t, server)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubClosedRejectsConnections(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Close()

	server := httptest.NewServer(httpHandler(hub))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.Error(t, err)
}
