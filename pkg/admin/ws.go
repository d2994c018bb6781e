package admin

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub manages websocket clients and fans library events out to them
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
	closed  bool
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewHub creates a websocket hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The admin surface is bound to a trusted interface
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "admin-ws").Logger(),
		clients: make(map[string]*wsClient),
	}
}

// HandleWS upgrades the connection and registers the client
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	h.mu.RUnlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &wsClient{id: uuid.New().String(), conn: conn}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	h.logger.Debug().Str("client_id", client.id).Msg("Websocket client connected")

	// Drain incoming frames so pings and close frames are processed
	go h.readLoop(client)
}

func (h *Hub) readLoop(client *wsClient) {
	defer h.remove(client.id)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if ok {
		client.conn.Close()
		h.logger.Debug().Str("client_id", id).Msg("Websocket client disconnected")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(msg EventMessage) {
	data, err := msg.marshal()
	if err != nil {
		h.logger.Error().Err(err).Str("event", msg.Event).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	failed := make([]string, 0)
	for _, client := range clients {
		if err := client.write(data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("client_id", client.id).
				Str("event", msg.Event).
				Msg("Failed to broadcast to client")
			failed = append(failed, client.id)
		}
	}

	// Drop clients that can no longer be written to
	for _, id := range failed {
		h.remove(id)
	}
}

// Close disconnects all clients and rejects new connections
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}
}
