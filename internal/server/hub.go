package server

import (
	"log"
	"sync"

	"github.com/gobwas/ws"
	"github.com/omochice/talkwave/pkg/protocol"
)

// Client represents one realtime connection of a signed-in user.
type Client struct {
	Conn     *Connection
	UserID   int64
	Username string
	Outgoing chan []byte
}

// Hub manages all connected clients, their room subscriptions and
// broadcasts. Frames are encoded once per broadcast in the hub's format.
type Hub struct {
	format  protocol.Format
	clients map[*Client]map[int64]bool
	rooms   map[int64]map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(format protocol.Format) *Hub {
	return &Hub{
		format:  format,
		clients: make(map[*Client]map[int64]bool),
		rooms:   make(map[int64]map[*Client]bool),
	}
}

// Opcode is the frame type used for every frame the hub produces.
func (h *Hub) Opcode() ws.OpCode {
	if h.format == protocol.FormatProto {
		return ws.OpBinary
	}
	return ws.OpText
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = make(map[int64]bool)
}

// Unregister removes a client from the hub and its rooms, then closes its
// outgoing channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.clients[client]
	if !ok {
		return
	}
	for roomID := range rooms {
		h.leave(client, roomID)
	}
	delete(h.clients, client)
	close(client.Outgoing)
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribe adds client to the broadcast group of roomID.
func (h *Hub) Subscribe(client *Client, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.clients[client]
	if !ok {
		return
	}
	rooms[roomID] = true
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
}

// Unsubscribe removes client from the broadcast group of roomID.
func (h *Hub) Unsubscribe(client *Client, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms, ok := h.clients[client]; ok {
		delete(rooms, roomID)
		h.leave(client, roomID)
	}
}

func (h *Hub) leave(client *Client, roomID int64) {
	members := h.rooms[roomID]
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// Subscribed reports whether client receives broadcasts for roomID.
func (h *Hub) Subscribed(client *Client, roomID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][client]
}

// Send delivers p to a single client.
func (h *Hub) Send(client *Client, p protocol.Payload) {
	data, ok := h.encode(p)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; ok {
		h.deliver(client, data)
	}
}

// Broadcast delivers p to every connected client.
func (h *Hub) Broadcast(p protocol.Payload) {
	data, ok := h.encode(p)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		h.deliver(client, data)
	}
}

// BroadcastRoom delivers p to every client subscribed to roomID except
// the excluded one, which may be nil.
func (h *Hub) BroadcastRoom(roomID int64, p protocol.Payload, except *Client) {
	data, ok := h.encode(p)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[roomID] {
		if client != except {
			h.deliver(client, data)
		}
	}
}

// CloseAll closes every client connection. Their handlers unregister them.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.Conn != nil {
			client.Conn.Close()
		}
	}
}

func (h *Hub) encode(p protocol.Payload) ([]byte, bool) {
	data, err := protocol.Encode(p, h.format)
	if err != nil {
		log.Printf("Failed to encode message: %v", err)
		return nil, false
	}
	return data, true
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Outgoing <- data:
	default:
		// Channel is full, skip this client
		log.Printf("Client channel full, skipping %s", client.Username)
	}
}
