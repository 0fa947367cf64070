// internal/realtime/hub.go
package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

type Client struct {
	ID     string
	UserID uuid.UUID
	Conn   *WebSocketConn
	Send   chan []byte
}

// Hub tracks connected clients on two kinds of channels: a personal
// channel per user (notifications) and a session channel per open
// negotiation (new_message fan-out). Clients join and leave session
// channels via WS commands.
type Hub struct {
	clients  map[string]*Client
	sessions map[uuid.UUID]map[string]*Client
	mu       sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		sessions: make(map[uuid.UUID]map[string]*Client),
	}
}

// RegisterClient inserts the client synchronously so a join issued
// right after connecting can never miss it.
func (h *Hub) RegisterClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	log.Printf("Client registered: %s (UserID: %s)", client.ID, client.UserID)
}

// UnregisterClient drops the client from the personal channel and
// every session channel, then closes its send channel.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	old, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		for sessionID, subs := range h.sessions {
			delete(subs, client.ID)
			if len(subs) == 0 {
				delete(h.sessions, sessionID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		close(old.Send)
		log.Printf("Client unregistered: %s", client.ID)
	}
}

// JoinSession subscribes a connected client to a session channel.
func (h *Hub) JoinSession(client *Client, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]*Client)
	}
	h.sessions[sessionID][client.ID] = client
}

func (h *Hub) LeaveSession(client *Client, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.sessions[sessionID]; ok {
		delete(subs, client.ID)
		if len(subs) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// IsSubscribed reports whether any of the user's connections is on the
// session channel. The send path uses it to skip the redundant
// personal notification for a participant already watching the chat.
func (h *Hub) IsSubscribed(userID uuid.UUID, sessionID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.sessions[sessionID] {
		if client.UserID == userID {
			return true
		}
	}
	return false
}

// SendToUser delivers to every connection of one user (personal channel).
func (h *Hub) SendToUser(userID uuid.UUID, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if client.UserID == userID {
			select {
			case client.Send <- payload:
			default:
				// full buffer, skip instead of blocking
			}
		}
	}
}

// SendToSession delivers to every client subscribed to the session, in
// the order the caller invokes it; the hub never reorders messages.
func (h *Hub) SendToSession(sessionID uuid.UUID, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.sessions[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

