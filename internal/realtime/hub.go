// Package realtime pushes mentor messages to connected browser tabs over WebSocket.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

// sendBuffer is the number of events queued per tab before new ones are dropped.
const sendBuffer = 32

// Event is one frame sent to a client.
type Event struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message,omitempty"`
	Data    any             `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// client is one connected tab.
type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendBuffer)}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks connected tabs per user. It implements mentor.Notifier.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*client
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*client),
	}
}

// register adds a tab. A tab reconnecting under the same session ID replaces
// the previous connection.
func (h *Hub) register(userID, sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*client)
	}
	if existing, exists := h.active[userID][sessionID]; exists && existing != c {
		existing.close()
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
	}
	h.active[userID][sessionID] = c
	slog.Info("Mentor tab registered", "user_id", userID, "session_id", sessionID)
}

// unregister removes a tab if it is still the current one for its session.
func (h *Hub) unregister(userID, sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == c {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(h.active, userID)
			}
			c.close()
			slog.Info("Mentor tab unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Connected returns how many tabs a user has open.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Notify pushes an assistant message to every tab of the user.
func (h *Hub) Notify(userID string, msg domain.Message) {
	m := msg
	h.Broadcast(userID, Event{Type: "message", Message: &m})
}

// Broadcast sends ev to every tab of the user. Slow tabs drop events rather
// than block the caller.
func (h *Hub) Broadcast(userID string, ev Event) {
	if ev.SentAt.IsZero() {
		ev.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal realtime event", "error", err, "type", ev.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sid, c := range h.active[userID] {
		select {
		case c.send <- data:
		default:
			slog.Warn("Realtime queue full, dropping event", "user_id", userID, "session_id", sid, "type", ev.Type)
		}
	}
}

// CloseUser terminates every tab of a user.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.active[userID]
	if !ok {
		return
	}
	for sid, c := range sessions {
		c.close()
		_ = c.conn.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Mentor tab closed", "user_id", userID, "session_id", sid)
	}
	delete(h.active, userID)
}

// Close terminates every tab.
func (h *Hub) Close() {
	h.mu.Lock()
	users := make([]string, 0, len(h.active))
	for u := range h.active {
		users = append(users, u)
	}
	h.mu.Unlock()
	for _, u := range users {
		h.CloseUser(u)
	}
}
