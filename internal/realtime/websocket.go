package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/identity"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/mentor"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

const (
	writeTimeout    = 10 * time.Second
	lastSeenTimeout = 5 * time.Second
	maxFrameSize    = 64 << 10
)

// TurnHandler runs one chat turn. *mentor.Engine satisfies it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn mentor.Turn) (*mentor.Reply, error)
}

// WebSocketHandler serves GET /ws/mentor.
type WebSocketHandler struct {
	hub            *Hub
	engine         TurnHandler
	users          store.UserStore
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler. engine may be nil for a
// push-only socket.
func NewWebSocketHandler(hub *Hub, engine TurnHandler, users store.UserStore, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		engine:         engine,
		users:          users,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// wsMessage is an inbound client frame.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	GoalID  string `json:"goal_id,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(maxFrameSize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	c := newClient(ws)
	h.hub.register(userID, sessionID, c)
	defer h.hub.unregister(userID, sessionID, c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: client -> engine.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, userID, sessionID)
	}()

	// Output loop: hub -> client.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, c, userID)
	}()

	wg.Wait()
	slog.Info("Mentor socket ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.hub.Broadcast(userID, Event{Type: "error", Error: "invalid frame"})
			continue
		}

		switch msg.Type {
		case "ping":
			h.hub.Broadcast(userID, Event{Type: "pong"})
		case "chat":
			h.handleChat(ctx, userID, msg)
		default:
			slog.Debug("Unknown frame type", "type", msg.Type, "user_id", userID, "session_id", sessionID)
		}

		go h.touch(userID)
	}
}

// handleChat runs a turn. Assistant messages reach the tabs through the hub's
// Notify; the turn event carries the rest of the reply.
func (h *WebSocketHandler) handleChat(ctx context.Context, userID string, msg wsMessage) {
	if h.engine == nil {
		h.hub.Broadcast(userID, Event{Type: "error", Error: "chat disabled"})
		return
	}
	reply, err := h.engine.HandleTurn(ctx, mentor.Turn{UserID: userID, GoalID: msg.GoalID, Message: msg.Content})
	if err != nil {
		slog.Warn("Socket chat turn failed", "user_id", userID, "error", err)
		h.hub.Broadcast(userID, Event{Type: "error", Error: "the mentor could not respond"})
		return
	}
	h.hub.Broadcast(userID, Event{Type: "turn", Data: reply})
}

func (h *WebSocketHandler) outputLoop(ctx context.Context, ws *websocket.Conn, c *client, userID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "user_id", userID)
				}
				return
			}
		}
	}
}

func (h *WebSocketHandler) touch(userID string) {
	if h.users == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lastSeenTimeout)
	defer cancel()
	if err := h.users.UpdateLastSeen(ctx, userID, time.Now()); err != nil {
		slog.Warn("Failed to update last seen", "error", err)
	}
}
