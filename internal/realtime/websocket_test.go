package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/identity"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/mentor"
)

type echoEngine struct {
	hub *Hub
}

func (e *echoEngine) HandleTurn(_ context.Context, turn mentor.Turn) (*mentor.Reply, error) {
	msg := domain.Message{ID: "reply-1", UserID: turn.UserID, Role: domain.RoleAssistant, Content: "echo: " + turn.Message}
	e.hub.Notify(turn.UserID, msg)
	return &mentor.Reply{Content: msg.Content, Kind: "guidance", Plan: "no_goals"}, nil
}

func newSocketServer(t *testing.T, hub *Hub, engine TurnHandler, userID string) *httptest.Server {
	t.Helper()
	h := NewWebSocketHandler(hub, engine, nil, nil, true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID != "" {
			r = r.WithContext(identity.WithUserID(r.Context(), userID))
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) Event {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestWebSocketChatRoundTrip(t *testing.T) {
	hub := NewHub()
	srv := newSocketServer(t, hub, &echoEngine{hub: hub}, "u1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"chat","content":"hello"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	first := readEvent(t, ctx, conn)
	if first.Type != "message" || first.Message == nil || first.Message.Content != "echo: hello" {
		t.Fatalf("unexpected first event %+v", first)
	}
	second := readEvent(t, ctx, conn)
	if second.Type != "turn" {
		t.Fatalf("expected turn event, got %+v", second)
	}
}

func TestWebSocketPing(t *testing.T) {
	hub := NewHub()
	srv := newSocketServer(t, hub, nil, "u1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, ctx, conn); ev.Type != "pong" {
		t.Fatalf("expected pong, got %+v", ev)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	srv := newSocketServer(t, NewHub(), nil, "")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewWebSocketHandler(NewHub(), nil, nil, []string{"https://mentor.example"}, false)

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://mentor.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws/mentor", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := h.checkOrigin(r); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}
