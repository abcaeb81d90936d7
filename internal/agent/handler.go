package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/config"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/identity"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/llm"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/mentor"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (64KB).
const defaultMaxRequestBodySize = 64 << 10

// Handler handles mentor chat HTTP requests.
type Handler struct {
	agent       *Service
	rateLimiter *RateLimiter
	maxBodySize int64
}

// RateLimiter implements a per-user sliding window rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewRateLimiter creates a new rate limiter and starts the background eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	recent := fresh(r.requests[key], now.Add(-r.window))
	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}
	r.requests[key] = append(recent, now)
	return true
}

// Stop ends the eviction goroutine.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.stopped
}

// evictLoop periodically drops expired keys so the map does not grow without bound.
func (r *RateLimiter) evictLoop() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.window)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			cutoff := r.now().Add(-r.window)
			for key, times := range r.requests {
				if kept := fresh(times, cutoff); len(kept) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = kept
				}
			}
			r.mu.Unlock()
		}
	}
}

func fresh(times []time.Time, cutoff time.Time) []time.Time {
	var kept []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// NewHandler creates a chat handler. cfg may be nil, in which case defaults apply.
func NewHandler(svc *Service, cfg *config.Config) *Handler {
	requests, window := 20, time.Minute
	if cfg != nil {
		requests = cfg.RateLimit.Requests
		window = cfg.RateLimit.Window
	}
	return &Handler{
		agent:       svc,
		rateLimiter: NewRateLimiter(requests, window),
		maxBodySize: defaultMaxRequestBodySize,
	}
}

// RegisterRoutes registers mentor chat routes (requires identity middleware).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/mentor", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Get("/messages", h.HandleMessages)
	})
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	if h.agent != nil {
		h.agent.Close()
	}
}

// HandleChat handles POST /api/mentor/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	// Keyed by user only so rotating session IDs does not bypass the limit.
	if !h.rateLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	req.UserID = userID
	req.SessionID = identity.SessionIDFromContext(r.Context())

	slog.Info("Mentor chat request",
		"user_id", userID,
		"session_id", req.SessionID,
		"goal_id", req.GoalID,
		"message_length", len(req.Message),
		"request_id", chiMiddleware.GetReqID(r.Context()),
	)

	reply, err := h.agent.Chat(r.Context(), req)
	if err != nil {
		status, kind := statusForError(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Mentor chat failed", "user_id", userID, "error", err)
		}
		writeError(w, status, messageForStatus(status, err), kind)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// HandleMessages handles GET /api/mentor/messages?goal_id=&limit=.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	goalID := r.URL.Query().Get("goal_id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		limit = n
	}

	msgs, err := h.agent.History(r.Context(), userID, goalID, limit)
	if err != nil {
		slog.Error("Failed to load messages", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages", "")
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{GoalID: goalID, Messages: msgs})
}

// statusForError maps engine errors to HTTP statuses.
func statusForError(err error) (int, string) {
	if errors.Is(err, mentor.ErrEmptyMessage) {
		return http.StatusBadRequest, ""
	}
	kind := llm.KindOf(err)
	switch kind {
	case "":
		return http.StatusInternalServerError, ""
	case llm.KindRateLimited:
		return http.StatusTooManyRequests, string(kind)
	case llm.KindRegion:
		return http.StatusUnavailableForLegalReasons, string(kind)
	default:
		return http.StatusBadGateway, string(kind)
	}
}

func messageForStatus(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusTooManyRequests:
		return "the mentor is busy, try again shortly"
	case http.StatusUnavailableForLegalReasons:
		return "the mentor is not available in your region"
	case http.StatusBadGateway:
		return "the mentor could not respond"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}
