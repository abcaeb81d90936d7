// Package identity attaches an anonymous, cookie-backed user to every request.
//
// The mentor has no login of its own: the first request from a browser mints an
// anon_<hex> ID, stores it in a long-lived cookie and creates the user row that
// sessions, plans and progress hang off.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

const (
	AnonCookieName        = "mentor_anon_id"
	SessionHeaderName     = "X-Mentor-Session-ID"
	DefaultSessionIDValue = "default"

	anonPrefix         = "anon_"
	cookieLifetime     = 180 * 24 * time.Hour
	lastSeenResolution = 5 * time.Minute
)

// Identity is what the middleware learned about the caller.
type Identity struct {
	UserID    string
	SessionID string
	IP        string
}

type ctxKey struct{}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// FromContext returns the identity stored by Middleware or WithUserID.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// UserIDFromContext returns the caller's user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := FromContext(ctx)
	return id.UserID
}

// SessionIDFromContext returns the browser tab session, or DefaultSessionIDValue.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok && id.SessionID != "" {
		return id.SessionID
	}
	return DefaultSessionIDValue
}

// WithUserID returns a context carrying userID, for callers outside HTTP.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Identity{UserID: userID, SessionID: DefaultSessionIDValue})
}

// newAnonID returns anon_ followed by the 32 hex digits of a random UUID.
func newAnonID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return anonPrefix + strings.ReplaceAll(u.String(), "-", ""), nil
}

func isValidAnonID(id string) bool {
	hex, ok := strings.CutPrefix(id, anonPrefix)
	if !ok || len(hex) != 32 || strings.ToLower(hex) != hex {
		return false
	}
	_, err := uuid.Parse(hex)
	return err == nil
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func displayName(userID string) string {
	if hex, ok := strings.CutPrefix(userID, anonPrefix); ok && len(hex) >= 8 {
		return "mentee-" + hex[len(hex)-8:]
	}
	return "mentee"
}

// ensureUser creates the user row on first contact and refreshes last_seen_at at
// most every lastSeenResolution.
func ensureUser(ctx context.Context, users store.UserStore, userID string, now time.Time) error {
	user, err := users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return users.UpsertUser(ctx, &domain.User{
			UserID:     userID,
			Username:   displayName(userID),
			LastSeenAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if now.Sub(user.LastSeenAt) < lastSeenResolution {
		return nil
	}
	return users.UpdateLastSeen(ctx, userID, now)
}

// anonID reads the identity cookie, minting a new ID when it is missing or
// malformed. The cookie is re-issued either way so its lifetime slides.
func anonID(w http.ResponseWriter, r *http.Request, secure bool) (string, error) {
	var id string
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		id = c.Value
	} else {
		if id, err = newAnonID(); err != nil {
			return "", err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware resolves the caller's identity and makes sure a user row exists
// before the request reaches a handler.
func Middleware(users store.UserStore, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := anonID(w, r, !isDev)
			if err != nil {
				slog.Error("Failed to mint anonymous id", "error", err)
				http.Error(w, `{"error":"failed to establish identity"}`, http.StatusInternalServerError)
				return
			}
			if err := ensureUser(r.Context(), users, userID, time.Now()); err != nil {
				slog.Error("Failed to initialize user", "user_id", userID, "error", err)
				http.Error(w, `{"error":"failed to initialize user"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, Identity{
				UserID:    userID,
				SessionID: sessionIDFromRequest(r),
				IP:        IPFromRequest(r),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns the remote host without its port.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
