// Package domain contains core domain types for the mentor engine.
package domain

import (
	"time"
)

// User is the host-side user record the conversation session is attached to.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
