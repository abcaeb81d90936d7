// Package agent exposes the mentor engine over HTTP.
package agent

import (
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

// ChatRequest is the body of POST /api/mentor/chat.
type ChatRequest struct {
	Message string `json:"message"`
	GoalID  string `json:"goal_id,omitempty"`

	// Set by the handler from the request identity.
	UserID    string `json:"-"`
	SessionID string `json:"-"`
}

// MessagesResponse is the body of GET /api/mentor/messages.
type MessagesResponse struct {
	GoalID   string           `json:"goal_id,omitempty"`
	Messages []domain.Message `json:"messages"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// channelChat names HTTP chat traffic in the conversation log.
const channelChat = "chat_http"
