package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/mentor"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

// maxHistoryLimit caps GET /api/mentor/messages.
const maxHistoryLimit = 200

// Service runs chat turns through the mentor engine and records them in the
// conversation log.
type Service struct {
	engine   *mentor.Engine
	messages store.MessageLog
	log      ConversationLogger
}

// NewService creates a chat service. A nil logger disables conversation logging.
func NewService(engine *mentor.Engine, messages store.MessageLog, log ConversationLogger) *Service {
	if log == nil {
		log = noopConversationLogger{}
	}
	return &Service{engine: engine, messages: messages, log: log}
}

// Chat processes one user message.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*mentor.Reply, error) {
	s.log.Log(ConversationLogEvent{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		GoalID:     req.GoalID,
		Channel:    channelChat,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: req.Message,
	})

	started := time.Now()
	reply, err := s.engine.HandleTurn(ctx, mentor.Turn{
		UserID:  req.UserID,
		GoalID:  req.GoalID,
		Message: req.Message,
	})
	if err != nil {
		s.log.Log(ConversationLogEvent{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			GoalID:    req.GoalID,
			Channel:   channelChat,
			Direction: "inbound",
			EventType: "chat_error",
			Meta:      map[string]any{"error": err.Error()},
		})
		return nil, err
	}

	meta := map[string]any{
		"kind":        reply.Kind,
		"plan_state":  reply.Plan,
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if reply.Stage != "" {
		meta["stage"] = reply.Stage
	}
	if reply.Outcome != nil {
		meta["points_earned"] = reply.Outcome.PointsEarned
		meta["goal_completed"] = reply.Outcome.GoalCompleted
	}
	s.log.Log(ConversationLogEvent{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		GoalID:     reply.GoalID,
		Channel:    channelChat,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: reply.Content,
		Meta:       meta,
	})
	return reply, nil
}

// History returns up to limit messages of a goal's conversation, oldest first.
func (s *Service) History(ctx context.Context, userID, goalID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = mentor.DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	recent, err := s.messages.GetRecentMessages(ctx, userID, goalID, limit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	out := make([]domain.Message, len(recent))
	for i, m := range recent {
		out[len(recent)-1-i] = m
	}
	return out, nil
}

// Close flushes the conversation log.
func (s *Service) Close() {
	if err := s.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}
