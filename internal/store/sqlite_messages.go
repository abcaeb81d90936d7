package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/shared"
	"github.com/google/uuid"
)

// AppendMessage appends a conversation message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	query := `
		INSERT INTO messages (id, user_id, goal_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	return shared.RetryOnConflict(ctx, "append message", retryAttempts, retryBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			msg.ID, msg.UserID, msg.GoalID, msg.Role, msg.Content, toMillis(msg.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append message: %w", err)
		}
		return nil
	})
}

// GetRecentMessages returns up to limit messages of a conversation, newest first.
func (s *SQLiteStore) GetRecentMessages(ctx context.Context, userID, goalID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT id, user_id, goal_id, role, content, created_at
		FROM messages WHERE user_id = ? AND goal_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, userID, goalID, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent messages: %w", err)
	}
	defer closeRows(rows)

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.GoalID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// CountUserMessages counts user-authored messages created at or after since.
func (s *SQLiteStore) CountUserMessages(ctx context.Context, userID, goalID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM messages
		WHERE user_id = ? AND goal_id = ? AND role = ? AND created_at >= ?`
	var n int
	if err := s.db.QueryRowContext(ctx, query, userID, goalID, domain.RoleUser, toMillis(since)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count user messages: %w", err)
	}
	return n, nil
}
