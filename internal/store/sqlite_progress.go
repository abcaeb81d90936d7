package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/shared"
	"github.com/google/uuid"
)

// AppendProgressEvent appends an immutable progress event.
func (s *SQLiteStore) AppendProgressEvent(ctx context.Context, event *domain.ProgressEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	query := `
		INSERT INTO progress_events (id, user_id, goal_id, milestone_id, action_id, kind, points, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return shared.RetryOnConflict(ctx, "append progress event", retryAttempts, retryBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			event.ID, event.UserID, event.GoalID, event.MilestoneID, event.ActionID,
			event.Kind, event.Points, toMillis(event.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append progress event: %w", err)
		}
		return nil
	})
}

// ListProgressEvents lists a user's non-deleted events in creation order.
func (s *SQLiteStore) ListProgressEvents(ctx context.Context, userID, goalID string) ([]domain.ProgressEvent, error) {
	query := `
		SELECT id, user_id, goal_id, milestone_id, action_id, kind, points, created_at
		FROM progress_events WHERE user_id = ? AND deleted = 0`
	args := []any{userID}
	if goalID != "" {
		query += ` AND goal_id = ?`
		args = append(args, goalID)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress events: %w", err)
	}
	defer closeRows(rows)

	var out []domain.ProgressEvent
	for rows.Next() {
		var e domain.ProgressEvent
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.GoalID, &e.MilestoneID, &e.ActionID,
			&e.Kind, &e.Points, &createdAt); err != nil {
			return nil, fmt.Errorf("scan progress event: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress events: %w", err)
	}
	return out, nil
}

// GetUserProgressState returns the user's progress state.
func (s *SQLiteStore) GetUserProgressState(ctx context.Context, userID string) (*domain.UserProgressState, error) {
	query := `
		SELECT user_id, total_progress, consistency_streak, last_activity_date,
		       avatar_level, avatar_stage, updated_at
		FROM user_progress WHERE user_id = ?`

	var st domain.UserProgressState
	var lastActivity sql.NullInt64
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&st.UserID, &st.TotalProgress, &st.ConsistencyStreak, &lastActivity,
		&st.AvatarLevel, &st.AvatarStage, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress state: %w", err)
	}
	st.LastActivityDate = fromNullMillis(lastActivity)
	st.UpdatedAt = fromMillis(updatedAt)
	return &st, nil
}

// UpdateUserProgressState creates or replaces the user's progress state.
func (s *SQLiteStore) UpdateUserProgressState(ctx context.Context, state *domain.UserProgressState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = s.now()
	}
	query := `
		INSERT INTO user_progress (user_id, total_progress, consistency_streak, last_activity_date,
			avatar_level, avatar_stage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_progress = excluded.total_progress,
			consistency_streak = excluded.consistency_streak,
			last_activity_date = excluded.last_activity_date,
			avatar_level = excluded.avatar_level,
			avatar_stage = excluded.avatar_stage,
			updated_at = excluded.updated_at`
	return shared.RetryOnConflict(ctx, "update progress state", retryAttempts, retryBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			state.UserID, state.TotalProgress, state.ConsistencyStreak, nullMillis(state.LastActivityDate),
			state.AvatarLevel, state.AvatarStage, toMillis(state.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("update progress state: %w", err)
		}
		return nil
	})
}

// ListProgressUsers returns the users that have a progress state.
func (s *SQLiteStore) ListProgressUsers(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT user_id FROM user_progress ORDER BY user_id`)
}
