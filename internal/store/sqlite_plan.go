package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/shared"
	"github.com/google/uuid"
)

const goalColumns = `id, user_id, title, main_goal, status, deleted, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (domain.Goal, error) {
	var g domain.Goal
	var createdAt int64
	var completedAt sql.NullInt64
	err := row.Scan(&g.ID, &g.UserID, &g.Title, &g.MainGoal, &g.Status, &g.Deleted, &createdAt, &completedAt)
	if err != nil {
		return domain.Goal{}, err
	}
	g.CreatedAt = fromMillis(createdAt)
	g.CompletedAt = fromNullMillis(completedAt)
	return g, nil
}

// GetGoal returns a non-deleted goal owned by userID.
func (s *SQLiteStore) GetGoal(ctx context.Context, userID, goalID string) (*domain.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE id = ? AND user_id = ? AND deleted = 0`
	g, err := scanGoal(s.db.QueryRowContext(ctx, query, goalID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return &g, nil
}

// ListGoals returns the user's non-deleted goals, newest first.
func (s *SQLiteStore) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals
		WHERE user_id = ? AND deleted = 0
		ORDER BY created_at DESC, rowid DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer closeRows(rows)

	var goals []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return goals, nil
}

const milestoneColumns = `id, goal_id, title, description, sequence, status, created_at, completed_at`

func scanMilestone(row rowScanner) (domain.Milestone, error) {
	var m domain.Milestone
	var createdAt int64
	var completedAt sql.NullInt64
	err := row.Scan(&m.ID, &m.GoalID, &m.Title, &m.Description, &m.Sequence, &m.Status, &createdAt, &completedAt)
	if err != nil {
		return domain.Milestone{}, err
	}
	m.CreatedAt = fromMillis(createdAt)
	m.CompletedAt = fromNullMillis(completedAt)
	return m, nil
}

// ListMilestones returns a goal's milestones ordered by sequence.
func (s *SQLiteStore) ListMilestones(ctx context.Context, goalID string) ([]domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE goal_id = ? ORDER BY sequence, rowid`
	rows, err := s.db.QueryContext(ctx, query, goalID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer closeRows(rows)

	var out []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return out, nil
}

// GetMilestone returns a milestone by ID.
func (s *SQLiteStore) GetMilestone(ctx context.Context, milestoneID string) (*domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE id = ?`
	m, err := scanMilestone(s.db.QueryRowContext(ctx, query, milestoneID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get milestone: %w", err)
	}
	return &m, nil
}

const actionColumns = `id, milestone_id, title, description, status, created_at, completed_at`

func scanAction(row rowScanner) (domain.Action, error) {
	var a domain.Action
	var createdAt int64
	var completedAt sql.NullInt64
	err := row.Scan(&a.ID, &a.MilestoneID, &a.Title, &a.Description, &a.Status, &createdAt, &completedAt)
	if err != nil {
		return domain.Action{}, err
	}
	a.CreatedAt = fromMillis(createdAt)
	a.CompletedAt = fromNullMillis(completedAt)
	return a, nil
}

// ListActions returns a milestone's actions, oldest first.
func (s *SQLiteStore) ListActions(ctx context.Context, milestoneID string, status domain.ActionStatus) ([]domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE milestone_id = ?`
	args := []any{milestoneID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer closeRows(rows)

	var out []domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return out, nil
}

// CountActions counts a milestone's actions.
func (s *SQLiteStore) CountActions(ctx context.Context, milestoneID string, status domain.ActionStatus) (int, error) {
	query := `SELECT COUNT(*) FROM actions WHERE milestone_id = ?`
	args := []any{milestoneID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}

// GetAction returns an action by ID.
func (s *SQLiteStore) GetAction(ctx context.Context, actionID string) (*domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = ?`
	a, err := scanAction(s.db.QueryRowContext(ctx, query, actionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return &a, nil
}

// UpdateActionStatus sets an action's status.
func (s *SQLiteStore) UpdateActionStatus(ctx context.Context, actionID string, status domain.ActionStatus, at time.Time) error {
	var completedAt any
	if status == domain.ActionCompleted {
		completedAt = toMillis(at)
	}
	return s.execOne(ctx, "update action status",
		`UPDATE actions SET status = ?, completed_at = ? WHERE id = ?`, status, completedAt, actionID)
}

// UpdateMilestoneStatus sets a milestone's status.
func (s *SQLiteStore) UpdateMilestoneStatus(ctx context.Context, milestoneID string, status domain.MilestoneStatus, at time.Time) error {
	var completedAt any
	if status == domain.MilestoneCompleted {
		completedAt = toMillis(at)
	}
	return s.execOne(ctx, "update milestone status",
		`UPDATE milestones SET status = ?, completed_at = ? WHERE id = ?`, status, completedAt, milestoneID)
}

// UpdateGoalStatus sets a goal's status.
func (s *SQLiteStore) UpdateGoalStatus(ctx context.Context, goalID string, status domain.GoalStatus, at time.Time) error {
	var completedAt any
	if status == domain.GoalCompleted {
		completedAt = toMillis(at)
	}
	return s.execOne(ctx, "update goal status",
		`UPDATE goals SET status = ?, completed_at = ? WHERE id = ?`, status, completedAt, goalID)
}

// execOne runs a single-row update with busy retries and reports ErrNotFound when
// nothing matched.
func (s *SQLiteStore) execOne(ctx context.Context, op, query string, args ...any) error {
	return shared.RetryOnConflict(ctx, op, retryAttempts, retryBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil
	})
}

// CreatePlan stores a goal with its milestones and actions in one transaction.
// Milestones without a sequence are numbered in slice order. Actions reference
// milestones by ID, so callers generating IDs up front keep the two lists linked.
func (s *SQLiteStore) CreatePlan(ctx context.Context, goal *domain.Goal, milestones []domain.Milestone, actions []domain.Action) error {
	now := s.now()
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.Status == "" {
		goal.Status = domain.GoalActive
	}
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin plan tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, title, main_goal, status, deleted, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.UserID, goal.Title, goal.MainGoal, goal.Status, goal.Deleted,
		toMillis(goal.CreatedAt), nullMillis(goal.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}

	for i := range milestones {
		m := &milestones[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.GoalID = goal.ID
		if m.Sequence == 0 {
			m.Sequence = i + 1
		}
		if m.Status == "" {
			m.Status = domain.MilestonePending
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO milestones (id, goal_id, title, description, sequence, status, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.GoalID, m.Title, m.Description, m.Sequence, m.Status,
			toMillis(m.CreatedAt), nullMillis(m.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("insert milestone: %w", err)
		}
	}

	for i := range actions {
		a := &actions[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Status == "" {
			a.Status = domain.ActionPending
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO actions (id, milestone_id, title, description, status, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.MilestoneID, a.Title, a.Description, a.Status,
			toMillis(a.CreatedAt), nullMillis(a.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("insert action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plan: %w", err)
	}
	return nil
}
