// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

var (
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrSessionChanged is returned when a patch's IfVersion no longer matches.
	ErrSessionChanged = errors.New("session changed")
)

// UserStore persists the host user records sessions are attached to.
type UserStore interface {
	// GetUser retrieves a user by ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// ListUserIDs returns every known user ID.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SessionStore reads and writes the conversation session blob of a user.
type SessionStore interface {
	// GetSession returns the stored session, or the zero session when none exists.
	GetSession(ctx context.Context, userID string) (domain.ConversationSession, error)

	// UpdateSession merges patch into the stored session (read-modify-write,
	// last writer wins) and returns the result. A patch whose IfVersion does not
	// match fails with ErrSessionChanged and writes nothing.
	UpdateSession(ctx context.Context, userID string, patch domain.SessionPatch) (domain.ConversationSession, error)
}

// PlanRepository gives the engine access to goals, milestones, actions and the
// progress records derived from them.
type PlanRepository interface {
	// GetGoal returns a non-deleted goal owned by userID, or nil, nil.
	GetGoal(ctx context.Context, userID, goalID string) (*domain.Goal, error)

	// ListGoals returns the user's non-deleted goals, newest first.
	ListGoals(ctx context.Context, userID string) ([]domain.Goal, error)

	// ListMilestones returns a goal's milestones ordered by sequence.
	ListMilestones(ctx context.Context, goalID string) ([]domain.Milestone, error)

	// GetMilestone returns a milestone, or nil, nil.
	GetMilestone(ctx context.Context, milestoneID string) (*domain.Milestone, error)

	// ListActions returns a milestone's actions, oldest first. An empty status lists all.
	ListActions(ctx context.Context, milestoneID string, status domain.ActionStatus) ([]domain.Action, error)

	// CountActions counts a milestone's actions. An empty status counts all.
	CountActions(ctx context.Context, milestoneID string, status domain.ActionStatus) (int, error)

	// GetAction returns an action, or nil, nil.
	GetAction(ctx context.Context, actionID string) (*domain.Action, error)

	// UpdateActionStatus sets an action's status. at is stored as the completion
	// time for completed actions and ignored otherwise.
	UpdateActionStatus(ctx context.Context, actionID string, status domain.ActionStatus, at time.Time) error

	// UpdateMilestoneStatus sets a milestone's status, stamping completion time.
	UpdateMilestoneStatus(ctx context.Context, milestoneID string, status domain.MilestoneStatus, at time.Time) error

	// UpdateGoalStatus sets a goal's status, stamping completion time.
	UpdateGoalStatus(ctx context.Context, goalID string, status domain.GoalStatus, at time.Time) error

	// CreatePlan stores a goal with its milestones and actions in one transaction.
	// Empty IDs are generated.
	CreatePlan(ctx context.Context, goal *domain.Goal, milestones []domain.Milestone, actions []domain.Action) error

	// AppendProgressEvent appends an immutable progress event.
	AppendProgressEvent(ctx context.Context, event *domain.ProgressEvent) error

	// ListProgressEvents lists a user's events in creation order. An empty goalID lists all.
	ListProgressEvents(ctx context.Context, userID, goalID string) ([]domain.ProgressEvent, error)

	// GetUserProgressState returns the user's progress state, or nil, nil.
	GetUserProgressState(ctx context.Context, userID string) (*domain.UserProgressState, error)

	// UpdateUserProgressState creates or replaces the user's progress state.
	UpdateUserProgressState(ctx context.Context, state *domain.UserProgressState) error

	// ListProgressUsers returns the users that have a progress state.
	ListProgressUsers(ctx context.Context) ([]string, error)
}

// MessageLog persists the mentor conversation.
type MessageLog interface {
	// AppendMessage appends a message, generating its ID when empty.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// GetRecentMessages returns up to limit messages of a goal's conversation,
	// newest first. The empty goalID is the goalless onboarding thread.
	GetRecentMessages(ctx context.Context, userID, goalID string, limit int) ([]domain.Message, error)

	// CountUserMessages counts user-authored messages in a goal's conversation
	// created at or after since.
	CountUserMessages(ctx context.Context, userID, goalID string, since time.Time) (int, error)
}

// Repository is the full persistence surface backed by one database.
type Repository interface {
	UserStore
	SessionStore
	PlanRepository
	MessageLog

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
