package domain

import (
	"time"
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalArchived  GoalStatus = "archived"
)

// MilestoneStatus is the lifecycle state of a milestone.
type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

// ActionStatus is the lifecycle state of an action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionCompleted ActionStatus = "completed"
)

// Goal is a user's top-level objective.
type Goal struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	MainGoal    string     `json:"main_goal"`
	Status      GoalStatus `json:"status"`
	Deleted     bool       `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsActive reports whether the goal counts toward the active-goal average.
func (g *Goal) IsActive() bool {
	return !g.Deleted && g.Status == GoalActive
}

// Milestone is an ordered checkpoint within a goal.
type Milestone struct {
	ID          string          `json:"id"`
	GoalID      string          `json:"goal_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Sequence    int             `json:"sequence"`
	Status      MilestoneStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Action is the smallest unit of work in a plan.
type Action struct {
	ID          string       `json:"id"`
	MilestoneID string       `json:"milestone_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      ActionStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// IsPending reports whether the action still needs doing.
func (a *Action) IsPending() bool {
	return a.Status == ActionPending
}
