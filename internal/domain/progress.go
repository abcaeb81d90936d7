package domain

import (
	"time"
)

// EventKind classifies a progress event.
type EventKind string

const (
	EventAction    EventKind = "action"
	EventMilestone EventKind = "milestone"
	EventGoal      EventKind = "goal"
)

// ProgressEvent is an immutable, append-only record of earned progress.
type ProgressEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	GoalID      string    `json:"goal_id"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	ActionID    string    `json:"action_id,omitempty"`
	Kind        EventKind `json:"kind"`
	Points      int       `json:"points"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserProgressState is the gamification state of a user. TotalProgress is a display
// counter and never drives the avatar tier.
type UserProgressState struct {
	UserID            string     `json:"user_id"`
	TotalProgress     int        `json:"total_progress"`
	ConsistencyStreak int        `json:"consistency_streak"`
	LastActivityDate  *time.Time `json:"last_activity_date,omitempty"`
	AvatarLevel       int        `json:"avatar_level"`
	AvatarStage       string     `json:"avatar_stage"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AvatarStageThreshold maps a minimum average completion percentage to a tier.
type AvatarStageThreshold struct {
	Level                int    `json:"level" yaml:"level"`
	StageName            string `json:"stage_name" yaml:"stage_name"`
	MinCompletionPercent int    `json:"min_completion_percent" yaml:"min_completion_percent"`
}
