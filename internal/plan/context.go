// Package plan resolves which goal, milestone and action a conversation is focused on.
package plan

import (
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
)

// State tells the caller whether a turn has an action to work on.
type State int

const (
	// StateReady means a goal with a current pending action was found.
	StateReady State = iota
	// StateNoGoals means the user has not defined any goal yet.
	StateNoGoals
	// StateGoalsWithoutPlans means goals exist but none has milestones.
	StateGoalsWithoutPlans
	// StatePlanComplete means the selected goal has no pending action left.
	StatePlanComplete
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateNoGoals:
		return "no_goals"
	case StateGoalsWithoutPlans:
		return "goals_without_plans"
	case StatePlanComplete:
		return "plan_complete"
	default:
		return "unknown"
	}
}

// Counters aggregates completion over every milestone of a goal.
type Counters struct {
	MilestonesCompleted int `json:"milestones_completed"`
	TotalMilestones     int `json:"total_milestones"`
	ActionsCompleted    int `json:"actions_completed"`
	TotalActions        int `json:"total_actions"`
}

// Percent is the goal's action completion percentage.
func (c Counters) Percent() int {
	return progress.CompletionPercent(c.ActionsCompleted, c.TotalActions)
}

// MilestoneProgress is the per-milestone slice of Counters.
type MilestoneProgress struct {
	Milestone domain.Milestone `json:"milestone"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
}

// Context is the plan snapshot of one turn. It is rebuilt on every turn.
type Context struct {
	Goal             domain.Goal         `json:"goal"`
	Milestones       []MilestoneProgress `json:"milestones"`
	CurrentMilestone *domain.Milestone   `json:"current_milestone,omitempty"`
	CurrentAction    *domain.Action      `json:"current_action,omitempty"`
	Counters         Counters            `json:"counters"`
}

// HasAction reports whether there is something left to do.
func (c *Context) HasAction() bool {
	return c != nil && c.CurrentAction != nil
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	State State
	// Context is set for StateReady and StatePlanComplete.
	Context *Context
	// Goals lists the plan-less goals for StateGoalsWithoutPlans.
	Goals []domain.Goal
	// Session is the conversation session after the pointer was persisted.
	Session domain.ConversationSession
}

// GoalID returns the resolved goal, or "" for goalless states.
func (r Resolution) GoalID() string {
	if r.Context == nil {
		return ""
	}
	return r.Context.Goal.ID
}
