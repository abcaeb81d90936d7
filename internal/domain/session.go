package domain

import (
	"time"
)

// SessionStatus describes what the conversation is focused on.
// The empty status means the user is working on the action in focus.
type SessionStatus string

const (
	SessionInProgress SessionStatus = ""
	SessionNone       SessionStatus = "none"
	SessionNoPlan     SessionStatus = "no_plan"
	SessionCompleted  SessionStatus = "completed"
)

// PendingCompletion is the confirmation slot awaiting a yes/no from the user.
type PendingCompletion struct {
	GoalID   string `json:"goalId"`
	ActionID string `json:"actionId"`
}

// Matches reports whether the slot refers to the given goal and action.
func (p *PendingCompletion) Matches(goalID, actionID string) bool {
	return p != nil && actionID != "" && p.GoalID == goalID && p.ActionID == actionID
}

// ConversationSession is the small JSON blob of conversational state attached to a
// user record. It is read and written as a whole; partial updates go through Merge.
type ConversationSession struct {
	GoalID            string             `json:"goalId,omitempty"`
	MilestoneID       string             `json:"milestoneId,omitempty"`
	ActionID          string             `json:"actionId,omitempty"`
	Status            SessionStatus      `json:"status,omitempty"`
	PendingCompletion *PendingCompletion `json:"pendingCompletion,omitempty"`
	ActionSince       time.Time          `json:"actionSince,omitzero"`
	LastUpdated       time.Time          `json:"lastUpdated,omitzero"`
	Version           int                `json:"version,omitempty"`
}

// HasPendingFor reports whether a confirmation is pending for exactly this action.
func (s ConversationSession) HasPendingFor(goalID, actionID string) bool {
	return s.PendingCompletion.Matches(goalID, actionID)
}

// SessionField names a ConversationSession attribute that a patch can delete.
type SessionField string

const (
	FieldGoalID            SessionField = "goalId"
	FieldMilestoneID       SessionField = "milestoneId"
	FieldActionID          SessionField = "actionId"
	FieldStatus            SessionField = "status"
	FieldPendingCompletion SessionField = "pendingCompletion"
	FieldActionSince       SessionField = "actionSince"
)

// SessionPatch is a partial update. Nil fields are left untouched; fields listed in
// Clear are deleted from the blob. Clears apply before sets.
type SessionPatch struct {
	GoalID            *string
	MilestoneID       *string
	ActionID          *string
	Status            *SessionStatus
	PendingCompletion *PendingCompletion
	ActionSince       *time.Time
	Clear             []SessionField
	// IfVersion, when non-zero, applies the patch only if the stored session is
	// still at that version.
	IfVersion int
}

// Accepts reports whether p's version precondition holds against s.
func (s ConversationSession) Accepts(p SessionPatch) bool {
	return p.IfVersion == 0 || p.IfVersion == s.Version
}

// IsEmpty reports whether applying the patch would change nothing but the timestamp.
func (p SessionPatch) IsEmpty() bool {
	return p.GoalID == nil && p.MilestoneID == nil && p.ActionID == nil &&
		p.Status == nil && p.PendingCompletion == nil && p.ActionSince == nil &&
		len(p.Clear) == 0
}

// Merge applies p to s and stamps the result with now and a bumped version.
func (s ConversationSession) Merge(p SessionPatch, now time.Time) ConversationSession {
	out := s
	for _, f := range p.Clear {
		switch f {
		case FieldGoalID:
			out.GoalID = ""
		case FieldMilestoneID:
			out.MilestoneID = ""
		case FieldActionID:
			out.ActionID = ""
		case FieldStatus:
			out.Status = SessionInProgress
		case FieldPendingCompletion:
			out.PendingCompletion = nil
		case FieldActionSince:
			out.ActionSince = time.Time{}
		}
	}
	if p.GoalID != nil {
		out.GoalID = *p.GoalID
	}
	if p.MilestoneID != nil {
		out.MilestoneID = *p.MilestoneID
	}
	if p.ActionID != nil {
		out.ActionID = *p.ActionID
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.PendingCompletion != nil {
		pc := *p.PendingCompletion
		out.PendingCompletion = &pc
	}
	if p.ActionSince != nil {
		out.ActionSince = *p.ActionSince
	}
	out.LastUpdated = now
	out.Version = s.Version + 1
	return out
}

// FocusPatch moves the session pointer onto an action. When the action differs from
// the one already in focus, ActionSince restarts at since.
func (s ConversationSession) FocusPatch(goalID, milestoneID, actionID string, since time.Time) SessionPatch {
	p := SessionPatch{
		GoalID:      &goalID,
		MilestoneID: &milestoneID,
		ActionID:    &actionID,
		Clear:       []SessionField{FieldStatus},
	}
	if s.ActionID != actionID || s.ActionSince.IsZero() {
		p.ActionSince = &since
	}
	return p
}

// StatusPatch parks the session in a non-action status, dropping the pointer and any
// pending confirmation. goalID may be empty.
func StatusPatch(status SessionStatus, goalID string) SessionPatch {
	p := SessionPatch{
		Status: &status,
		Clear:  []SessionField{FieldMilestoneID, FieldActionID, FieldPendingCompletion, FieldActionSince},
	}
	if goalID != "" {
		p.GoalID = &goalID
	} else {
		p.Clear = append(p.Clear, FieldGoalID)
	}
	return p
}

// IsNoop reports whether applying p to s would leave every field unchanged.
func (s ConversationSession) IsNoop(p SessionPatch) bool {
	merged := s.Merge(p, s.LastUpdated)
	merged.Version = s.Version
	return sessionEqual(s, merged)
}

func sessionEqual(a, b ConversationSession) bool {
	if a.GoalID != b.GoalID || a.MilestoneID != b.MilestoneID || a.ActionID != b.ActionID ||
		a.Status != b.Status || !a.ActionSince.Equal(b.ActionSince) {
		return false
	}
	if (a.PendingCompletion == nil) != (b.PendingCompletion == nil) {
		return false
	}
	return a.PendingCompletion == nil || *a.PendingCompletion == *b.PendingCompletion
}
