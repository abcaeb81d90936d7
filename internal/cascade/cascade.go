// Package cascade applies a confirmed action completion to the plan, the progress
// log and the user's gamification state.
//
// Each step reads the state it needs back from the store, so a cascade interrupted
// half-way converges when the next turn re-resolves the plan.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/plan"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/stage"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

// Rewards are the fixed points granted per event kind.
type Rewards struct {
	Action    int
	Milestone int
	Goal      int
}

// DefaultRewards returns the standard point table.
func DefaultRewards() Rewards {
	return Rewards{Action: 10, Milestone: 25, Goal: 100}
}

// Outcome reports what a cascade did.
type Outcome struct {
	ActionID           string                 `json:"action_id"`
	Events             []domain.ProgressEvent `json:"events"`
	PointsEarned       int                    `json:"points_earned"`
	MilestoneCompleted bool                   `json:"milestone_completed"`
	GoalCompleted      bool                   `json:"goal_completed"`
	NextMilestone      *domain.Milestone      `json:"next_milestone,omitempty"`
	NextAction         *domain.Action         `json:"next_action,omitempty"`
	// Counters are recomputed after the completion.
	Counters plan.Counters               `json:"counters"`
	Percent  int                         `json:"percent"`
	Tone     progress.Tone               `json:"tone"`
	Avatar   domain.AvatarStageThreshold `json:"avatar"`
	Streak   int                         `json:"streak"`
	// Messages are the follow-up assistant messages appended to the conversation.
	Messages []domain.Message `json:"-"`
	// Guidance is the system prompt for the celebratory reply.
	Guidance string `json:"-"`
	// Aborted is set when plan advancement was skipped because the action or its
	// plan vanished.
	Aborted bool `json:"aborted,omitempty"`
}

// Cascade runs completion cascades.
type Cascade struct {
	plans      store.PlanRepository
	sessions   store.SessionStore
	messages   store.MessageLog
	resolver   *plan.Resolver
	rewards    Rewards
	thresholds []domain.AvatarStageThreshold
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithRewards overrides the point table.
func WithRewards(r Rewards) Option {
	return func(c *Cascade) { c.rewards = r }
}

// WithThresholds overrides the avatar threshold table.
func WithThresholds(t []domain.AvatarStageThreshold) Option {
	return func(c *Cascade) {
		if len(t) > 0 {
			c.thresholds = t
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cascade) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cascade) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cascade.
func New(plans store.PlanRepository, sessions store.SessionStore, messages store.MessageLog, opts ...Option) *Cascade {
	c := &Cascade{
		plans:      plans,
		sessions:   sessions,
		messages:   messages,
		rewards:    DefaultRewards(),
		thresholds: progress.DefaultThresholds(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = plan.NewResolver(plans, sessions, c.logger)
	return c
}

// Rewards returns the configured point table.
func (c *Cascade) Rewards() Rewards {
	return c.rewards
}

// CompleteAction marks actionID completed and cascades the consequences. Only
// failures to read or write plan status are returned; event and message write
// failures are logged and the cascade continues.
func (c *Cascade) CompleteAction(ctx context.Context, userID, goalID, actionID string) (Outcome, error) {
	out := Outcome{ActionID: actionID}
	now := c.now()
	log := c.logger.With("user_id", userID, "goal_id", goalID, "action_id", actionID)

	action, err := c.plans.GetAction(ctx, actionID)
	if err != nil {
		return out, fmt.Errorf("get action: %w", err)
	}
	if action == nil {
		log.Warn("cascade aborted: action no longer exists")
		out.Aborted = true
		return out, nil
	}
	if !action.IsPending() {
		log.Info("cascade skipped: action already completed")
		out.Aborted = true
		return out, nil
	}
	milestone, err := c.plans.GetMilestone(ctx, action.MilestoneID)
	if err != nil {
		return out, fmt.Errorf("get milestone: %w", err)
	}
	goal, err := c.plans.GetGoal(ctx, userID, goalID)
	if err != nil {
		return out, fmt.Errorf("get goal: %w", err)
	}
	if milestone == nil || goal == nil || milestone.GoalID != goal.ID {
		log.Warn("cascade aborted: plan context missing")
		out.Aborted = true
		return out, nil
	}

	// Step 1: the action and its milestone.
	if err := c.plans.UpdateActionStatus(ctx, action.ID, domain.ActionCompleted, now); err != nil {
		return out, fmt.Errorf("complete action: %w", err)
	}
	c.record(ctx, &out, log, domain.ProgressEvent{
		UserID: userID, GoalID: goal.ID, MilestoneID: milestone.ID, ActionID: action.ID,
		Kind: domain.EventAction, Points: c.rewards.Action, CreatedAt: now,
	})

	completed, err := c.advanceMilestone(ctx, milestone, now)
	if err != nil {
		return out, err
	}
	if completed {
		out.MilestoneCompleted = true
		c.record(ctx, &out, log, domain.ProgressEvent{
			UserID: userID, GoalID: goal.ID, MilestoneID: milestone.ID,
			Kind: domain.EventMilestone, Points: c.rewards.Milestone, CreatedAt: now,
		})
	}

	state, err := c.loadState(ctx, userID)
	if err != nil {
		return out, err
	}

	// Step 2: streak.
	out.Streak = progress.NextStreak(now, state.LastActivityDate, state.ConsistencyStreak)
	today := progress.StartOfDay(now)
	state.ConsistencyStreak = out.Streak
	state.LastActivityDate = &today

	// Step 4: avatar from the average of active goals, this one still included.
	avg, err := plan.AverageActiveCompletion(ctx, c.plans, userID)
	if err != nil {
		return out, fmt.Errorf("average completion: %w", err)
	}
	out.Avatar = progress.AvatarFor(avg, c.thresholds)
	state.AvatarLevel = out.Avatar.Level
	state.AvatarStage = out.Avatar.StageName

	// Step 5: move on, or close the goal.
	pc, err := c.resolver.Load(ctx, *goal)
	if err != nil {
		return out, fmt.Errorf("reload plan: %w", err)
	}
	out.Counters = pc.Counters
	if pc.HasAction() {
		out.NextMilestone = pc.CurrentMilestone
		out.NextAction = pc.CurrentAction
		c.moveTo(ctx, &out, log, userID, goal.ID, pc, now)
	} else {
		c.completeGoal(ctx, &out, log, userID, goal, now)
	}

	// Step 3: points, applied once with everything earned above.
	state.TotalProgress += out.PointsEarned
	state.UpdatedAt = now
	if err := c.plans.UpdateUserProgressState(ctx, state); err != nil {
		log.Error("failed to update progress state", "error", err)
	}

	// Step 6: tone from the recomputed percentage.
	out.Percent = pc.Counters.Percent()
	out.Tone = progress.ToneFor(out.Percent)
	gc := stage.GuidanceContext{
		GoalTitle:           goal.Title,
		MainGoal:            goal.MainGoal,
		ActionsCompleted:    pc.Counters.ActionsCompleted,
		TotalActions:        pc.Counters.TotalActions,
		MilestonesCompleted: pc.Counters.MilestonesCompleted,
		TotalMilestones:     pc.Counters.TotalMilestones,
		Percent:             out.Percent,
		Tone:                out.Tone,
		MilestoneCompleted:  out.MilestoneCompleted,
		GoalCompleted:       out.GoalCompleted,
	}
	if out.NextAction != nil {
		gc.NextActionTitle = out.NextAction.Title
		gc.NextMilestoneTitle = out.NextMilestone.Title
		gc.MilestoneTitle = out.NextMilestone.Title
		gc.ActionTitle = out.NextAction.Title
	}
	out.Guidance = stage.Guidance(stage.TemplateCompletion, gc)

	log.Info("action completed",
		"points", out.PointsEarned,
		"milestone_completed", out.MilestoneCompleted,
		"goal_completed", out.GoalCompleted,
		"percent", out.Percent,
		"avatar_level", out.Avatar.Level,
		"streak", out.Streak,
	)
	return out, nil
}

// advanceMilestone moves a milestone pending -> in_progress on its first completed
// action and -> completed on its last. It reports whether this call completed it.
func (c *Cascade) advanceMilestone(ctx context.Context, m *domain.Milestone, now time.Time) (bool, error) {
	if m.Status == domain.MilestoneCompleted {
		return false, nil
	}
	total, err := c.plans.CountActions(ctx, m.ID, "")
	if err != nil {
		return false, fmt.Errorf("count milestone actions: %w", err)
	}
	done, err := c.plans.CountActions(ctx, m.ID, domain.ActionCompleted)
	if err != nil {
		return false, fmt.Errorf("count completed milestone actions: %w", err)
	}

	switch {
	case total > 0 && done >= total:
		if err := c.plans.UpdateMilestoneStatus(ctx, m.ID, domain.MilestoneCompleted, now); err != nil {
			return false, fmt.Errorf("complete milestone: %w", err)
		}
		return true, nil
	case done > 0 && m.Status == domain.MilestonePending:
		if err := c.plans.UpdateMilestoneStatus(ctx, m.ID, domain.MilestoneInProgress, now); err != nil {
			return false, fmt.Errorf("start milestone: %w", err)
		}
	}
	return false, nil
}

func (c *Cascade) moveTo(ctx context.Context, out *Outcome, log *slog.Logger, userID, goalID string, pc *plan.Context, now time.Time) {
	patch := domain.ConversationSession{}.FocusPatch(goalID, pc.CurrentMilestone.ID, pc.CurrentAction.ID, now)
	patch.Clear = append(patch.Clear, domain.FieldPendingCompletion)
	if _, err := c.sessions.UpdateSession(ctx, userID, patch); err != nil {
		log.Error("failed to move session pointer", "error", err)
	}

	var content string
	if out.MilestoneCompleted {
		content = fmt.Sprintf("Milestone complete! Next milestone: \"%s\". Your next action is \"%s\".",
			pc.CurrentMilestone.Title, pc.CurrentAction.Title)
	} else {
		content = fmt.Sprintf("Great work! Your next action in \"%s\" is \"%s\".",
			pc.CurrentMilestone.Title, pc.CurrentAction.Title)
	}
	if pc.CurrentAction.Description != "" {
		content += " " + pc.CurrentAction.Description
	}
	c.say(ctx, out, log, userID, goalID, content, now)
}

func (c *Cascade) completeGoal(ctx context.Context, out *Outcome, log *slog.Logger, userID string, goal *domain.Goal, now time.Time) {
	out.GoalCompleted = true
	c.record(ctx, out, log, domain.ProgressEvent{
		UserID: userID, GoalID: goal.ID, Kind: domain.EventGoal, Points: c.rewards.Goal, CreatedAt: now,
	})
	if err := c.plans.UpdateGoalStatus(ctx, goal.ID, domain.GoalCompleted, now); err != nil {
		log.Error("failed to mark goal completed", "error", err)
	}
	if _, err := c.sessions.UpdateSession(ctx, userID, domain.StatusPatch(domain.SessionCompleted, goal.ID)); err != nil {
		log.Error("failed to park session", "error", err)
	}
	content := fmt.Sprintf("You completed your goal \"%s\"! That's a real achievement. Ready to define your next goal?", goal.Title)
	c.say(ctx, out, log, userID, goal.ID, content, now)
}

// record appends an event; a failed write is logged and earns no points.
func (c *Cascade) record(ctx context.Context, out *Outcome, log *slog.Logger, ev domain.ProgressEvent) {
	if err := c.plans.AppendProgressEvent(ctx, &ev); err != nil {
		log.Error("failed to append progress event", "kind", ev.Kind, "error", err)
		return
	}
	out.Events = append(out.Events, ev)
	out.PointsEarned += ev.Points
}

func (c *Cascade) say(ctx context.Context, out *Outcome, log *slog.Logger, userID, goalID, content string, now time.Time) {
	msg := domain.Message{UserID: userID, GoalID: goalID, Role: domain.RoleAssistant, Content: content, CreatedAt: now}
	if err := c.messages.AppendMessage(ctx, &msg); err != nil {
		log.Error("failed to append follow-up message", "error", err)
		return
	}
	out.Messages = append(out.Messages, msg)
}

func (c *Cascade) loadState(ctx context.Context, userID string) (*domain.UserProgressState, error) {
	state, err := c.plans.GetUserProgressState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get progress state: %w", err)
	}
	if state == nil {
		state = &domain.UserProgressState{UserID: userID}
	}
	return state, nil
}

// RecordAttempt logs a zero-point attempt when the user could not do an action.
func (c *Cascade) RecordAttempt(ctx context.Context, userID, goalID, milestoneID, actionID string) {
	ev := domain.ProgressEvent{
		UserID: userID, GoalID: goalID, MilestoneID: milestoneID, ActionID: actionID,
		Kind: domain.EventAction, Points: 0, CreatedAt: c.now(),
	}
	if err := c.plans.AppendProgressEvent(ctx, &ev); err != nil {
		c.logger.Error("failed to append attempt event", "user_id", userID, "action_id", actionID, "error", err)
	}
}

// ForceResult reports what ForceCompleteMilestone changed.
type ForceResult struct {
	ActionsClosed int  `json:"actions_closed"`
	GoalCompleted bool `json:"goal_completed"`
}

// ForceCompleteMilestone completes every open action of a milestone owned by
// userID and the milestone itself. When that leaves the goal without a pending
// action the goal is closed too. No progress events are recorded on this path.
func (c *Cascade) ForceCompleteMilestone(ctx context.Context, userID, milestoneID string) (ForceResult, error) {
	var res ForceResult
	m, err := c.plans.GetMilestone(ctx, milestoneID)
	if err != nil {
		return res, fmt.Errorf("get milestone: %w", err)
	}
	if m == nil {
		return res, fmt.Errorf("milestone %s: %w", milestoneID, store.ErrNotFound)
	}
	goal, err := c.plans.GetGoal(ctx, userID, m.GoalID)
	if err != nil {
		return res, fmt.Errorf("get goal: %w", err)
	}
	if goal == nil {
		return res, fmt.Errorf("milestone %s: %w", milestoneID, store.ErrNotFound)
	}

	now := c.now()
	log := c.logger.With("user_id", userID, "goal_id", goal.ID, "milestone_id", milestoneID)
	open, err := c.plans.ListActions(ctx, milestoneID, domain.ActionPending)
	if err != nil {
		return res, fmt.Errorf("list open actions: %w", err)
	}
	for _, a := range open {
		if err := c.plans.UpdateActionStatus(ctx, a.ID, domain.ActionCompleted, now); err != nil {
			return res, fmt.Errorf("complete action %s: %w", a.ID, err)
		}
	}
	res.ActionsClosed = len(open)
	if m.Status != domain.MilestoneCompleted {
		if err := c.plans.UpdateMilestoneStatus(ctx, milestoneID, domain.MilestoneCompleted, now); err != nil {
			return res, fmt.Errorf("complete milestone: %w", err)
		}
	}

	if goal.IsActive() {
		pc, err := c.resolver.Load(ctx, *goal)
		if err != nil {
			return res, fmt.Errorf("reload plan: %w", err)
		}
		if !pc.HasAction() {
			if err := c.plans.UpdateGoalStatus(ctx, goal.ID, domain.GoalCompleted, now); err != nil {
				return res, fmt.Errorf("complete goal: %w", err)
			}
			res.GoalCompleted = true
			c.parkSession(ctx, log, userID, goal.ID)
		}
	}
	log.Info("milestone force-completed", "actions_closed", res.ActionsClosed, "goal_completed", res.GoalCompleted)
	return res, nil
}

// parkSession marks the session completed if it still points at goalID.
func (c *Cascade) parkSession(ctx context.Context, log *slog.Logger, userID, goalID string) {
	sess, err := c.sessions.GetSession(ctx, userID)
	if err != nil {
		log.Error("failed to load session", "error", err)
		return
	}
	if sess.GoalID != goalID {
		return
	}
	if _, err := c.sessions.UpdateSession(ctx, userID, domain.StatusPatch(domain.SessionCompleted, goalID)); err != nil {
		log.Error("failed to park session", "error", err)
	}
}
