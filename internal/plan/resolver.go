package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

// countConcurrency bounds the per-milestone count queries in flight.
const countConcurrency = 8

// Resolver loads the plan context of a turn and keeps the session pointer in sync.
type Resolver struct {
	plans    store.PlanRepository
	sessions store.SessionStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(plans store.PlanRepository, sessions store.SessionStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{plans: plans, sessions: sessions, logger: logger, now: time.Now}
}

// Resolve picks the goal for a turn, computes its plan context and persists the
// resulting pointer (or goalless status) into the session. The goal is goalID if
// it exists, else the session's goal while it is still active, else the newest
// active goal with a plan. Calling it twice without plan
// mutations yields the same result and no second write.
func (r *Resolver) Resolve(ctx context.Context, userID, goalID string) (Resolution, error) {
	sess, err := r.sessions.GetSession(ctx, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("load session: %w", err)
	}

	goal, milestones, withoutPlans, err := r.selectGoal(ctx, userID, goalID, sess.GoalID)
	if err != nil {
		return Resolution{}, err
	}

	var res Resolution
	var patch domain.SessionPatch
	switch {
	case goal == nil && len(withoutPlans) == 0:
		res.State = StateNoGoals
		patch = domain.StatusPatch(domain.SessionNone, "")
	case goal == nil:
		res.State = StateGoalsWithoutPlans
		res.Goals = withoutPlans
		patch = domain.StatusPatch(domain.SessionNoPlan, "")
	default:
		prefer := ""
		if sess.GoalID == goal.ID {
			prefer = sess.ActionID
		}
		pc, err := r.build(ctx, *goal, milestones, prefer)
		if err != nil {
			return Resolution{}, err
		}
		res.Context = pc
		if pc.HasAction() {
			res.State = StateReady
			patch = sess.FocusPatch(goal.ID, pc.CurrentMilestone.ID, pc.CurrentAction.ID, r.now())
		} else {
			res.State = StatePlanComplete
			patch = domain.StatusPatch(domain.SessionCompleted, goal.ID)
		}
	}

	if sess.IsNoop(patch) {
		res.Session = sess
		return res, nil
	}
	updated, err := r.sessions.UpdateSession(ctx, userID, patch)
	if err != nil {
		return Resolution{}, fmt.Errorf("persist session pointer: %w", err)
	}
	r.logger.Debug("session pointer moved",
		"user_id", userID,
		"state", res.State.String(),
		"goal_id", updated.GoalID,
		"action_id", updated.ActionID,
	)
	res.Session = updated
	return res, nil
}

// Load builds the plan context of a known goal without touching the session.
func (r *Resolver) Load(ctx context.Context, goal domain.Goal) (*Context, error) {
	milestones, err := r.plans.ListMilestones(ctx, goal.ID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	return r.build(ctx, goal, milestones, "")
}

// selectGoal returns the goal to work on with its milestones. When no goal has a
// plan it returns the goals found so the caller can report them.
func (r *Resolver) selectGoal(ctx context.Context, userID, goalID, sessionGoalID string) (*domain.Goal, []domain.Milestone, []domain.Goal, error) {
	if goalID != "" {
		goal, err := r.plans.GetGoal(ctx, userID, goalID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("get goal: %w", err)
		}
		if goal != nil {
			milestones, err := r.plans.ListMilestones(ctx, goal.ID)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("list milestones: %w", err)
			}
			if len(milestones) == 0 {
				return nil, nil, []domain.Goal{*goal}, nil
			}
			return goal, milestones, nil, nil
		}
		r.logger.Debug("requested goal not found, selecting automatically", "user_id", userID, "goal_id", goalID)
	}

	if sessionGoalID != "" && sessionGoalID != goalID {
		goal, err := r.plans.GetGoal(ctx, userID, sessionGoalID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("get session goal: %w", err)
		}
		if goal != nil && goal.IsActive() {
			milestones, err := r.plans.ListMilestones(ctx, goal.ID)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("list milestones: %w", err)
			}
			if len(milestones) > 0 {
				return goal, milestones, nil, nil
			}
		}
	}

	goals, err := r.plans.ListGoals(ctx, userID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list goals: %w", err)
	}
	if len(goals) == 0 {
		return nil, nil, nil, nil
	}

	for _, g := range preferActive(goals) {
		milestones, err := r.plans.ListMilestones(ctx, g.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("list milestones: %w", err)
		}
		if len(milestones) > 0 {
			goal := g
			return &goal, milestones, nil, nil
		}
	}
	return nil, nil, goals, nil
}

// preferActive keeps the newest-first order but moves active goals ahead.
func preferActive(goals []domain.Goal) []domain.Goal {
	out := make([]domain.Goal, 0, len(goals))
	for _, g := range goals {
		if g.IsActive() {
			out = append(out, g)
		}
	}
	for _, g := range goals {
		if !g.IsActive() {
			out = append(out, g)
		}
	}
	return out
}

func (r *Resolver) build(ctx context.Context, goal domain.Goal, milestones []domain.Milestone, preferActionID string) (*Context, error) {
	pc := &Context{Goal: goal, Milestones: make([]MilestoneProgress, len(milestones))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i, m := range milestones {
		pc.Milestones[i].Milestone = m
		g.Go(func() error {
			total, err := r.plans.CountActions(gctx, m.ID, "")
			if err != nil {
				return fmt.Errorf("count actions of %s: %w", m.ID, err)
			}
			done, err := r.plans.CountActions(gctx, m.ID, domain.ActionCompleted)
			if err != nil {
				return fmt.Errorf("count completed actions of %s: %w", m.ID, err)
			}
			pc.Milestones[i].Total = total
			pc.Milestones[i].Completed = done
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, mp := range pc.Milestones {
		pc.Counters.TotalMilestones++
		pc.Counters.TotalActions += mp.Total
		pc.Counters.ActionsCompleted += mp.Completed
		if mp.Milestone.Status == domain.MilestoneCompleted {
			pc.Counters.MilestonesCompleted++
		}
	}

	if preferActionID != "" {
		ok, err := r.resume(ctx, pc, preferActionID)
		if err != nil {
			return nil, err
		}
		if ok {
			return pc, nil
		}
	}

	for i := range pc.Milestones {
		mp := pc.Milestones[i]
		if mp.Completed >= mp.Total {
			continue
		}
		pending, err := r.plans.ListActions(ctx, mp.Milestone.ID, domain.ActionPending)
		if err != nil {
			return nil, fmt.Errorf("list pending actions: %w", err)
		}
		if len(pending) == 0 {
			continue
		}
		milestone := mp.Milestone
		action := pending[0]
		pc.CurrentMilestone = &milestone
		pc.CurrentAction = &action
		break
	}
	return pc, nil
}

// resume keeps a still-pending action of this goal current so the conversation
// does not jump when actions are reordered.
func (r *Resolver) resume(ctx context.Context, pc *Context, actionID string) (bool, error) {
	action, err := r.plans.GetAction(ctx, actionID)
	if err != nil {
		return false, fmt.Errorf("get session action: %w", err)
	}
	if action == nil || !action.IsPending() {
		return false, nil
	}
	for _, mp := range pc.Milestones {
		if mp.Milestone.ID == action.MilestoneID {
			milestone := mp.Milestone
			pc.CurrentMilestone = &milestone
			pc.CurrentAction = action
			return true, nil
		}
	}
	return false, nil
}
