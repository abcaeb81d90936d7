package plan

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

// GoalCounts sums completed and total actions over every milestone of a goal.
func GoalCounts(ctx context.Context, plans store.PlanRepository, goalID string) (progress.GoalCounts, error) {
	milestones, err := plans.ListMilestones(ctx, goalID)
	if err != nil {
		return progress.GoalCounts{}, fmt.Errorf("list milestones: %w", err)
	}

	totals := make([]int, len(milestones))
	done := make([]int, len(milestones))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i, m := range milestones {
		g.Go(func() error {
			n, err := plans.CountActions(gctx, m.ID, "")
			if err != nil {
				return fmt.Errorf("count actions: %w", err)
			}
			c, err := plans.CountActions(gctx, m.ID, domain.ActionCompleted)
			if err != nil {
				return fmt.Errorf("count completed actions: %w", err)
			}
			totals[i], done[i] = n, c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return progress.GoalCounts{}, err
	}

	out := progress.GoalCounts{GoalID: goalID}
	for i := range milestones {
		out.Total += totals[i]
		out.Completed += done[i]
	}
	return out, nil
}

// ActiveGoalCounts returns GoalCounts for each active, non-deleted goal of a user.
func ActiveGoalCounts(ctx context.Context, plans store.PlanRepository, userID string) ([]progress.GoalCounts, error) {
	goals, err := plans.ListGoals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	var out []progress.GoalCounts
	for _, g := range goals {
		if !g.IsActive() {
			continue
		}
		c, err := GoalCounts(ctx, plans, g.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AverageActiveCompletion is the mean completion percentage of a user's active goals.
func AverageActiveCompletion(ctx context.Context, plans store.PlanRepository, userID string) (int, error) {
	counts, err := ActiveGoalCounts(ctx, plans, userID)
	if err != nil {
		return 0, err
	}
	return progress.AverageCompletion(counts), nil
}
