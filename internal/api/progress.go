package api

import (
	"log/slog"
	"net/http"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/identity"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/plan"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
)

// GoalProgress is one goal's completion in the progress response.
type GoalProgress struct {
	GoalID    string            `json:"goal_id"`
	Title     string            `json:"title"`
	Status    domain.GoalStatus `json:"status"`
	Completed int               `json:"actions_completed"`
	Total     int               `json:"total_actions"`
	Percent   int               `json:"percent"`
	Tone      progress.Tone     `json:"tone"`
}

// ProgressResponse is the body of GET /api/progress.
type ProgressResponse struct {
	State             domain.UserProgressState    `json:"state"`
	AverageCompletion int                         `json:"average_completion"`
	Avatar            domain.AvatarStageThreshold `json:"avatar"`
	Goals             []GoalProgress              `json:"goals"`
}

// GetProgress returns the user's gamification state with per-goal completion.
// The avatar shown is derived from the live average, not the stored tier.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := r.Context()

	state, err := h.repo.GetUserProgressState(ctx, userID)
	if err != nil {
		slog.Error("Failed to load progress state", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	if state == nil {
		state = &domain.UserProgressState{UserID: userID}
	}

	goals, err := h.repo.ListGoals(ctx, userID)
	if err != nil {
		slog.Error("Failed to list goals", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}

	resp := ProgressResponse{State: *state, Goals: make([]GoalProgress, 0, len(goals))}
	var active []progress.GoalCounts
	for _, g := range goals {
		counts, err := plan.GoalCounts(ctx, h.repo, g.ID)
		if err != nil {
			slog.Error("Failed to count goal actions", "error", err, "goal_id", g.ID)
			Error(w, http.StatusInternalServerError, "failed to load progress")
			return
		}
		pct := progress.CompletionPercent(counts.Completed, counts.Total)
		resp.Goals = append(resp.Goals, GoalProgress{
			GoalID:    g.ID,
			Title:     g.Title,
			Status:    g.Status,
			Completed: counts.Completed,
			Total:     counts.Total,
			Percent:   pct,
			Tone:      progress.ToneFor(pct),
		})
		if g.IsActive() {
			active = append(active, counts)
		}
	}
	resp.AverageCompletion = progress.AverageCompletion(active)
	resp.Avatar = progress.AvatarFor(resp.AverageCompletion, h.thresholds)

	JSON(w, http.StatusOK, resp)
}
