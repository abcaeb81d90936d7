package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/identity"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

// GetPlan returns the plan snapshot of a goal: ?goal_id= when given, otherwise
// the goal the conversation is focused on, otherwise the newest active goal.
// It never moves the conversation focus.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := r.Context()

	goal, err := h.pickGoal(ctx, userID, r.URL.Query().Get("goal_id"))
	if err != nil {
		slog.Error("Failed to pick goal", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load plan")
		return
	}
	if goal == nil {
		Error(w, http.StatusNotFound, "goal not found")
		return
	}

	pc, err := h.resolver.Load(ctx, *goal)
	if err != nil {
		slog.Error("Failed to load plan", "error", err, "goal_id", goal.ID)
		Error(w, http.StatusInternalServerError, "failed to load plan")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"plan":    pc,
		"percent": pc.Counters.Percent(),
	})
}

func (h *Handler) pickGoal(ctx context.Context, userID, goalID string) (*domain.Goal, error) {
	if goalID != "" {
		return h.repo.GetGoal(ctx, userID, goalID)
	}
	sess, err := h.repo.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.GoalID != "" {
		goal, err := h.repo.GetGoal(ctx, userID, sess.GoalID)
		if err != nil || goal != nil {
			return goal, err
		}
	}
	goals, err := h.repo.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range goals {
		if goals[i].IsActive() {
			return &goals[i], nil
		}
	}
	if len(goals) > 0 {
		return &goals[0], nil
	}
	return nil, nil
}

// CreateGoalRequest imports a goal with its milestones and actions.
type CreateGoalRequest struct {
	Title      string                   `json:"title"`
	MainGoal   string                   `json:"main_goal"`
	Milestones []CreateMilestoneRequest `json:"milestones"`
}

// CreateMilestoneRequest is one milestone of an imported plan, in order.
type CreateMilestoneRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Actions     []CreateActionRequest `json:"actions"`
}

// CreateActionRequest is one action of an imported milestone, in order.
type CreateActionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (req CreateGoalRequest) validate() error {
	if strings.TrimSpace(req.Title) == "" {
		return errors.New("title is required")
	}
	for _, m := range req.Milestones {
		if strings.TrimSpace(m.Title) == "" {
			return errors.New("milestone title is required")
		}
		for _, a := range m.Actions {
			if strings.TrimSpace(a.Title) == "" {
				return errors.New("action title is required")
			}
		}
	}
	return nil
}

const maxPlanBodySize = 256 << 10

// CreateGoal handles POST /api/goals. Plans are authored elsewhere; this only
// stores them.
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPlanBodySize)
	var req CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	goal := domain.Goal{UserID: userID, Title: req.Title, MainGoal: req.MainGoal}
	var milestones []domain.Milestone
	var actions []domain.Action
	for i, mr := range req.Milestones {
		m := domain.Milestone{ID: uuid.NewString(), Title: mr.Title, Description: mr.Description, Sequence: i + 1}
		milestones = append(milestones, m)
		for _, ar := range mr.Actions {
			actions = append(actions, domain.Action{MilestoneID: m.ID, Title: ar.Title, Description: ar.Description})
		}
	}

	if err := h.repo.CreatePlan(r.Context(), &goal, milestones, actions); err != nil {
		slog.Error("Failed to create plan", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to create goal")
		return
	}
	slog.Info("Plan imported", "user_id", userID, "goal_id", goal.ID,
		"milestones", len(milestones), "actions", len(actions))
	JSON(w, http.StatusCreated, map[string]interface{}{
		"goal_id":    goal.ID,
		"milestones": len(milestones),
		"actions":    len(actions),
	})
}

// CompleteMilestone handles POST /api/milestones/{milestoneID}/complete.
func (h *Handler) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := r.Context()
	milestoneID := chi.URLParam(r, "milestoneID")

	res, err := h.cascade.ForceCompleteMilestone(ctx, userID, milestoneID)
	// Someone else's milestone looks the same as a missing one.
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "milestone not found")
		return
	}
	if err != nil {
		slog.Error("Failed to force-complete milestone", "error", err, "milestone_id", milestoneID)
		Error(w, http.StatusInternalServerError, "failed to complete milestone")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"milestone_id":   milestoneID,
		"actions_closed": res.ActionsClosed,
		"goal_completed": res.GoalCompleted,
	})
}
