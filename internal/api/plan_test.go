package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/cascade"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/identity"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/plan"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newRouter(repo store.Repository) http.Handler {
	h := NewHandler(repo, plan.NewResolver(repo, repo, nil), cascade.New(repo, repo, repo), nil)
	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	h.RegisterRoutes(r)
	return r
}

func do(router http.Handler, method, target, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(identity.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedPlan(t *testing.T, repo store.Repository, userID, goalID string) {
	t.Helper()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	goal := domain.Goal{ID: goalID, UserID: userID, Title: "Write a novel", CreatedAt: base}
	err := repo.CreatePlan(context.Background(), &goal,
		[]domain.Milestone{{ID: goalID + "-m1", Title: "Outline"}},
		[]domain.Action{
			{ID: goalID + "-a1", MilestoneID: goalID + "-m1", Title: "Pick a genre", CreatedAt: base},
			{ID: goalID + "-a2", MilestoneID: goalID + "-m1", Title: "Sketch characters", CreatedAt: base.Add(time.Second)},
		})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
}

func TestHealth(t *testing.T) {
	repo := newTestRepo(t)
	rec := do(newRouter(repo), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

type downRepo struct {
	store.Repository
}

func (downRepo) Ping(context.Context) error { return errors.New("disk gone") }

func TestHealthReportsDatabaseDown(t *testing.T) {
	repo := newTestRepo(t)
	rec := do(newRouter(downRepo{repo}), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCreateGoalImportsPlan(t *testing.T) {
	repo := newTestRepo(t)
	router := newRouter(repo)

	body := `{"title":"Learn Spanish","main_goal":"Hold a conversation","milestones":[
		{"title":"Basics","actions":[{"title":"Learn greetings"},{"title":"Learn numbers"}]},
		{"title":"Talk","actions":[{"title":"Book a tutor"}]}]}`
	rec := do(router, http.MethodPost, "/api/goals", "u1", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		GoalID  string `json:"goal_id"`
		Actions int    `json:"actions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Actions != 3 {
		t.Fatalf("expected 3 actions, got %d", created.Actions)
	}

	ms, err := repo.ListMilestones(context.Background(), created.GoalID)
	if err != nil {
		t.Fatalf("list milestones: %v", err)
	}
	if len(ms) != 2 || ms[0].Title != "Basics" || ms[1].Sequence != 2 {
		t.Fatalf("unexpected milestones: %+v", ms)
	}
	actions, err := repo.ListActions(context.Background(), ms[0].ID, "")
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(actions) != 2 || actions[0].Title != "Learn greetings" {
		t.Fatalf("unexpected actions: %+v", actions)
	}
}

func TestCreateGoalValidation(t *testing.T) {
	router := newRouter(newTestRepo(t))

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"title":`},
		{"no title", `{"title":"  "}`},
		{"untitled milestone", `{"title":"x","milestones":[{"title":""}]}`},
		{"untitled action", `{"title":"x","milestones":[{"title":"m","actions":[{"title":""}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(router, http.MethodPost, "/api/goals", "u1", tt.body); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetPlanDoesNotMoveFocus(t *testing.T) {
	repo := newTestRepo(t)
	seedPlan(t, repo, "u1", "g1")
	router := newRouter(repo)

	rec := do(router, http.MethodGet, "/api/plan", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Plan    plan.Context `json:"plan"`
		Percent int          `json:"percent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Plan.Goal.ID != "g1" || resp.Plan.CurrentAction == nil || resp.Plan.CurrentAction.ID != "g1-a1" {
		t.Fatalf("unexpected plan: %+v", resp.Plan)
	}

	sess, err := repo.GetSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.GoalID != "" || sess.Version != 0 {
		t.Fatalf("plan read must not touch the session: %+v", sess)
	}

	if rec := do(router, http.MethodGet, "/api/plan", "u2", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for user without goals, got %d", rec.Code)
	}
}

func TestCompleteMilestoneChecksOwnership(t *testing.T) {
	repo := newTestRepo(t)
	seedPlan(t, repo, "u1", "g1")
	router := newRouter(repo)

	if rec := do(router, http.MethodPost, "/api/milestones/g1-m1/complete", "intruder", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign milestone, got %d", rec.Code)
	}
	if rec := do(router, http.MethodPost, "/api/milestones/nope/complete", "u1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing milestone, got %d", rec.Code)
	}

	rec := do(router, http.MethodPost, "/api/milestones/g1-m1/complete", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	open, err := repo.CountActions(context.Background(), "g1-m1", domain.ActionPending)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if open != 0 {
		t.Fatalf("expected all actions closed, %d open", open)
	}
	events, err := repo.ListProgressEvents(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("forced completion must not record events, got %d", len(events))
	}

	var body struct {
		ActionsClosed int  `json:"actions_closed"`
		GoalCompleted bool `json:"goal_completed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ActionsClosed != 2 || !body.GoalCompleted {
		t.Fatalf("expected 2 actions closed and the goal completed, got %+v", body)
	}
	goal, err := repo.GetGoal(context.Background(), "u1", "g1")
	if err != nil || goal == nil || goal.Status != domain.GoalCompleted {
		t.Fatalf("expected goal completed, got %+v %v", goal, err)
	}
}

func TestGetProgress(t *testing.T) {
	repo := newTestRepo(t)
	seedPlan(t, repo, "u1", "g1")
	ctx := context.Background()
	if err := repo.UpdateActionStatus(ctx, "g1-a1", domain.ActionCompleted, time.Now()); err != nil {
		t.Fatalf("complete action: %v", err)
	}

	rec := do(newRouter(repo), http.MethodGet, "/api/progress", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ProgressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AverageCompletion != 50 {
		t.Fatalf("expected average 50, got %d", resp.AverageCompletion)
	}
	if len(resp.Goals) != 1 || resp.Goals[0].Percent != 50 {
		t.Fatalf("unexpected goals: %+v", resp.Goals)
	}
	if resp.State.UserID != "u1" {
		t.Fatalf("expected zero state for u1, got %+v", resp.State)
	}
}
