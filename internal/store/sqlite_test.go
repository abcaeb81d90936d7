package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := openSQLite(filepath.Join(t.TempDir(), "mentor.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPlan(t *testing.T, s *SQLiteStore, userID string) (domain.Goal, []domain.Milestone, []domain.Action) {
	t.Helper()
	goal := domain.Goal{UserID: userID, Title: "Run a 5k", MainGoal: "Run a 5k"}
	milestones := []domain.Milestone{
		{ID: "m1", Title: "Build base"},
		{ID: "m2", Title: "Race"},
	}
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	actions := []domain.Action{
		{ID: "a1", MilestoneID: "m1", Title: "Walk 20 minutes", CreatedAt: base},
		{ID: "a2", MilestoneID: "m1", Title: "Jog 10 minutes", CreatedAt: base.Add(time.Minute)},
		{ID: "a3", MilestoneID: "m2", Title: "Sign up", CreatedAt: base.Add(2 * time.Minute)},
	}
	if err := s.CreatePlan(context.Background(), &goal, milestones, actions); err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return goal, milestones, actions
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get empty session: %v", err)
	}
	if diff := cmp.Diff(domain.ConversationSession{}, sess); diff != "" {
		t.Fatalf("expected zero session (-want +got):\n%s", diff)
	}

	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	patch := sess.FocusPatch("g1", "m1", "a1", since)
	patch.PendingCompletion = &domain.PendingCompletion{GoalID: "g1", ActionID: "a1"}
	updated, err := s.UpdateSession(ctx, "u1", patch)
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if updated.Version != 1 {
		t.Fatalf("expected version 1, got %d", updated.Version)
	}

	got, err := s.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.HasPendingFor("g1", "a1") {
		t.Fatalf("expected pending completion to survive the round trip, got %+v", got)
	}
	if !got.ActionSince.Equal(since) {
		t.Fatalf("expected actionSince %v, got %v", since, got.ActionSince)
	}

	cleared, err := s.UpdateSession(ctx, "u1", domain.SessionPatch{Clear: []domain.SessionField{domain.FieldPendingCompletion}})
	if err != nil {
		t.Fatalf("clear pending: %v", err)
	}
	if cleared.PendingCompletion != nil || cleared.ActionID != "a1" {
		t.Fatalf("clear must only drop the pending slot, got %+v", cleared)
	}
}

func TestUpdateSessionVersionPrecondition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goal := "g1"
	sess, err := s.UpdateSession(ctx, "u1", domain.SessionPatch{GoalID: &goal})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	stale := domain.SessionPatch{Clear: []domain.SessionField{domain.FieldGoalID}, IfVersion: sess.Version + 1}
	if _, err := s.UpdateSession(ctx, "u1", stale); !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("expected ErrSessionChanged, got %v", err)
	}
	got, err := s.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.GoalID != "g1" || got.Version != sess.Version {
		t.Fatalf("a rejected patch must write nothing, got %+v", got)
	}

	current := domain.SessionPatch{Clear: []domain.SessionField{domain.FieldGoalID}, IfVersion: sess.Version}
	updated, err := s.UpdateSession(ctx, "u1", current)
	if err != nil {
		t.Fatalf("conditional update: %v", err)
	}
	if updated.GoalID != "" || updated.Version != sess.Version+1 {
		t.Fatalf("unexpected session after conditional update: %+v", updated)
	}
}

func TestUpdateSessionPreservesUserRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, &domain.User{UserID: "u1", Username: "ana"}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if _, err := s.UpdateSession(ctx, "u1", domain.StatusPatch(domain.SessionNoPlan, "")); err != nil {
		t.Fatalf("update session: %v", err)
	}
	user, err := s.GetUser(ctx, "u1")
	if err != nil || user == nil {
		t.Fatalf("get user: %v %v", user, err)
	}
	if user.Username != "ana" {
		t.Fatalf("expected username to be kept, got %q", user.Username)
	}

	// Re-upserting the user must not wipe the session blob.
	if err := s.UpsertUser(ctx, &domain.User{UserID: "u1", Username: "ana"}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	sess, err := s.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != domain.SessionNoPlan {
		t.Fatalf("expected no_plan status, got %q", sess.Status)
	}
}

func TestConcurrentSessionUpdatesAllApply(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			goal := "g1"
			if _, err := s.UpdateSession(ctx, "u1", domain.SessionPatch{GoalID: &goal}); err != nil {
				t.Errorf("update session: %v", err)
			}
		}()
	}
	wg.Wait()

	sess, err := s.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Version != writers {
		t.Fatalf("expected version %d, got %d", writers, sess.Version)
	}
}

func TestPlanQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	goal, _, _ := seedPlan(t, s, "u1")

	got, err := s.GetGoal(ctx, "u1", goal.ID)
	if err != nil || got == nil {
		t.Fatalf("get goal: %v %v", got, err)
	}
	if got.Status != domain.GoalActive {
		t.Fatalf("expected active goal, got %q", got.Status)
	}

	other, err := s.GetGoal(ctx, "someone-else", goal.ID)
	if err != nil {
		t.Fatalf("get goal for other user: %v", err)
	}
	if other != nil {
		t.Fatal("goal must not be visible to another user")
	}

	milestones, err := s.ListMilestones(ctx, goal.ID)
	if err != nil {
		t.Fatalf("list milestones: %v", err)
	}
	if len(milestones) != 2 || milestones[0].ID != "m1" || milestones[1].Sequence != 2 {
		t.Fatalf("unexpected milestones: %+v", milestones)
	}

	pending, err := s.ListActions(ctx, "m1", domain.ActionPending)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "a1" {
		t.Fatalf("expected oldest pending action first, got %+v", pending)
	}

	at := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	if err := s.UpdateActionStatus(ctx, "a1", domain.ActionCompleted, at); err != nil {
		t.Fatalf("complete action: %v", err)
	}
	done, err := s.CountActions(ctx, "m1", domain.ActionCompleted)
	if err != nil {
		t.Fatalf("count actions: %v", err)
	}
	total, err := s.CountActions(ctx, "m1", "")
	if err != nil {
		t.Fatalf("count actions: %v", err)
	}
	if done != 1 || total != 2 {
		t.Fatalf("expected 1/2, got %d/%d", done, total)
	}

	action, err := s.GetAction(ctx, "a1")
	if err != nil || action == nil {
		t.Fatalf("get action: %v %v", action, err)
	}
	if action.CompletedAt == nil || !action.CompletedAt.Equal(at) {
		t.Fatalf("expected completed_at %v, got %v", at, action.CompletedAt)
	}

	err = s.UpdateActionStatus(ctx, "missing", domain.ActionCompleted, at)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListGoalsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := domain.Goal{ID: "old", UserID: "u1", Title: "Old", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := domain.Goal{ID: "new", UserID: "u1", Title: "New", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	gone := domain.Goal{ID: "gone", UserID: "u1", Title: "Gone", Deleted: true}
	for _, g := range []*domain.Goal{&older, &newer, &gone} {
		if err := s.CreatePlan(ctx, g, nil, nil); err != nil {
			t.Fatalf("create goal: %v", err)
		}
	}

	goals, err := s.ListGoals(ctx, "u1")
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	ids := make([]string, 0, len(goals))
	for _, g := range goals {
		ids = append(ids, g.ID)
	}
	if diff := cmp.Diff([]string{"new", "old"}, ids); diff != "" {
		t.Fatalf("unexpected goals (-want +got):\n%s", diff)
	}
}

func TestProgressEventsAndState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, e := range []domain.ProgressEvent{
		{UserID: "u1", GoalID: "g1", ActionID: "a1", Kind: domain.EventAction, Points: 10},
		{UserID: "u1", GoalID: "g1", MilestoneID: "m1", Kind: domain.EventMilestone, Points: 25},
		{UserID: "u1", GoalID: "g2", ActionID: "a9", Kind: domain.EventAction, Points: 10},
	} {
		ev := e
		if err := s.AppendProgressEvent(ctx, &ev); err != nil {
			t.Fatalf("append event: %v", err)
		}
		if ev.ID == "" {
			t.Fatal("expected generated event ID")
		}
	}

	events, err := s.ListProgressEvents(ctx, "u1", "g1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Kind != domain.EventAction || events[1].Points != 25 {
		t.Fatalf("unexpected events: %+v", events)
	}

	state, err := s.GetUserProgressState(ctx, "u1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state, got %+v", state)
	}

	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	want := domain.UserProgressState{
		UserID: "u1", TotalProgress: 35, ConsistencyStreak: 2, LastActivityDate: &day,
		AvatarLevel: 2, AvatarStage: "sprout", UpdatedAt: day,
	}
	if err := s.UpdateUserProgressState(ctx, &want); err != nil {
		t.Fatalf("update state: %v", err)
	}
	got, err := s.GetUserProgressState(ctx, "u1")
	if err != nil || got == nil {
		t.Fatalf("get state: %v %v", got, err)
	}
	if diff := cmp.Diff(want, *got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}

	users, err := s.ListProgressUsers(ctx)
	if err != nil {
		t.Fatalf("list progress users: %v", err)
	}
	if diff := cmp.Diff([]string{"u1"}, users); diff != "" {
		t.Fatalf("unexpected users (-want +got):\n%s", diff)
	}
}

func TestMessagesThreadedByGoal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	msgs := []domain.Message{
		{UserID: "u1", GoalID: "g1", Role: domain.RoleUser, Content: "hi", CreatedAt: base},
		{UserID: "u1", GoalID: "g1", Role: domain.RoleAssistant, Content: "hello", CreatedAt: base.Add(time.Second)},
		{UserID: "u1", GoalID: "g1", Role: domain.RoleUser, Content: "done", CreatedAt: base.Add(2 * time.Second)},
		{UserID: "u1", GoalID: "", Role: domain.RoleUser, Content: "no goal yet", CreatedAt: base},
	}
	for i := range msgs {
		if err := s.AppendMessage(ctx, &msgs[i]); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}

	recent, err := s.GetRecentMessages(ctx, "u1", "g1", 2)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "done" || recent[1].Content != "hello" {
		t.Fatalf("expected newest first, got %+v", recent)
	}

	goalless, err := s.GetRecentMessages(ctx, "u1", "", 10)
	if err != nil {
		t.Fatalf("goalless messages: %v", err)
	}
	if len(goalless) != 1 {
		t.Fatalf("expected the onboarding thread to be separate, got %+v", goalless)
	}

	n, err := s.CountUserMessages(ctx, "u1", "g1", base.Add(time.Second))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 user message since cutoff, got %d", n)
	}
}
