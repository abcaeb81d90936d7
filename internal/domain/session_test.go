package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMergeClearsBeforeSetting(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	start := ConversationSession{
		GoalID:            "g1",
		MilestoneID:       "m1",
		ActionID:          "a1",
		PendingCompletion: &PendingCompletion{GoalID: "g1", ActionID: "a1"},
		Version:           3,
	}
	next := "a2"
	got := start.Merge(SessionPatch{
		ActionID: &next,
		Clear:    []SessionField{FieldActionID, FieldPendingCompletion},
	}, now)

	want := ConversationSession{
		GoalID:      "g1",
		MilestoneID: "m1",
		ActionID:    "a2",
		LastUpdated: now,
		Version:     4,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}
	if start.PendingCompletion == nil {
		t.Fatal("merge must not mutate the receiver")
	}
}

func TestFocusPatchKeepsActionSinceForSameAction(t *testing.T) {
	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	sess := ConversationSession{}.Merge(ConversationSession{}.FocusPatch("g1", "m1", "a1", first), first)
	if !sess.ActionSince.Equal(first) {
		t.Fatalf("expected actionSince %v, got %v", first, sess.ActionSince)
	}

	same := sess.FocusPatch("g1", "m1", "a1", later)
	if same.ActionSince != nil {
		t.Fatal("refocusing the same action must keep actionSince")
	}
	if !sess.IsNoop(same) {
		t.Fatal("refocusing the same action should be a no-op")
	}

	moved := sess.FocusPatch("g1", "m1", "a2", later)
	if moved.ActionSince == nil || !moved.ActionSince.Equal(later) {
		t.Fatal("a new action must restart actionSince")
	}
}

func TestStatusPatchDropsPointer(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	sess := ConversationSession{
		GoalID:            "g1",
		MilestoneID:       "m1",
		ActionID:          "a1",
		PendingCompletion: &PendingCompletion{GoalID: "g1", ActionID: "a1"},
		ActionSince:       now,
	}

	done := sess.Merge(StatusPatch(SessionCompleted, "g1"), now)
	if diff := cmp.Diff(ConversationSession{GoalID: "g1", Status: SessionCompleted, LastUpdated: now, Version: 1}, done); diff != "" {
		t.Fatalf("completed session mismatch (-want +got):\n%s", diff)
	}

	none := sess.Merge(StatusPatch(SessionNone, ""), now)
	if none.GoalID != "" || none.Status != SessionNone {
		t.Fatalf("expected cleared goal with none status, got %+v", none)
	}
}

func TestPendingCompletionMatches(t *testing.T) {
	var nilSlot *PendingCompletion
	if nilSlot.Matches("g1", "a1") {
		t.Fatal("nil slot must not match")
	}
	slot := &PendingCompletion{GoalID: "g1", ActionID: "a1"}
	if !slot.Matches("g1", "a1") {
		t.Fatal("expected match")
	}
	if slot.Matches("g1", "a2") || slot.Matches("g2", "a1") {
		t.Fatal("slot must be bound to goal and action")
	}
	if (&PendingCompletion{GoalID: "g1"}).Matches("g1", "") {
		t.Fatal("an empty action never matches")
	}
}

func TestSessionJSONShape(t *testing.T) {
	sess := ConversationSession{
		GoalID:            "g1",
		PendingCompletion: &PendingCompletion{GoalID: "g1", ActionID: "a1"},
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"goalId":"g1","pendingCompletion":{"goalId":"g1","actionId":"a1"}}`
	if string(raw) != want {
		t.Fatalf("unexpected blob:\n got %s\nwant %s", raw, want)
	}
}

func TestAcceptsVersionPrecondition(t *testing.T) {
	s := ConversationSession{Version: 3}
	tests := []struct {
		ifVersion int
		want      bool
	}{
		{0, true},
		{3, true},
		{2, false},
		{4, false},
	}
	for _, tt := range tests {
		if got := s.Accepts(SessionPatch{IfVersion: tt.ifVersion}); got != tt.want {
			t.Errorf("Accepts(IfVersion=%d) = %v, want %v", tt.ifVersion, got, tt.want)
		}
	}
}
