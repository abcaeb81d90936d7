package progress

import (
	"testing"
	"time"
)

func TestCompletionPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{0, 4, 0},
		{1, 4, 25},
		{1, 3, 33},
		{2, 3, 67},
		{4, 4, 100},
		{5, 4, 100},
	}
	for _, tt := range tests {
		if got := CompletionPercent(tt.completed, tt.total); got != tt.want {
			t.Errorf("CompletionPercent(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestAverageCompletionIsIdempotent(t *testing.T) {
	t.Parallel()

	goals := []GoalCounts{
		{GoalID: "a", Completed: 1, Total: 3},
		{GoalID: "b", Completed: 0, Total: 0},
		{GoalID: "c", Completed: 4, Total: 4},
	}
	first := AverageCompletion(goals)
	second := AverageCompletion(goals)
	if first != second {
		t.Fatalf("recomputation changed value: %d then %d", first, second)
	}
	// (33 + 0 + 100) / 3 = 44.33
	if first != 44 {
		t.Fatalf("AverageCompletion = %d, want 44", first)
	}
	if got := AverageCompletion(nil); got != 0 {
		t.Fatalf("AverageCompletion(nil) = %d, want 0", got)
	}
}

func TestAvatarForBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		percent   int
		wantLevel int
	}{
		{0, 1},
		{20, 1},
		{21, 2},
		{40, 2},
		{41, 3},
		{60, 3},
		{61, 4},
		{80, 4},
		{81, 5},
		{100, 5},
	}
	for _, tt := range tests {
		if got := AvatarFor(tt.percent, DefaultThresholds()); got.Level != tt.wantLevel {
			t.Errorf("AvatarFor(%d) = level %d, want %d", tt.percent, got.Level, tt.wantLevel)
		}
	}
}

func TestAvatarForIsMonotonic(t *testing.T) {
	t.Parallel()

	prev := 0
	for pct := 0; pct <= 100; pct++ {
		level := AvatarFor(pct, DefaultThresholds()).Level
		if level < prev {
			t.Fatalf("tier decreased at %d%%: %d -> %d", pct, prev, level)
		}
		prev = level
	}
}

func TestNextStreak(t *testing.T) {
	t.Parallel()

	today := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	sameDay := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)
	older := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	if got := NextStreak(today, &sameDay, 4); got != 4 {
		t.Errorf("same day: got %d, want 4", got)
	}
	if got := NextStreak(today, &yesterday, 4); got != 5 {
		t.Errorf("yesterday: got %d, want 5", got)
	}
	if got := NextStreak(today, &older, 4); got != 1 {
		t.Errorf("older: got %d, want 1", got)
	}
	if got := NextStreak(today, nil, 4); got != 1 {
		t.Errorf("never: got %d, want 1", got)
	}
}

func TestToneFor(t *testing.T) {
	t.Parallel()

	cases := map[int]Tone{0: ToneStarting, 10: ToneEarly, 50: ToneMid, 90: ToneLate, 100: ToneComplete}
	for pct, want := range cases {
		if got := ToneFor(pct); got != want {
			t.Errorf("ToneFor(%d) = %s, want %s", pct, got, want)
		}
	}
}
