// Package progress holds the pure numeric rules of the engine: completion
// percentages, celebratory tone, avatar tiers and consistency streaks.
package progress

import (
	"math"
	"sort"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

// CompletionPercent returns round(100*completed/total), or 0 when total is 0.
func CompletionPercent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// GoalCounts are the action counters of one goal.
type GoalCounts struct {
	GoalID    string
	Completed int
	Total     int
}

// AverageCompletion is the arithmetic mean of per-goal completion percentages,
// rounded to the nearest integer. No goals yields 0.
func AverageCompletion(goals []GoalCounts) int {
	if len(goals) == 0 {
		return 0
	}
	sum := 0
	for _, g := range goals {
		sum += CompletionPercent(g.Completed, g.Total)
	}
	return int(math.Round(float64(sum) / float64(len(goals))))
}

// Tone is the qualitative reading of how far along a goal is.
type Tone string

const (
	ToneStarting Tone = "starting"
	ToneEarly    Tone = "early"
	ToneMid      Tone = "mid"
	ToneLate     Tone = "late"
	ToneComplete Tone = "complete"
)

// ToneFor maps a completion percentage onto a tone.
func ToneFor(percent int) Tone {
	switch {
	case percent <= 0:
		return ToneStarting
	case percent < 34:
		return ToneEarly
	case percent < 67:
		return ToneMid
	case percent < 100:
		return ToneLate
	default:
		return ToneComplete
	}
}

// DefaultThresholds are the five documented avatar bands:
// 0-20, 21-40, 41-60, 61-80 and 81-100.
func DefaultThresholds() []domain.AvatarStageThreshold {
	return []domain.AvatarStageThreshold{
		{Level: 1, StageName: "seed", MinCompletionPercent: 0},
		{Level: 2, StageName: "sprout", MinCompletionPercent: 21},
		{Level: 3, StageName: "sapling", MinCompletionPercent: 41},
		{Level: 4, StageName: "tree", MinCompletionPercent: 61},
		{Level: 5, StageName: "grove", MinCompletionPercent: 81},
	}
}

// AvatarFor returns the highest threshold whose minimum is <= percent. thresholds
// need not be sorted. With an empty table the first default band is returned.
func AvatarFor(percent int, thresholds []domain.AvatarStageThreshold) domain.AvatarStageThreshold {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds()
	}
	sorted := make([]domain.AvatarStageThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinCompletionPercent < sorted[j].MinCompletionPercent
	})

	best := sorted[0]
	for _, th := range sorted {
		if percent >= th.MinCompletionPercent {
			best = th
		}
	}
	return best
}

// NextStreak computes the consistency streak after activity on today.
// Same day keeps the streak, the following day extends it, anything else restarts it.
func NextStreak(today time.Time, lastActivity *time.Time, previous int) int {
	if lastActivity == nil {
		return 1
	}
	days := DaysBetween(*lastActivity, today)
	switch {
	case days <= 0:
		return previous
	case days == 1:
		return previous + 1
	default:
		return 1
	}
}

// DaysBetween counts calendar days from a to b, using b's location.
func DaysBetween(a, b time.Time) int {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
