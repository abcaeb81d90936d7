// Package worker runs the periodic progress maintenance sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/plan"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

// DefaultPendingTTL is how long an unanswered completion confirmation survives.
const DefaultPendingTTL = 24 * time.Hour

// Store is what the sweep reads and writes.
type Store interface {
	store.UserStore
	store.SessionStore
	store.PlanRepository
}

// Stats summarizes one sweep.
type Stats struct {
	Users          int `json:"users"`
	AvatarsChanged int `json:"avatars_changed"`
	StreaksReset   int `json:"streaks_reset"`
	PendingCleared int `json:"pending_cleared"`
	Failures       int `json:"failures"`
}

// Recomputer re-derives stored progress from the plan tables.
type Recomputer struct {
	repo       Store
	sessions   store.SessionStore
	thresholds []domain.AvatarStageThreshold
	pendingTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Recomputer.
type Option func(*Recomputer)

// WithThresholds overrides the avatar threshold table.
func WithThresholds(t []domain.AvatarStageThreshold) Option {
	return func(r *Recomputer) {
		if len(t) > 0 {
			r.thresholds = t
		}
	}
}

// WithPendingTTL sets the pending confirmation lifetime. Zero disables expiry.
func WithPendingTTL(d time.Duration) Option {
	return func(r *Recomputer) { r.pendingTTL = d }
}

// WithSessions reads and expires sessions from a store other than repo, for
// deployments that keep sessions in Redis.
func WithSessions(s store.SessionStore) Option {
	return func(r *Recomputer) {
		if s != nil {
			r.sessions = s
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recomputer) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recomputer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecomputer creates a Recomputer.
func NewRecomputer(repo Store, opts ...Option) *Recomputer {
	r := &Recomputer{
		repo:       repo,
		sessions:   repo,
		thresholds: progress.DefaultThresholds(),
		pendingTTL: DefaultPendingTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce performs one sweep. Per-user failures are logged and counted; only a
// failure to enumerate users is returned.
func (r *Recomputer) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	userIDs, err := r.repo.ListProgressUsers(ctx)
	if err != nil {
		return stats, fmt.Errorf("list progress users: %w", err)
	}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Users++
		avatar, streak, err := r.RecomputeUser(ctx, userID)
		if err != nil {
			stats.Failures++
			r.logger.Warn("Recompute failed", "user_id", userID, "error", err)
			continue
		}
		if avatar {
			stats.AvatarsChanged++
		}
		if streak {
			stats.StreaksReset++
		}
	}

	if r.pendingTTL > 0 {
		cleared, failures, err := r.expirePending(ctx)
		if err != nil {
			return stats, err
		}
		stats.PendingCleared = cleared
		stats.Failures += failures
	}
	return stats, nil
}

// RecomputeUser refreshes one user's avatar tier and streak. It reports which of
// the two changed.
func (r *Recomputer) RecomputeUser(ctx context.Context, userID string) (avatarChanged, streakReset bool, err error) {
	state, err := r.repo.GetUserProgressState(ctx, userID)
	if err != nil {
		return false, false, fmt.Errorf("get progress state: %w", err)
	}
	if state == nil {
		return false, false, nil
	}

	avg, err := plan.AverageActiveCompletion(ctx, r.repo, userID)
	if err != nil {
		return false, false, fmt.Errorf("average completion: %w", err)
	}
	tier := progress.AvatarFor(avg, r.thresholds)
	if tier.Level != state.AvatarLevel || tier.StageName != state.AvatarStage {
		state.AvatarLevel = tier.Level
		state.AvatarStage = tier.StageName
		avatarChanged = true
	}

	// A streak survives until the end of the day after the last activity.
	now := r.now()
	if state.ConsistencyStreak > 0 &&
		(state.LastActivityDate == nil || progress.DaysBetween(*state.LastActivityDate, now) > 1) {
		state.ConsistencyStreak = 0
		streakReset = true
	}

	if !avatarChanged && !streakReset {
		return false, false, nil
	}
	state.UpdatedAt = now
	if err := r.repo.UpdateUserProgressState(ctx, state); err != nil {
		return false, false, fmt.Errorf("update progress state: %w", err)
	}
	r.logger.Debug("Progress recomputed", "user_id", userID, "average", avg,
		"avatar_level", state.AvatarLevel, "streak_reset", streakReset)
	return avatarChanged, streakReset, nil
}

// expirePending drops completion confirmations nobody answered within the TTL.
func (r *Recomputer) expirePending(ctx context.Context) (cleared, failures int, err error) {
	userIDs, err := r.repo.ListUserIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list users: %w", err)
	}
	cutoff := r.now().Add(-r.pendingTTL)
	for _, userID := range userIDs {
		sess, err := r.sessions.GetSession(ctx, userID)
		if err != nil {
			failures++
			r.logger.Warn("Failed to read session", "user_id", userID, "error", err)
			continue
		}
		if sess.PendingCompletion == nil || sess.LastUpdated.After(cutoff) {
			continue
		}
		patch := domain.SessionPatch{
			Clear:     []domain.SessionField{domain.FieldPendingCompletion},
			IfVersion: sess.Version,
		}
		_, err = r.sessions.UpdateSession(ctx, userID, patch)
		if errors.Is(err, store.ErrSessionChanged) {
			r.logger.Debug("Session moved on, keeping pending confirmation", "user_id", userID)
			continue
		}
		if err != nil {
			failures++
			r.logger.Warn("Failed to clear pending confirmation", "user_id", userID, "error", err)
			continue
		}
		cleared++
		r.logger.Info("Expired pending confirmation", "user_id", userID,
			"action_id", sess.PendingCompletion.ActionID)
	}
	return cleared, failures, nil
}

// Start runs RunOnce every interval until ctx is done. The returned channel is
// closed when the goroutine exits.
func (r *Recomputer) Start(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		r.logger.Info("Recompute worker started", "interval", interval, "pending_ttl", r.pendingTTL)

		for {
			select {
			case <-ticker.C:
				stats, err := r.RunOnce(ctx)
				if err != nil {
					r.logger.Error("Recompute sweep failed", "error", err)
					continue
				}
				r.logger.Info("Recompute sweep completed",
					"users", stats.Users,
					"avatars_changed", stats.AvatarsChanged,
					"streaks_reset", stats.StreaksReset,
					"pending_cleared", stats.PendingCleared,
					"failures", stats.Failures,
				)
			case <-ctx.Done():
				r.logger.Info("Recompute worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}
