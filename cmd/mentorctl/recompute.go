package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/worker"
)

type userRecompute struct {
	UserID        string `json:"user_id"`
	AvatarChanged bool   `json:"avatar_changed"`
	StreakReset   bool   `json:"streak_reset"`
}

func newRecomputeCmd(opts *rootOptions) *cobra.Command {
	var (
		dbPath         string
		userID         string
		thresholdsPath string
		pendingTTL     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Run the progress sweep once (avatar tiers, streak decay, stale confirmations)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			thresholds, err := progress.LoadThresholds(thresholdsPath)
			if err != nil {
				return err
			}
			repo, err := store.NewSQLite(dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = repo.Close() }()

			r := worker.NewRecomputer(repo, worker.WithThresholds(thresholds), worker.WithPendingTTL(pendingTTL))
			ctx := cmd.Context()
			if userID != "" {
				avatar, streak, err := r.RecomputeUser(ctx, userID)
				if err != nil {
					return err
				}
				return opts.output(cmd.OutOrStdout(), userRecompute{UserID: userID, AvatarChanged: avatar, StreakReset: streak})
			}
			stats, err := r.RunOnce(ctx)
			if err != nil {
				return err
			}
			return opts.output(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", envOr("DB_PATH", "./data/mentor.db"), "SQLite database path")
	cmd.Flags().StringVar(&userID, "user", "", "Recompute a single user (skips confirmation expiry)")
	cmd.Flags().StringVar(&thresholdsPath, "thresholds", envOr("AVATAR_THRESHOLDS_PATH", ""), "YAML threshold table")
	cmd.Flags().DurationVar(&pendingTTL, "pending-ttl", worker.DefaultPendingTTL, "Expire completion confirmations older than this (0 disables)")
	return cmd
}
