package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
)

type tierResult struct {
	Percent int                         `json:"percent"`
	Tone    progress.Tone               `json:"tone"`
	Avatar  domain.AvatarStageThreshold `json:"avatar"`
}

func newTierCmd(opts *rootOptions) *cobra.Command {
	var thresholdsPath string
	cmd := &cobra.Command{
		Use:   "tier <percent>",
		Short: "Show the avatar tier and tone for a completion percentage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.Atoi(args[0])
			if err != nil || pct < 0 || pct > 100 {
				return fmt.Errorf("percent must be an integer between 0 and 100, got %q", args[0])
			}
			thresholds, err := progress.LoadThresholds(thresholdsPath)
			if err != nil {
				return err
			}
			return opts.output(cmd.OutOrStdout(), tierResult{
				Percent: pct,
				Tone:    progress.ToneFor(pct),
				Avatar:  progress.AvatarFor(pct, thresholds),
			})
		},
	}
	cmd.Flags().StringVar(&thresholdsPath, "thresholds", envOr("AVATAR_THRESHOLDS_PATH", ""), "YAML threshold table (default built-in bands)")
	return cmd
}
