package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/intent"
)

type classifyResult struct {
	Message      string `json:"message"`
	Normalized   string `json:"normalized"`
	Keyword      string `json:"keyword"`
	Confirmation string `json:"confirmation"`
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Show how a chat message is classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")
			var pc *domain.PendingCompletion
			if pending {
				pc = &domain.PendingCompletion{GoalID: "goal", ActionID: "action"}
			}
			res := intent.Classify(msg, pc)
			return opts.output(cmd.OutOrStdout(), classifyResult{
				Message:      msg,
				Normalized:   intent.Normalize(msg),
				Keyword:      res.Keyword.String(),
				Confirmation: res.Confirmation.String(),
			})
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "Classify as if a completion confirmation were pending")
	return cmd
}
