package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	outputText bool
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "mentorctl",
		Short: "Operator tools for the mentor engine",
		Long: `mentorctl inspects and maintains a mentor database.

  mentorctl classify "I finished it"       # show the intent of a message
  mentorctl tier 55                        # avatar tier for a percentage
  mentorctl recompute --db ./data/mentor.db # run the progress sweep once`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = godotenv.Load()
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().BoolVar(&opts.outputText, "text", false, "Human-readable text output (default is JSON)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newClassifyCmd(opts), newTierCmd(opts), newRecomputeCmd(opts))
	return cmd
}

// output writes result as indented JSON, or with %+v under --text.
func (o *rootOptions) output(w io.Writer, result any) error {
	if o.outputText {
		_, err := fmt.Fprintf(w, "%+v\n", result)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
