package main

import (
	"github.com/spf13/cobra"
)

func init() {
	var days int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop old and duplicate tweets and rebuild the mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if days <= 0 {
					days = a.cfg.Ledger.RetentionDays
				}
				before := a.ledger.Size()
				if err := a.ledger.CleanupOldTweets(cmd.Context(), days); err != nil {
					return err
				}
				return printJSON(map[string]int{"before": before, "after": a.ledger.Size(), "days": days})
			})
		},
	}
	cleanup.Flags().IntVar(&days, "days", 0, "Age cutoff in days (default: ledger.retention_days)")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Trim the ledger to its maximum size",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				before := a.ledger.Size()
				if err := a.ledger.PruneTweetCount(cmd.Context()); err != nil {
					return err
				}
				return printJSON(map[string]int{"before": before, "after": a.ledger.Size()})
			})
		},
	}

	resync := &cobra.Command{
		Use:   "resync",
		Short: "Rebuild the mirrored tweet namespace from the ledger file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.ledger.Resync(cmd.Context()); err != nil {
					return err
				}
				return printJSON(map[string]int{"mirrored": a.ledger.Size()})
			})
		},
	}

	rootCmd.AddCommand(cleanup, prune, resync)
}
