package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vault-guard/internal/app"
)

var (
	historyAccount string
	historyLimit   int

	pruneOlderThan time.Duration
	pruneDryRun    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display recent risk assessments",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.HistoryOptions{
			Account: historyAccount,
			Limit:   historyLimit,
		}

		return getApp().History(cmd.Context(), opts, output())
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete risk assessments older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Prune(cmd.Context(), pruneOlderThan, pruneDryRun)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyAccount, "account", "", "Only show this account (default all)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of assessments to display")

	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 90*24*time.Hour, "Retention window")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Report the cutoff without deleting")
}
