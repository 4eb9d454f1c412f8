package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vault-guard/internal/app"
)

var (
	exportAccount   string
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the risk assessment audit trail as CSV and/or a PNG chart",
	Example: `  vaultguard export --account 0xabc... --from 7d --csv out/assessments.csv
  vaultguard export --from 2024-03-01T00:00:00Z --to 2024-03-08T00:00:00Z --png out/scores.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Account:   exportAccount,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		now := time.Now().UTC()
		var err error
		if opts.From, err = parseTimeFlag("from", exportFrom, now); err != nil {
			return err
		}
		if opts.To, err = parseTimeFlag("to", exportTo, now); err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

// parseTimeFlag accepts an RFC3339 timestamp or a lookback relative to now
// such as "36h" or "7d". Empty values yield nil.
func parseTimeFlag(name, value string, now time.Time) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return &ts, nil
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid --%s value %q", name, value)
		}
		ts := now.Add(-time.Duration(n) * 24 * time.Hour)
		return &ts, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("invalid --%s value %q: want RFC3339 or a lookback like 24h or 7d", name, value)
	}
	ts := now.Add(-d)
	return &ts, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportAccount, "account", "", "Only export this account (default all)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start (RFC3339 or lookback like 7d, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End (RFC3339 or lookback, exclusive; default now)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write the score/timelock PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV rows")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum rows to export (defaults to config)")
}
