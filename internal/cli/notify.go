package cli

import (
	"github.com/spf13/cobra"

	"vault-guard/internal/alerting"
)

var (
	notifyAccount  string
	notifyPriority string
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a test notification through every enabled channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().NotifyTest(cmd.Context(), notifyAccount, alerting.ParsePriority(notifyPriority))
	},
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyAccount, "account", "", "Account to tag the event with")
	notifyTestCmd.Flags().StringVar(&notifyPriority, "priority", string(alerting.PriorityHigh), "low, medium, high or critical")
}
