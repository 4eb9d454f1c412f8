package cli

import (
	"github.com/spf13/cobra"
)

var (
	freezeAccount string
	freezeHours   int
)

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Manage the emergency freeze",
}

var freezeActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Lock all outbound transactions for --hours",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Freeze(cmd.Context(), freezeAccount, freezeHours, output())
	},
}

var freezeDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Lift the emergency freeze",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Freeze(cmd.Context(), freezeAccount, -1, output())
	},
}

var freezeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the emergency freeze state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Freeze(cmd.Context(), freezeAccount, 0, output())
	},
}

func init() {
	freezeCmd.PersistentFlags().StringVar(&freezeAccount, "account", "", "Vault account address")
	_ = freezeCmd.MarkPersistentFlagRequired("account")
	freezeActivateCmd.Flags().IntVar(&freezeHours, "hours", 24, "Freeze duration in hours")

	freezeCmd.AddCommand(freezeActivateCmd, freezeDeactivateCmd, freezeStatusCmd)
}
