package cli

import (
	"github.com/spf13/cobra"

	"vault-guard/internal/app"
	"vault-guard/internal/settings"
)

var (
	guardiansAccount string
	guardianName     string
	guardianAddress  string
	guardianType     string
)

var guardiansCmd = &cobra.Command{
	Use:   "guardians",
	Short: "Manage recovery guardians",
}

var guardiansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List guardians",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Guardians(cmd.Context(), guardiansAccount, app.GuardianList, settings.Guardian{}, output())
	},
}

var guardiansAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a guardian",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := settings.Guardian{
			Name:    guardianName,
			Address: guardianAddress,
			Type:    settings.GuardianType(guardianType),
		}
		return getApp().Guardians(cmd.Context(), guardiansAccount, app.GuardianAdd, g, output())
	},
}

var guardiansRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a guardian",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Guardians(cmd.Context(), guardiansAccount, app.GuardianRemove, settings.Guardian{ID: args[0]}, output())
	},
}

func init() {
	guardiansCmd.PersistentFlags().StringVar(&guardiansAccount, "account", "", "Vault account address")
	_ = guardiansCmd.MarkPersistentFlagRequired("account")

	guardiansAddCmd.Flags().StringVar(&guardianName, "name", "", "Guardian display name")
	guardiansAddCmd.Flags().StringVar(&guardianAddress, "address", "", "Guardian address or contact")
	guardiansAddCmd.Flags().StringVar(&guardianType, "type", string(settings.GuardianSocial), "hardware, social or backup")
	_ = guardiansAddCmd.MarkFlagRequired("name")
	_ = guardiansAddCmd.MarkFlagRequired("address")

	guardiansCmd.AddCommand(guardiansListCmd, guardiansAddCmd, guardiansRemoveCmd)
}
