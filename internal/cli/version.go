package cli

import (
	"github.com/spf13/cobra"

	"vault-guard/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		version.Write(cmd.OutOrStdout())
	},
}
