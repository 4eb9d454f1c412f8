package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var pendingAccount string

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and resolve timelocked transactions",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the timelock queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListPending(cmd.Context(), pendingAccount, output())
	},
}

var pendingCancelCmd = &cobra.Command{
	Use:   "cancel <index>",
	Short: "Cancel a pending transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return getApp().ResolvePending(cmd.Context(), pendingAccount, index, false)
	},
}

var pendingExecuteCmd = &cobra.Command{
	Use:   "execute <index>",
	Short: "Execute a pending transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		return getApp().ResolvePending(cmd.Context(), pendingAccount, index, true)
	},
}

func parseIndex(v string) (int, error) {
	index, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", v, err)
	}
	return index, nil
}

func init() {
	pendingCmd.PersistentFlags().StringVar(&pendingAccount, "account", "", "Vault account address")
	_ = pendingCmd.MarkPersistentFlagRequired("account")

	pendingCmd.AddCommand(pendingListCmd, pendingCancelCmd, pendingExecuteCmd)
}
