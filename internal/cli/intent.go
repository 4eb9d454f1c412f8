package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"vault-guard/internal/risk"
)

type intentFlags struct {
	account  string
	to       string
	value    string
	data     string
	function string
	args     []string
	token    string
	urgent   bool
}

func (f *intentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.account, "account", "", "Vault account address")
	cmd.Flags().StringVar(&f.to, "to", "", "Destination address")
	cmd.Flags().StringVar(&f.value, "value", "0", "Amount in native units (decimal string)")
	cmd.Flags().StringVar(&f.data, "data", "", "Hex calldata; approvals are decoded when --function is empty")
	cmd.Flags().StringVar(&f.function, "function", "", "Called function name, e.g. approve")
	cmd.Flags().StringSliceVar(&f.args, "args", nil, "Call arguments in order")
	cmd.Flags().StringVar(&f.token, "token", "", "Token symbol; native asset when empty")
	cmd.Flags().BoolVar(&f.urgent, "urgent", false, "Mark the request as urgent")
}

func (f *intentFlags) intent() (string, risk.TransactionIntent, error) {
	if f.account == "" {
		return "", risk.TransactionIntent{}, errors.New("--account is required")
	}
	return f.account, risk.TransactionIntent{
		From:         f.account,
		To:           f.to,
		Value:        f.value,
		Data:         f.data,
		FunctionName: f.function,
		Args:         f.args,
		Token:        f.token,
		IsUrgent:     f.urgent,
	}, nil
}

var (
	analyzeFlags intentFlags
	submitFlags  intentFlags
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score a transaction without queueing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		account, intent, err := analyzeFlags.intent()
		if err != nil {
			return err
		}
		return getApp().Analyze(cmd.Context(), account, intent, output())
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Score a transaction and route it: execute, queue behind a timelock, or block",
	RunE: func(cmd *cobra.Command, args []string) error {
		account, intent, err := submitFlags.intent()
		if err != nil {
			return err
		}
		return getApp().Submit(cmd.Context(), account, intent, output())
	},
}

func init() {
	analyzeFlags.register(analyzeCmd)
	submitFlags.register(submitCmd)
}
