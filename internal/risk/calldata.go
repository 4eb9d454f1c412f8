package risk

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const approvalABIJSON = `[
{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"operator","type":"address"},{"internalType":"bool","name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var approvalABI abi.ABI

// unlimitedThreshold is 2^255; allowances at or above it are treated as the
// max-uint sentinel wallets use for "infinite" approvals.
var unlimitedThreshold = new(big.Int).Lsh(big.NewInt(1), 255)

func init() {
	parsed, err := abi.JSON(strings.NewReader(approvalABIJSON))
	if err != nil {
		panic("failed to parse approval ABI: " + err.Error())
	}
	approvalABI = parsed
}

// decodeCall fills FunctionName and Args from raw calldata when the intent
// only carries Data. Unrecognised selectors leave the intent untouched.
func decodeCall(intent TransactionIntent) (TransactionIntent, error) {
	if strings.TrimSpace(intent.Data) == "" || intent.FunctionName != "" {
		return intent, nil
	}

	raw, err := hexutil.Decode(strings.TrimSpace(intent.Data))
	if err != nil {
		return intent, invalidIntent("data is not 0x-prefixed hex: %v", err)
	}
	if len(raw) < 4 {
		return intent, nil
	}

	method, err := approvalABI.MethodById(raw[:4])
	if err != nil {
		return intent, nil
	}

	values, err := method.Inputs.Unpack(raw[4:])
	if err != nil {
		return intent, invalidIntent("malformed %s calldata: %v", method.Name, err)
	}

	args := make([]string, 0, len(values))
	for _, v := range values {
		args = append(args, formatArg(v))
	}

	intent.FunctionName = method.Name
	intent.Args = args
	return intent, nil
}

func formatArg(v any) string {
	switch val := v.(type) {
	case common.Address:
		return val.Hex()
	case *big.Int:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func isApprovalCall(functionName string) bool {
	return strings.EqualFold(functionName, "approve") || strings.EqualFold(functionName, "setApprovalForAll")
}

// isUnlimitedApproval reports whether the approval grants an unbounded
// allowance. setApprovalForAll is unbounded by nature unless it explicitly
// revokes (second argument false).
func isUnlimitedApproval(intent TransactionIntent) bool {
	var second string
	if len(intent.Args) > 1 {
		second = strings.TrimSpace(intent.Args[1])
	}

	if strings.EqualFold(intent.FunctionName, "setApprovalForAll") {
		return !strings.EqualFold(second, "false")
	}

	if strings.EqualFold(second, "true") {
		return true
	}
	amount, ok := new(big.Int).SetString(second, 0)
	if !ok {
		return false
	}
	return amount.Cmp(unlimitedThreshold) >= 0
}
