package risk

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vault-guard/internal/registry"
)

var (
	genDestination = gen.OneConstOf(
		"0xUNKNOWN",
		"0x1111111111111111111111111111111111111111",
		knownVerified,
		"0xdef1c0ded9bec7f1a1670819833240f027b25eff",
	)
	genFunction = gen.OneConstOf("", "approve", "setApprovalForAll", "claimAirdrop", "emergencyWithdraw", "transfer", "securityUpdate")
)

func propertyEngine(t *testing.T) *Engine {
	opts := DefaultOptions()
	opts.Latency = 0
	engine, err := NewEngine(registry.Default(), opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestScoreAlwaysClampedAndLevelDerived(t *testing.T) {
	e := propertyEngine(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("score stays in [0,100] and level follows thresholds", prop.ForAll(
		func(to, fn string, value float64, urgent bool, activity int, limit float64, timelock int) bool {
			engine := *e
			engine.activity = FixedActivity(activity)
			intent := TransactionIntent{
				To:           to,
				Value:        strconv.FormatFloat(value, 'f', 4, 64),
				FunctionName: fn,
				IsUrgent:     urgent,
			}
			policy := Policy{DailyLimitEth: decimal.NewFromFloat(limit), TimelockHours: timelock}

			analysis, err := engine.Analyze(context.Background(), intent, policy)
			if err != nil {
				return false
			}
			if analysis.Score < 0 || analysis.Score > 100 {
				return false
			}
			if analysis.Level != LevelForScore(analysis.Score) {
				return false
			}
			switch analysis.Action {
			case ActionGuardianRequired:
				return analysis.DelayHours >= 24
			case ActionAllow:
				return analysis.DelayHours == 0 && analysis.Score >= 70
			case ActionBlock:
				return analysis.Score < 20
			}
			return true
		},
		genDestination,
		genFunction,
		gen.Float64Range(0, 100),
		gen.Bool(),
		gen.IntRange(0, 10),
		gen.Float64Range(0.1, 50),
		gen.IntRange(1, 72),
	))

	properties.TestingRun(t)
}

func TestScamDestinationAlwaysBlocks(t *testing.T) {
	e := propertyEngine(t)
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("flagged destination blocks regardless of other fields", prop.ForAll(
		func(prefix, fn string, value float64, urgent bool) bool {
			intent := TransactionIntent{
				To:           "0x" + prefix + "bad",
				Value:        strconv.FormatFloat(value, 'f', 2, 64),
				FunctionName: fn,
				IsUrgent:     urgent,
			}
			analysis, err := e.Analyze(context.Background(), intent, testPolicy())
			if err != nil {
				return false
			}
			return analysis.Score == 0 &&
				analysis.Level == LevelCritical &&
				analysis.Action == ActionBlock &&
				len(analysis.Findings) == 1 &&
				analysis.Findings[0].Type == LevelCritical
		},
		gen.AlphaString(),
		genFunction,
		gen.Float64Range(0, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestCriticalFindingsLeadTheList(t *testing.T) {
	e := propertyEngine(t)
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("a CRITICAL finding is only ever first", prop.ForAll(
		func(to, fn string, urgent bool) bool {
			analysis, err := e.Analyze(context.Background(), TransactionIntent{To: to, Value: "1", FunctionName: fn, IsUrgent: urgent}, testPolicy())
			if err != nil {
				return false
			}
			for i, f := range analysis.Findings {
				if f.Type == LevelCritical && i != 0 {
					return false
				}
			}
			return true
		},
		gen.OneConstOf("0xUNKNOWN", "0xscam", knownVerified),
		genFunction,
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestParseAmountAcceptsExactlyTheWeiRange(t *testing.T) {
	maxWei := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("accepted amounts are whole wei within uint256", prop.ForAll(
		func(mantissa int64, exp int) bool {
			raw := fmt.Sprintf("%de%d", mantissa, exp)
			d, err := ParseAmount(raw)

			wei := new(big.Rat).SetInt64(mantissa)
			scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(exp+MaxAmountDecimals))), nil)
			if exp+MaxAmountDecimals >= 0 {
				wei.Mul(wei, new(big.Rat).SetInt(scale))
			} else {
				wei.Quo(wei, new(big.Rat).SetInt(scale))
			}
			fits := wei.IsInt() && wei.Num().CmpAbs(maxWei) <= 0

			if err != nil {
				return !fits && errors.Is(err, ErrAmountOutOfRange)
			}
			return fits && d.Equal(decimal.New(mantissa, int32(exp)))
		},
		gen.Int64Range(1, 999_999),
		gen.IntRange(-40, 90),
	))

	properties.TestingRun(t)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
