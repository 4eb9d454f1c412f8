package risk

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vault-guard/internal/registry"
)

// Options tune the engine. Zero values fall back to DefaultOptions where a
// zero would make a rule meaningless.
type Options struct {
	// Latency is an artificial pause before scoring, used by interactive
	// clients for pacing. Zero disables it.
	Latency time.Duration
	// AverageTxValue is the reference "typical" transfer; transfers above ten
	// times this value are flagged as unusual.
	AverageTxValue decimal.Decimal
	// RecentActivity is the fixed activity count used when no ActivitySource
	// is attached.
	RecentActivity int
	// ActivityThreshold is the count above which the activity rule fires.
	ActivityThreshold int
	// ReferenceBalance is used for the simulated balance when no
	// BalanceSource is attached or it fails.
	ReferenceBalance decimal.Decimal
	GasEstimate      string
	NativeSymbol     string
	CustomRules      []CustomRule
}

// DefaultOptions returns the reference values used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Latency:           800 * time.Millisecond,
		AverageTxValue:    decimal.RequireFromString("0.5"),
		RecentActivity:    2,
		ActivityThreshold: 5,
		ReferenceBalance:  decimal.RequireFromString("14.52"),
		GasEstimate:       "0.0043 ETH",
		NativeSymbol:      "ETH",
	}
}

// Engine scores transaction intents. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	registry *registry.Registry
	opts     Options
	activity ActivitySource
	balances BalanceSource
	custom   []compiledRule
	logger   zerolog.Logger
}

// NewEngine creates an engine over reg. It fails only when a custom rule does
// not compile.
func NewEngine(reg *registry.Registry, opts Options, logger zerolog.Logger) (*Engine, error) {
	defaults := DefaultOptions()
	if reg == nil {
		reg = registry.Default()
	}
	if !opts.AverageTxValue.IsPositive() {
		opts.AverageTxValue = defaults.AverageTxValue
	}
	if opts.ActivityThreshold <= 0 {
		opts.ActivityThreshold = defaults.ActivityThreshold
	}
	if opts.GasEstimate == "" {
		opts.GasEstimate = defaults.GasEstimate
	}
	if opts.NativeSymbol == "" {
		opts.NativeSymbol = defaults.NativeSymbol
	}
	if opts.Latency < 0 {
		opts.Latency = 0
	}

	custom, err := compileRules(opts.CustomRules)
	if err != nil {
		return nil, err
	}

	return &Engine{
		registry: reg,
		opts:     opts,
		activity: FixedActivity(opts.RecentActivity),
		custom:   custom,
		logger:   logger.With().Str("component", "risk_engine").Logger(),
	}, nil
}

// WithActivity replaces the fixed activity count with a live source.
func (e *Engine) WithActivity(src ActivitySource) *Engine {
	if src != nil {
		e.activity = src
	}
	return e
}

// WithBalances attaches a balance source used for the simulation.
func (e *Engine) WithBalances(src BalanceSource) *Engine {
	e.balances = src
	return e
}

// NativeSymbol is the ticker used for native-value transfers.
func (e *Engine) NativeSymbol() string {
	return e.opts.NativeSymbol
}

// Analyze scores intent under policy. It returns ErrInvalidIntent for a
// missing destination, a missing, malformed or negative value, or malformed
// calldata, and ctx.Err() if ctx ends during the pacing delay. Identical
// inputs produce identical analyses.
func (e *Engine) Analyze(ctx context.Context, intent TransactionIntent, policy Policy) (RiskAnalysis, error) {
	intent, value, err := e.validate(intent)
	if err != nil {
		return RiskAnalysis{}, err
	}

	if err := e.pace(ctx); err != nil {
		return RiskAnalysis{}, err
	}

	if e.registry.IsScam(intent.To) {
		return blockedAnalysis(), nil
	}

	ev := &evaluation{score: 100, intent: intent, value: value, policy: policy}
	e.ruleRegistry(ev)
	e.ruleUnlimitedApproval(ev)
	e.ruleMagnitude(ev)
	e.rulePhishing(ev)
	e.ruleUrgency(ev)
	e.ruleActivity(ctx, ev)
	e.ruleCustom(ev)

	return e.finish(ctx, ev), nil
}

func (e *Engine) validate(intent TransactionIntent) (TransactionIntent, decimal.Decimal, error) {
	intent = intent.Clone()
	intent.To = strings.TrimSpace(intent.To)
	if intent.To == "" {
		return intent, decimal.Decimal{}, invalidIntent("to is required")
	}

	raw := strings.TrimSpace(intent.Value)
	if raw == "" {
		return intent, decimal.Decimal{}, invalidIntent("value is required")
	}
	value, err := ParseAmount(raw)
	if errors.Is(err, ErrAmountOutOfRange) {
		return intent, decimal.Decimal{}, invalidIntent("value %q: %v", shortValue(raw), err)
	}
	if err != nil {
		return intent, decimal.Decimal{}, invalidIntent("value %q is not a decimal", shortValue(raw))
	}
	if value.IsNegative() {
		return intent, decimal.Decimal{}, invalidIntent("value %q is negative", intent.Value)
	}
	intent.Value = raw

	intent, err = decodeCall(intent)
	if err != nil {
		return intent, decimal.Decimal{}, err
	}
	return intent, value, nil
}

func shortValue(raw string) string {
	if len(raw) > 32 {
		return raw[:32] + "..."
	}
	return raw
}

func (e *Engine) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.opts.Latency <= 0 {
		return nil
	}
	timer := time.NewTimer(e.opts.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func blockedAnalysis() RiskAnalysis {
	return RiskAnalysis{
		Score: 0,
		Level: LevelCritical,
		Findings: []Finding{{
			ID:             FindingScam,
			Type:           LevelCritical,
			Title:          "Known Malicious Contract",
			Description:    "This address has been flagged in the threat intelligence database for phishing, drainer activity, or confirmed scams.",
			Recommendation: "Do not proceed. Report this address if you received it from a suspicious source.",
		}},
		Action: ActionBlock,
		Simulation: &Simulation{
			AssetChange:     "BLOCKED",
			BalanceAfter:    "Protected",
			GasEstimate:     "0",
			ExpectedOutcome: "Transaction prevented - assets protected",
		},
	}
}

func (e *Engine) finish(ctx context.Context, ev *evaluation) RiskAnalysis {
	score := ev.score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	analysis := RiskAnalysis{
		Score:            score,
		Level:            LevelForScore(score),
		Findings:         ev.findings,
		ContractMetadata: ev.metadata,
	}
	if analysis.Findings == nil {
		analysis.Findings = []Finding{}
	}

	delay := ev.delay
	switch {
	case score < 20:
		analysis.Action = ActionBlock
		delay = 0
	case score < 40 || analysis.HasFinding(FindingUnlimitedApproval, LevelDanger):
		analysis.Action = ActionGuardianRequired
		delay = max(delay, 24)
	case score < 70 || delay > 0:
		analysis.Action = ActionDelay
	default:
		analysis.Action = ActionAllow
	}
	analysis.DelayHours = delay
	analysis.Simulation = e.simulate(ctx, ev, analysis)
	return analysis
}
