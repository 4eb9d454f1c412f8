package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

var tenfold = decimal.NewFromInt(10)

// evaluation is the scratch state threaded through the rules of one call.
type evaluation struct {
	score    int
	findings []Finding
	delay    int
	known    bool
	metadata *ContractMetadata

	intent TransactionIntent
	value  decimal.Decimal
	policy Policy
}

func (ev *evaluation) penalize(points int, f Finding) {
	ev.score -= points
	ev.findings = append(ev.findings, f)
}

func (ev *evaluation) raiseDelay(hours int) {
	ev.delay = max(ev.delay, hours)
}

func (e *Engine) ruleRegistry(ev *evaluation) {
	info, ok := e.registry.Lookup(ev.intent.To)
	if !ok {
		ev.penalize(25, Finding{
			ID:             FindingUnknownContract,
			Type:           LevelCaution,
			Title:          "Unverified Contract",
			Description:    "This contract is not in the verified database. It may be newly deployed or unaudited.",
			Recommendation: "Proceed with caution. Consider waiting for community verification.",
		})
		ev.raiseDelay(6)
		return
	}

	ev.known = true
	ev.metadata = &ContractMetadata{
		Name:             info.Name,
		Verified:         info.Verified,
		AgeDays:          info.AgeDays,
		Category:         info.Category,
		TrustScore:       info.TrustScore,
		InteractionCount: info.InteractionCount,
	}
	if info.TrustScore >= 95 {
		ev.findings = append(ev.findings, Finding{
			ID:          FindingVerifiedContract,
			Type:        LevelSafe,
			Title:       "Verified Protocol",
			Description: fmt.Sprintf("%s is a verified %s protocol with %d+ days of operation.", info.Name, info.Category, info.AgeDays),
		})
	}
}

func (e *Engine) ruleUnlimitedApproval(ev *evaluation) {
	if !isApprovalCall(ev.intent.FunctionName) || !isUnlimitedApproval(ev.intent) {
		return
	}
	ev.penalize(35, Finding{
		ID:             FindingUnlimitedApproval,
		Type:           LevelDanger,
		Title:          "Unlimited Token Approval Requested",
		Description:    "This transaction requests permission to spend your entire token balance. This is a common attack vector used in approval-drain scams.",
		Recommendation: "Consider setting a specific spending limit instead of unlimited approval.",
	})
	ev.raiseDelay(12)
}

func (e *Engine) ruleMagnitude(ev *evaluation) {
	symbol := e.opts.NativeSymbol
	switch {
	case ev.value.GreaterThan(ev.policy.DailyLimitEth):
		ev.penalize(20, Finding{
			ID:             FindingExceedsLimit,
			Type:           LevelDanger,
			Title:          "Exceeds Daily Transfer Limit",
			Description:    fmt.Sprintf("This transaction of %s %s exceeds your configured daily limit of %s %s.", ev.value.String(), symbol, ev.policy.DailyLimitEth.String(), symbol),
			Recommendation: "Large transfers require additional timelock for security.",
		})
		ev.raiseDelay(max(ev.policy.TimelockHours, 12))
	case ev.value.GreaterThan(e.opts.AverageTxValue.Mul(tenfold)):
		ratio := ev.value.Div(e.opts.AverageTxValue).Round(0)
		ev.penalize(10, Finding{
			ID:             FindingUnusualAmount,
			Type:           LevelCaution,
			Title:          "Unusually Large Transfer",
			Description:    fmt.Sprintf("This amount is %sx larger than your typical transactions.", ratio.String()),
			Recommendation: "Double-check the amount before proceeding.",
		})
		ev.raiseDelay(4)
	}
}

func (e *Engine) rulePhishing(ev *evaluation) {
	if ev.known || !e.registry.MatchesPhishing(ev.intent.FunctionName) {
		return
	}
	ev.penalize(30, Finding{
		ID:             FindingPhishing,
		Type:           LevelDanger,
		Title:          "Suspicious Function Detected",
		Description:    fmt.Sprintf("The function %q matches known phishing patterns. Scammers often use urgent-sounding function names.", ev.intent.FunctionName),
		Recommendation: "Verify the legitimacy of this contract through official channels.",
	})
	ev.raiseDelay(24)
}

func (e *Engine) ruleUrgency(ev *evaluation) {
	if !ev.intent.IsUrgent {
		return
	}
	ev.penalize(15, Finding{
		ID:             FindingUrgency,
		Type:           LevelCaution,
		Title:          "Urgency Pattern Detected",
		Description:    "This action appears to be triggered by urgency. Scammers often create false urgency to bypass careful consideration.",
		Recommendation: "Take a moment to verify. Legitimate protocols rarely require immediate action.",
	})
	ev.raiseDelay(2)
}

func (e *Engine) ruleActivity(ctx context.Context, ev *evaluation) {
	count, err := e.activity.RecentActivity(ctx, ev.intent.From)
	if err != nil {
		e.logger.Warn().Err(err).Str("account", ev.intent.From).Msg("activity source failed; skipping activity rule")
		return
	}
	if count <= e.opts.ActivityThreshold {
		return
	}
	ev.penalize(10, Finding{
		ID:             FindingActivitySpike,
		Type:           LevelCaution,
		Title:          "Unusual Activity Pattern",
		Description:    fmt.Sprintf("%d transactions detected in a short period. This could indicate compromised access.", count),
		Recommendation: "Verify all recent transactions are legitimate.",
	})
}

func (e *Engine) ruleCustom(ev *evaluation) {
	if len(e.custom) == 0 {
		return
	}
	vars := map[string]any{
		"intent": map[string]any{
			"to":       ev.intent.To,
			"from":     ev.intent.From,
			"function": ev.intent.FunctionName,
			"token":    ev.intent.Token,
			"value":    ev.value.InexactFloat64(),
			"urgent":   ev.intent.IsUrgent,
			"args":     append([]string{}, ev.intent.Args...),
		},
		"policy": map[string]any{
			"daily_limit":    ev.policy.DailyLimitEth.InexactFloat64(),
			"timelock_hours": int64(ev.policy.TimelockHours),
		},
		"known": ev.known,
	}

	for _, rule := range e.custom {
		matched, err := rule.matches(vars)
		if err != nil {
			e.logger.Warn().Err(err).Msg("custom rule skipped")
			continue
		}
		if !matched {
			continue
		}
		ev.penalize(rule.rule.Penalty, rule.finding())
		if rule.rule.DelayHours > 0 {
			ev.raiseDelay(rule.rule.DelayHours)
		}
	}
}

func (e *Engine) simulate(ctx context.Context, ev *evaluation, analysis RiskAnalysis) *Simulation {
	symbol := e.opts.NativeSymbol
	asset := symbol
	if ev.intent.Token != "" {
		asset = ev.intent.Token
	}

	var change string
	switch {
	case ev.value.IsZero() && isApprovalCall(ev.intent.FunctionName):
		change = "Approval Only"
	case ev.value.IsZero() && ev.intent.FunctionName != "":
		change = "Contract Call"
	default:
		change = fmt.Sprintf("-%s %s", ev.value.String(), asset)
	}

	balance := e.balanceOf(ctx, ev.intent.From)
	if ev.intent.Token == "" {
		balance = balance.Sub(ev.value)
	}

	return &Simulation{
		AssetChange:     change,
		BalanceAfter:    fmt.Sprintf("%s %s", balance.StringFixed(2), symbol),
		GasEstimate:     e.opts.GasEstimate,
		ExpectedOutcome: expectedOutcome(analysis, ev.policy),
	}
}

func (e *Engine) balanceOf(ctx context.Context, account string) decimal.Decimal {
	if e.balances == nil || account == "" {
		return e.opts.ReferenceBalance
	}
	balance, err := e.balances.Balance(ctx, account)
	if err != nil {
		e.logger.Warn().Err(err).Str("account", account).Msg("balance lookup failed; using reference balance")
		return e.opts.ReferenceBalance
	}
	return balance
}

func expectedOutcome(analysis RiskAnalysis, policy Policy) string {
	switch analysis.Action {
	case ActionAllow:
		return "Transaction will execute immediately"
	case ActionDelay:
		hours := analysis.DelayHours
		if hours == 0 {
			hours = policy.TimelockHours
		}
		return fmt.Sprintf("Transaction queued with %dh timelock", hours)
	case ActionGuardianRequired:
		return "Requires guardian approval before execution"
	default:
		return "Transaction blocked for your protection"
	}
}
