// Package risk implements rule-based transaction risk scoring.
//
// A TransactionIntent is run through an ordered list of rules. Each rule may
// subtract from a running score that starts at 100, append a Finding and raise
// the candidate timelock. The clamped score determines the risk level and, together
// with the findings, the recommended action: allow, delay, require guardian
// approval, or block.
package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidIntent is returned when an intent is missing required fields or
// carries a malformed amount or calldata.
var ErrInvalidIntent = errors.New("invalid intent")

func invalidIntent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidIntent, fmt.Sprintf(format, args...))
}

// Level is the severity attached to a score or finding.
type Level string

const (
	LevelSafe     Level = "SAFE"
	LevelCaution  Level = "CAUTION"
	LevelDanger   Level = "DANGER"
	LevelCritical Level = "CRITICAL"
)

// Action is the recommended handling of an analysed intent.
type Action string

const (
	ActionAllow            Action = "ALLOW"
	ActionDelay            Action = "DELAY"
	ActionBlock            Action = "BLOCK"
	ActionGuardianRequired Action = "GUARDIAN_REQUIRED"
)

// Stable finding identifiers, one per rule.
const (
	FindingScam              = "scam-db"
	FindingVerifiedContract  = "verified-contract"
	FindingUnknownContract   = "unknown-contract"
	FindingUnlimitedApproval = "unlimited-approval"
	FindingExceedsLimit      = "exceeds-limit"
	FindingUnusualAmount     = "unusual-amount"
	FindingPhishing          = "phishing-signature"
	FindingUrgency           = "panic-detected"
	FindingActivitySpike     = "activity-spike"
)

// LevelForScore maps a clamped score onto a level: below 30 is critical,
// below 50 danger, below 80 caution, otherwise safe.
func LevelForScore(score int) Level {
	switch {
	case score < 30:
		return LevelCritical
	case score < 50:
		return LevelDanger
	case score < 80:
		return LevelCaution
	default:
		return LevelSafe
	}
}

// TransactionIntent is a proposed, unexecuted transaction.
type TransactionIntent struct {
	From         string   `json:"from,omitempty"`
	To           string   `json:"to"`
	Value        string   `json:"value"`
	Data         string   `json:"data,omitempty"`
	FunctionName string   `json:"functionName,omitempty"`
	Args         []string `json:"args,omitempty"`
	Token        string   `json:"token,omitempty"`
	IsUrgent     bool     `json:"isUrgent,omitempty"`
}

// Clone returns a deep copy so that queued entries never alias caller state.
func (i TransactionIntent) Clone() TransactionIntent {
	out := i
	if i.Args != nil {
		out.Args = append([]string(nil), i.Args...)
	}
	return out
}

// Finding is one observation produced by a rule.
type Finding struct {
	ID             string `json:"id"`
	Type           Level  `json:"type"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Simulation predicts the visible outcome of the intent.
type Simulation struct {
	AssetChange     string `json:"assetChange"`
	BalanceAfter    string `json:"balanceAfter"`
	GasEstimate     string `json:"gasEstimate"`
	ExpectedOutcome string `json:"expectedOutcome"`
}

// ContractMetadata is attached when the destination is a known contract.
type ContractMetadata struct {
	Name             string `json:"name"`
	Verified         bool   `json:"verified"`
	AgeDays          int    `json:"ageDays"`
	Category         string `json:"category"`
	TrustScore       int    `json:"trustScore"`
	InteractionCount int    `json:"interactionCount"`
}

// RiskAnalysis is the immutable result of one analysis.
type RiskAnalysis struct {
	Score            int               `json:"score"`
	Level            Level             `json:"level"`
	Findings         []Finding         `json:"findings"`
	Action           Action            `json:"action"`
	DelayHours       int               `json:"delayHours,omitempty"`
	Simulation       *Simulation       `json:"simulation,omitempty"`
	ContractMetadata *ContractMetadata `json:"contractMetadata,omitempty"`
}

// HasFinding reports whether a finding with id and severity is present.
func (a RiskAnalysis) HasFinding(id string, level Level) bool {
	for _, f := range a.Findings {
		if f.ID == id && f.Type == level {
			return true
		}
	}
	return false
}

// FindingIDs lists finding identifiers in order.
func (a RiskAnalysis) FindingIDs() []string {
	ids := make([]string, 0, len(a.Findings))
	for _, f := range a.Findings {
		ids = append(ids, f.ID)
	}
	return ids
}

// Clone returns a deep copy.
func (a RiskAnalysis) Clone() RiskAnalysis {
	out := a
	out.Findings = append([]Finding(nil), a.Findings...)
	if a.Simulation != nil {
		sim := *a.Simulation
		out.Simulation = &sim
	}
	if a.ContractMetadata != nil {
		meta := *a.ContractMetadata
		out.ContractMetadata = &meta
	}
	return out
}

// Policy is the user's read-only policy for one analysis.
type Policy struct {
	DailyLimitEth decimal.Decimal
	TimelockHours int
}

// ActivitySource reports how many transactions an account sent recently.
type ActivitySource interface {
	RecentActivity(ctx context.Context, account string) (int, error)
}

// BalanceSource reports an account's native balance.
type BalanceSource interface {
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
}

// FixedActivity is an ActivitySource that always reports the same count.
type FixedActivity int

// RecentActivity returns the fixed count.
func (f FixedActivity) RecentActivity(context.Context, string) (int, error) {
	return int(f), nil
}
