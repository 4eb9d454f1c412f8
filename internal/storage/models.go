package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PendingRecord is a persisted timelock entry. Intent and Analysis are kept
// as the JSON the API serves.
type PendingRecord struct {
	Account       string
	Index         int
	ID            string
	Status        string
	DelayHours    int
	CreatedAt     time.Time
	ExecuteAt     time.Time
	ResolvedAt    *time.Time
	ReadyNotified bool
	Intent        json.RawMessage
	Analysis      json.RawMessage
}

// FreezeRecord is the persisted emergency freeze of one account.
type FreezeRecord struct {
	Account   string
	Active    bool
	Until     *time.Time
	UpdatedAt time.Time
}

// SettingsRecord is the persisted policy of one account.
type SettingsRecord struct {
	Account              string
	DailyLimitEth        decimal.Decimal
	TimelockHours        int
	GuardianCount        int
	Guardians            json.RawMessage
	NotificationsEnabled bool
	UpdatedAt            time.Time
}

// AssessmentRecord audits one risk analysis.
type AssessmentRecord struct {
	ID           int64
	Account      string
	To           string
	Value        decimal.Decimal
	FunctionName string
	Score        int
	Level        string
	Action       string
	DelayHours   int
	Findings     json.RawMessage
	CreatedAt    time.Time
}
