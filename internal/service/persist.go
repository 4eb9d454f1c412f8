package service

import (
	"encoding/json"
	"fmt"

	"vault-guard/internal/freeze"
	"vault-guard/internal/risk"
	"vault-guard/internal/settings"
	"vault-guard/internal/storage"
	"vault-guard/internal/timelock"
)

func pendingToRecord(p timelock.PendingTransaction) (storage.PendingRecord, error) {
	intent, err := json.Marshal(p.Intent)
	if err != nil {
		return storage.PendingRecord{}, fmt.Errorf("encode intent: %w", err)
	}
	analysis, err := json.Marshal(p.Analysis)
	if err != nil {
		return storage.PendingRecord{}, fmt.Errorf("encode analysis: %w", err)
	}
	return storage.PendingRecord{
		Account:       p.Account,
		Index:         p.Index,
		ID:            p.ID,
		Status:        string(p.Status),
		DelayHours:    p.DelayHours,
		CreatedAt:     p.CreatedAt,
		ExecuteAt:     p.ExecuteAt,
		ResolvedAt:    p.ResolvedAt,
		ReadyNotified: p.ReadyNotified,
		Intent:        intent,
		Analysis:      analysis,
	}, nil
}

func recordToPending(rec storage.PendingRecord) (timelock.PendingTransaction, error) {
	var intent risk.TransactionIntent
	if err := json.Unmarshal(rec.Intent, &intent); err != nil {
		return timelock.PendingTransaction{}, fmt.Errorf("decode intent of %s: %w", rec.ID, err)
	}
	var analysis risk.RiskAnalysis
	if err := json.Unmarshal(rec.Analysis, &analysis); err != nil {
		return timelock.PendingTransaction{}, fmt.Errorf("decode analysis of %s: %w", rec.ID, err)
	}
	return timelock.PendingTransaction{
		Index:         rec.Index,
		ID:            rec.ID,
		Account:       rec.Account,
		Intent:        intent,
		Analysis:      analysis,
		DelayHours:    rec.DelayHours,
		CreatedAt:     rec.CreatedAt,
		ExecuteAt:     rec.ExecuteAt,
		Status:        timelock.Status(rec.Status),
		ResolvedAt:    rec.ResolvedAt,
		ReadyNotified: rec.ReadyNotified,
	}, nil
}

func freezeToRecord(account string, s freeze.State) storage.FreezeRecord {
	return storage.FreezeRecord{Account: account, Active: s.Active, Until: s.Until}
}

func recordToFreeze(rec storage.FreezeRecord) freeze.State {
	if !rec.Active {
		return freeze.State{}
	}
	return freeze.State{Active: true, Until: rec.Until}
}

func settingsToRecord(account string, s settings.Settings) (storage.SettingsRecord, error) {
	guardians := s.Guardians
	if guardians == nil {
		guardians = []settings.Guardian{}
	}
	raw, err := json.Marshal(guardians)
	if err != nil {
		return storage.SettingsRecord{}, fmt.Errorf("encode guardians: %w", err)
	}
	return storage.SettingsRecord{
		Account:              account,
		DailyLimitEth:        s.DailyLimitEth,
		TimelockHours:        s.TimelockHours,
		GuardianCount:        s.GuardianCount,
		Guardians:            raw,
		NotificationsEnabled: s.NotificationsEnabled,
	}, nil
}

func recordToSettings(rec storage.SettingsRecord) (settings.Settings, error) {
	s := settings.Settings{
		DailyLimitEth:        rec.DailyLimitEth,
		TimelockHours:        rec.TimelockHours,
		GuardianCount:        rec.GuardianCount,
		NotificationsEnabled: rec.NotificationsEnabled,
	}
	if len(rec.Guardians) > 0 {
		if err := json.Unmarshal(rec.Guardians, &s.Guardians); err != nil {
			return settings.Settings{}, fmt.Errorf("decode guardians: %w", err)
		}
	}
	return s, nil
}

func assessmentRecord(account string, intent risk.TransactionIntent, analysis risk.RiskAnalysis) (storage.AssessmentRecord, error) {
	findings, err := json.Marshal(analysis.Findings)
	if err != nil {
		return storage.AssessmentRecord{}, fmt.Errorf("encode findings: %w", err)
	}
	value, err := parseValue(intent.Value)
	if err != nil {
		return storage.AssessmentRecord{}, err
	}
	return storage.AssessmentRecord{
		Account:      account,
		To:           intent.To,
		Value:        value,
		FunctionName: intent.FunctionName,
		Score:        analysis.Score,
		Level:        string(analysis.Level),
		Action:       string(analysis.Action),
		DelayHours:   analysis.DelayHours,
		Findings:     findings,
	}, nil
}
