package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vault-guard/internal/alerting"
	"vault-guard/internal/freeze"
	"vault-guard/internal/metrics"
	"vault-guard/internal/risk"
	"vault-guard/internal/settings"
	"vault-guard/internal/storage"
	"vault-guard/internal/timelock"
)

// Outcome describes what Submit did with an intent.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeQueued   Outcome = "queued"
	OutcomeBlocked  Outcome = "blocked"
)

// Submission is the result of Submit.
type Submission struct {
	Outcome  Outcome                      `json:"outcome"`
	Analysis risk.RiskAnalysis            `json:"analysis"`
	Pending  *timelock.PendingTransaction `json:"pending,omitempty"`
}

var levelPriority = map[risk.Level]alerting.Priority{
	risk.LevelSafe:     alerting.PriorityLow,
	risk.LevelCaution:  alerting.PriorityMedium,
	risk.LevelDanger:   alerting.PriorityHigh,
	risk.LevelCritical: alerting.PriorityCritical,
}

// Analyze scores intent against the account's current policy. Nothing is
// queued.
func (s *Service) Analyze(ctx context.Context, account string, intent risk.TransactionIntent) (risk.RiskAnalysis, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return risk.RiskAnalysis{}, err
	}
	v, err := s.vault(ctx, account)
	if err != nil {
		return risk.RiskAnalysis{}, err
	}
	return s.analyze(ctx, v, intent)
}

func (s *Service) analyze(ctx context.Context, v *vault, intent risk.TransactionIntent) (risk.RiskAnalysis, error) {
	if s.engine == nil {
		return risk.RiskAnalysis{}, ErrEngineMissing
	}
	// Activity and balance lookups are keyed by the vault, never by a
	// caller-supplied sender.
	intent.From = v.account

	label := intent.FunctionName
	if label == "" {
		label = "transaction"
	}
	publish(v.notify, alerting.TypeSecurity, alerting.PriorityMedium, "Transaction Analysis Started",
		fmt.Sprintf("Analyzing %s to %s...", label, shorten(intent.To, 8)))

	analysis, err := s.engine.Analyze(ctx, intent, v.settings.Policy())
	if err != nil {
		metrics.AnalysisErrors.Inc()
		if !errors.Is(err, risk.ErrInvalidIntent) && ctx.Err() == nil {
			publish(v.notify, alerting.TypeSystem, alerting.PriorityHigh, "Analysis Error", "Failed to complete transaction analysis")
		}
		return risk.RiskAnalysis{}, err
	}

	metrics.AnalysesTotal.WithLabelValues(string(analysis.Action)).Inc()
	metrics.RiskScore.Observe(float64(analysis.Score))
	publish(v.notify, alerting.TypeSecurity, levelPriority[analysis.Level],
		fmt.Sprintf("Risk Assessment: %s", analysis.Level),
		fmt.Sprintf("Confidence Score: %d/100. %d findings detected.", analysis.Score, len(analysis.Findings)))

	s.logger.Info().
		Str("account", v.account).
		Str("to", intent.To).
		Int("score", analysis.Score).
		Str("level", string(analysis.Level)).
		Str("action", string(analysis.Action)).
		Msg("analysis completed")

	s.recordAssessment(ctx, v.account, intent, analysis)
	return analysis, nil
}

// Submit analyses intent and routes it by the recommended action: ALLOW is
// reported executed, DELAY and GUARDIAN_REQUIRED are queued, BLOCK is
// reported and dropped.
func (s *Service) Submit(ctx context.Context, account string, intent risk.TransactionIntent) (Submission, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return Submission{}, err
	}
	v, err := s.vault(ctx, account)
	if err != nil {
		return Submission{}, err
	}

	analysis, err := s.analyze(ctx, v, intent)
	if err != nil {
		return Submission{}, err
	}

	unlock := s.locks.Lock(account)
	defer unlock()

	// Refused submissions do not count towards recent activity.
	if analysis.Action != risk.ActionBlock && v.freeze.IsFrozen(s.opts.Now()) {
		return Submission{}, ErrVaultFrozen
	}
	if s.activity != nil {
		s.activity.Record(account)
	}

	result := Submission{Analysis: analysis}
	asset := s.assetOf(intent)

	switch analysis.Action {
	case risk.ActionAllow:
		result.Outcome = OutcomeExecuted
		publish(v.notify, alerting.TypeTransaction, alerting.PriorityLow, "Transaction Secure",
			fmt.Sprintf("Sent %s %s", intent.Value, asset))
	case risk.ActionBlock:
		result.Outcome = OutcomeBlocked
		publish(v.notify, alerting.TypeTransaction, alerting.PriorityHigh, "Transaction Blocked",
			fmt.Sprintf("Transaction blocked: %s %s", intent.Value, asset))
	default:
		entry, err := v.queue.Enqueue(intent, analysis, v.settings.Policy())
		if err != nil {
			return Submission{}, err
		}
		if err := s.savePending(ctx, entry); err != nil {
			return Submission{}, err
		}
		metrics.QueueTransitionsTotal.WithLabelValues(string(entry.Status)).Inc()
		result.Outcome = OutcomeQueued
		result.Pending = &entry
	}

	s.logger.Info().Str("account", account).Str("outcome", string(result.Outcome)).Msg("submission routed")
	return result, nil
}

// Pending lists every queue entry of the account in index order.
func (s *Service) Pending(ctx context.Context, account string) ([]timelock.PendingTransaction, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return nil, err
	}
	v, err := s.vault(ctx, account)
	if err != nil {
		return nil, err
	}
	return v.queue.List(), nil
}

// Cancel moves a pending entry to CANCELLED. Allowed while frozen.
func (s *Service) Cancel(ctx context.Context, account string, index int) (timelock.PendingTransaction, error) {
	return s.resolve(ctx, account, index, (*timelock.Queue).Cancel)
}

// Execute moves a pending entry to EXECUTED.
func (s *Service) Execute(ctx context.Context, account string, index int) (timelock.PendingTransaction, error) {
	return s.resolve(ctx, account, index, (*timelock.Queue).Execute)
}

func (s *Service) resolve(ctx context.Context, account string, index int, op func(*timelock.Queue, int) (timelock.PendingTransaction, error)) (timelock.PendingTransaction, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return timelock.PendingTransaction{}, err
	}
	unlock := s.locks.Lock(account)
	defer unlock()

	v, err := s.vault(ctx, account)
	if err != nil {
		return timelock.PendingTransaction{}, err
	}
	entry, err := op(v.queue, index)
	if err != nil {
		return timelock.PendingTransaction{}, err
	}
	if err := s.savePending(ctx, entry); err != nil {
		return timelock.PendingTransaction{}, err
	}
	metrics.QueueTransitionsTotal.WithLabelValues(string(entry.Status)).Inc()
	s.logger.Info().Str("account", account).Int("index", index).Str("status", string(entry.Status)).Msg("pending transaction resolved")
	return entry, nil
}

// FreezeState returns the account's freeze snapshot.
func (s *Service) FreezeState(ctx context.Context, account string) (freeze.State, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return freeze.State{}, err
	}
	v, err := s.vault(ctx, account)
	if err != nil {
		return freeze.State{}, err
	}
	return v.freeze.State(), nil
}

// ActivateFreeze locks the vault for durationHours.
func (s *Service) ActivateFreeze(ctx context.Context, account string, durationHours int) (freeze.State, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return freeze.State{}, err
	}
	unlock := s.locks.Lock(account)
	defer unlock()

	v, err := s.vault(ctx, account)
	if err != nil {
		return freeze.State{}, err
	}
	state, err := v.freeze.Activate(durationHours)
	if err != nil {
		return freeze.State{}, err
	}
	if err := s.saveFreeze(ctx, v); err != nil {
		return freeze.State{}, err
	}
	metrics.FreezeActivationsTotal.WithLabelValues("activate").Inc()
	s.logger.Warn().Str("account", account).Int("hours", durationHours).Msg("emergency freeze activated")
	return state, nil
}

// DeactivateFreeze lifts the freeze. Lifting an inactive freeze is a no-op.
func (s *Service) DeactivateFreeze(ctx context.Context, account string) (freeze.State, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return freeze.State{}, err
	}
	unlock := s.locks.Lock(account)
	defer unlock()

	v, err := s.vault(ctx, account)
	if err != nil {
		return freeze.State{}, err
	}
	if !v.freeze.State().Active {
		return freeze.State{}, nil
	}
	state := v.freeze.Deactivate()
	if err := s.saveFreeze(ctx, v); err != nil {
		return freeze.State{}, err
	}
	metrics.FreezeActivationsTotal.WithLabelValues("deactivate").Inc()
	s.logger.Info().Str("account", account).Msg("emergency freeze deactivated")
	return state, nil
}

// Settings returns the account's policy.
func (s *Service) Settings(ctx context.Context, account string) (settings.Settings, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return settings.Settings{}, err
	}
	v, err := s.vault(ctx, account)
	if err != nil {
		return settings.Settings{}, err
	}
	return v.settings.Get(), nil
}

// UpdateSettings applies patch; later analyses see the new policy.
func (s *Service) UpdateSettings(ctx context.Context, account string, patch settings.Patch) (settings.Settings, error) {
	return s.mutateSettings(ctx, account, func(store *settings.Store) (settings.Settings, error) {
		return store.Update(patch)
	})
}

// AddGuardian registers a guardian and returns the updated settings.
func (s *Service) AddGuardian(ctx context.Context, account string, g settings.Guardian) (settings.Settings, error) {
	return s.mutateSettings(ctx, account, func(store *settings.Store) (settings.Settings, error) {
		if _, err := store.AddGuardian(g); err != nil {
			return settings.Settings{}, err
		}
		return store.Get(), nil
	})
}

// RemoveGuardian drops the guardian with id.
func (s *Service) RemoveGuardian(ctx context.Context, account, id string) (settings.Settings, error) {
	return s.mutateSettings(ctx, account, func(store *settings.Store) (settings.Settings, error) {
		return store.RemoveGuardian(id)
	})
}

func (s *Service) mutateSettings(ctx context.Context, account string, op func(*settings.Store) (settings.Settings, error)) (settings.Settings, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return settings.Settings{}, err
	}
	unlock := s.locks.Lock(account)
	defer unlock()

	v, err := s.vault(ctx, account)
	if err != nil {
		return settings.Settings{}, err
	}
	updated, err := op(v.settings)
	if err != nil {
		return settings.Settings{}, err
	}
	if err := s.saveSettings(ctx, v); err != nil {
		return settings.Settings{}, err
	}
	s.logger.Info().Str("account", account).Msg("settings updated")
	return updated, nil
}

// Notifications lists the newest feed events of the account.
func (s *Service) Notifications(account string, limit int) ([]alerting.Event, int, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return nil, 0, err
	}
	if s.feed == nil {
		return []alerting.Event{}, 0, nil
	}
	return s.feed.List(account, limit), s.feed.UnreadCount(account), nil
}

// MarkNotificationsRead marks the given events read, or every event of the
// account when ids is empty.
func (s *Service) MarkNotificationsRead(account string, ids []string) error {
	account, err := normalizeAccount(account)
	if err != nil {
		return err
	}
	if s.feed == nil {
		return nil
	}
	if len(ids) == 0 {
		s.feed.MarkAllRead(account)
		return nil
	}
	for _, id := range ids {
		s.feed.MarkRead(account, id)
	}
	return nil
}

// DeleteNotification removes one event from the account's feed.
func (s *Service) DeleteNotification(account, id string) error {
	account, err := normalizeAccount(account)
	if err != nil {
		return err
	}
	if s.feed == nil || !s.feed.Delete(account, id) {
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	return nil
}

// ClearNotifications drops every event of the account.
func (s *Service) ClearNotifications(account string) error {
	account, err := normalizeAccount(account)
	if err != nil {
		return err
	}
	if s.feed != nil {
		s.feed.Clear(account)
	}
	return nil
}

// History returns the most recent assessments of account, or of every
// account when account is empty.
func (s *Service) History(ctx context.Context, account string, limit int) ([]storage.AssessmentRecord, error) {
	if s.assessments == nil {
		return nil, storage.ErrNotConfigured
	}
	if account != "" {
		normalized, err := normalizeAccount(account)
		if err != nil {
			return nil, err
		}
		account = normalized
	}
	return s.assessments.ListRecentAssessments(ctx, account, limit)
}

// HistoryBetween returns assessments created in [from, to).
func (s *Service) HistoryBetween(ctx context.Context, account string, from, to time.Time, limit int) ([]storage.AssessmentRecord, error) {
	if s.assessments == nil {
		return nil, storage.ErrNotConfigured
	}
	if account != "" {
		normalized, err := normalizeAccount(account)
		if err != nil {
			return nil, err
		}
		account = normalized
	}
	return s.assessments.ListAssessmentsBetween(ctx, account, from, to, limit)
}

// PruneHistory deletes assessments created before olderThan and returns how
// many were removed along with how many remain.
func (s *Service) PruneHistory(ctx context.Context, olderThan time.Time) (int64, int64, error) {
	if s.assessments == nil {
		return 0, 0, storage.ErrNotConfigured
	}
	deleted, err := s.assessments.DeleteAssessmentsBefore(ctx, olderThan)
	if err != nil {
		return 0, 0, err
	}
	remaining, err := s.assessments.CountAssessments(ctx)
	if err != nil {
		return deleted, 0, err
	}
	s.logger.Info().Int64("deleted", deleted).Int64("remaining", remaining).Time("before", olderThan).Msg("assessment history pruned")
	return deleted, remaining, nil
}

func (s *Service) recordAssessment(ctx context.Context, account string, intent risk.TransactionIntent, analysis risk.RiskAnalysis) {
	if s.assessments == nil {
		return
	}
	rec, err := assessmentRecord(account, intent, analysis)
	if err == nil {
		_, err = s.assessments.InsertAssessment(ctx, rec)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("account", account).Msg("failed to persist assessment")
	}
}

func publish(p alerting.Publisher, kind alerting.EventType, priority alerting.Priority, title, message string) {
	p.Publish(alerting.Event{Type: kind, Priority: priority, Title: title, Message: message})
}

func (s *Service) assetOf(intent risk.TransactionIntent) string {
	if intent.Token != "" {
		return intent.Token
	}
	return s.engine.NativeSymbol()
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func parseValue(v string) (decimal.Decimal, error) {
	d, err := risk.ParseAmount(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse value %q: %w", v, err)
	}
	return d, nil
}
