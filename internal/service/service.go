// Package service hosts the per-account vaults: it routes analyses to the
// timelock queue, persists queue, freeze and settings state, and drives the
// polling sweep that surfaces ready transactions and expired freezes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vault-guard/internal/alerting"
	"vault-guard/internal/freeze"
	"vault-guard/internal/registry"
	"vault-guard/internal/risk"
	"vault-guard/internal/scheduler"
	"vault-guard/internal/settings"
	"vault-guard/internal/storage"
	"vault-guard/internal/timelock"
)

var (
	// ErrVaultFrozen is returned by outbound operations while the emergency
	// freeze is in effect.
	ErrVaultFrozen = timelock.ErrVaultFrozen
	// ErrInvalidAccount is returned for an empty account identifier.
	ErrInvalidAccount = errors.New("invalid account")
	// ErrEngineMissing is returned by analysis operations when no engine is wired.
	ErrEngineMissing = errors.New("risk engine not configured")
	// ErrNotificationNotFound is returned when a feed event id is unknown to
	// the account.
	ErrNotificationNotFound = errors.New("notification not found")
)

// Deps are the collaborators a Service drives. Only Engine is required;
// persistence, locking and the scheduler are optional.
type Deps struct {
	Engine      *risk.Engine
	Publisher   alerting.Publisher
	Feed        *alerting.Feed
	Vaults      storage.VaultStore
	Assessments storage.AssessmentStore
	Locker      storage.AdvisoryLocker
	Scheduler   *scheduler.Scheduler
	Activity    *risk.ActivityWindow
}

// Options tune vault behaviour.
type Options struct {
	// Defaults seed the settings of accounts without persisted settings.
	Defaults       settings.Settings
	StrictExecute  bool
	MaxFreezeHours int
	// LockKey is the postgres advisory lock guarding the sweep; zero disables it.
	LockKey int64
	Now     func() time.Time
}

// Service orchestrates vaults, persistence, and alerting.
type Service struct {
	engine      *risk.Engine
	publisher   alerting.Publisher
	feed        *alerting.Feed
	vaults      storage.VaultStore
	assessments storage.AssessmentStore
	locker      storage.AdvisoryLocker
	scheduler   *scheduler.Scheduler
	activity    *risk.ActivityWindow
	logger      zerolog.Logger
	opts        Options

	locks accountLocks

	mu     sync.RWMutex
	loaded map[string]*vault
}

// vault bundles the in-memory state of one account.
type vault struct {
	account  string
	settings *settings.Store
	freeze   *freeze.Freeze
	queue    *timelock.Queue
	notify   alerting.Publisher
}

// New constructs the vault service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Defaults.TimelockHours == 0 {
		opts.Defaults = settings.Defaults()
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = alerting.Nop
	}
	if deps.Feed != nil {
		publisher = alerting.Fanout{deps.Feed, publisher}
	}

	locker := deps.Locker
	if locker == nil {
		if l, ok := deps.Vaults.(storage.AdvisoryLocker); ok {
			locker = l
		}
	}

	return &Service{
		engine:      deps.Engine,
		publisher:   publisher,
		feed:        deps.Feed,
		vaults:      deps.Vaults,
		assessments: deps.Assessments,
		locker:      locker,
		scheduler:   deps.Scheduler,
		activity:    deps.Activity,
		logger:      logger.With().Str("component", "service").Logger(),
		opts:        opts,
		loaded:      make(map[string]*vault),
	}
}

// Run restores persisted vaults and then sweeps on every scheduler tick
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if err := s.restore(ctx); err != nil {
		return err
	}
	return s.scheduler.Run(ctx, s.Tick)
}

// Tick runs one sweep when this process holds the advisory lock.
func (s *Service) Tick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip sweep because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}
	return s.Sweep(ctx, at)
}

// Sweep expires due freezes and announces newly ready transactions for every
// loaded vault. Entry status never changes here.
func (s *Service) Sweep(ctx context.Context, now time.Time) error {
	var errs []error
	for _, account := range s.accounts() {
		if err := s.sweepAccount(ctx, account, now); err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", account, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) sweepAccount(ctx context.Context, account string, now time.Time) error {
	unlock := s.locks.Lock(account)
	defer unlock()

	v, err := s.vault(ctx, account)
	if err != nil {
		return err
	}

	if v.freeze.ExpireIfDue(now) {
		s.logger.Info().Str("account", account).Msg("emergency freeze expired")
		if err := s.saveFreeze(ctx, v); err != nil {
			return err
		}
	}

	for _, entry := range v.queue.NotifyReady(now) {
		s.logger.Info().Str("account", account).Int("index", entry.Index).Str("id", entry.ID).Msg("pending transaction ready")
		if err := s.savePending(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.loaded))
	for account := range s.loaded {
		out = append(out, account)
	}
	return out
}

// restore loads every account with live persisted state so the sweep sees
// it without waiting for a request.
func (s *Service) restore(ctx context.Context) error {
	if s.vaults == nil {
		return nil
	}
	accounts, err := s.vaults.ListActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}
	for _, account := range accounts {
		if _, err := s.vault(ctx, account); err != nil {
			return err
		}
	}
	s.logger.Info().Int("accounts", len(accounts)).Msg("vaults restored")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// vault returns the loaded vault for account, restoring it from storage on
// first use.
func (s *Service) vault(ctx context.Context, account string) (*vault, error) {
	s.mu.RLock()
	v, ok := s.loaded[account]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	built, err := s.loadVault(ctx, account)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.loaded[account]; ok {
		return existing, nil
	}
	s.loaded[account] = built
	return built, nil
}

func (s *Service) loadVault(ctx context.Context, account string) (*vault, error) {
	initial := s.opts.Defaults
	var frozen freeze.State
	var entries []timelock.PendingTransaction

	if s.vaults != nil {
		rec, found, err := s.vaults.LoadSettings(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if found {
			if initial, err = recordToSettings(rec); err != nil {
				return nil, err
			}
		}

		freezeRec, found, err := s.vaults.LoadFreeze(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("load freeze: %w", err)
		}
		if found {
			frozen = recordToFreeze(freezeRec)
		}

		records, err := s.vaults.ListPending(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("load pending: %w", err)
		}
		for _, rec := range records {
			entry, err := recordToPending(rec)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}

	v := &vault{account: account}
	v.settings = settings.NewStore(initial, s.opts.Now)
	v.notify = s.vaultPublisher(v)
	v.freeze = freeze.New(freeze.Options{
		Account:   account,
		MaxHours:  s.opts.MaxFreezeHours,
		Publisher: v.notify,
		Now:       s.opts.Now,
		Initial:   frozen,
	})
	v.queue = timelock.NewQueue(timelock.Options{
		Account:       account,
		StrictExecute: s.opts.StrictExecute,
		Freeze:        v.freeze,
		Publisher:     v.notify,
		Now:           s.opts.Now,
		Entries:       entries,
	})

	s.logger.Debug().Str("account", account).Int("pending", len(entries)).Bool("frozen", frozen.Active).Msg("vault loaded")
	return v, nil
}

// vaultPublisher stamps events with the account and drops everything below
// critical while the account has notifications disabled.
func (s *Service) vaultPublisher(v *vault) alerting.Publisher {
	return alerting.PublisherFunc(func(event alerting.Event) {
		if event.Account == "" {
			event.Account = v.account
		}
		if !v.settings.Get().NotificationsEnabled && event.Priority != alerting.PriorityCritical {
			return
		}
		s.publisher.Publish(event.Stamp(s.opts.Now()))
	})
}

func (s *Service) savePending(ctx context.Context, entry timelock.PendingTransaction) error {
	if s.vaults == nil {
		return nil
	}
	rec, err := pendingToRecord(entry)
	if err != nil {
		return err
	}
	if err := s.vaults.SavePending(ctx, rec); err != nil {
		return fmt.Errorf("save pending %s: %w", entry.ID, err)
	}
	return nil
}

func (s *Service) saveFreeze(ctx context.Context, v *vault) error {
	if s.vaults == nil {
		return nil
	}
	if err := s.vaults.SaveFreeze(ctx, freezeToRecord(v.account, v.freeze.State())); err != nil {
		return fmt.Errorf("save freeze: %w", err)
	}
	return nil
}

func (s *Service) saveSettings(ctx context.Context, v *vault) error {
	if s.vaults == nil {
		return nil
	}
	rec, err := settingsToRecord(v.account, v.settings.Get())
	if err != nil {
		return err
	}
	if err := s.vaults.SaveSettings(ctx, rec); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func normalizeAccount(account string) (string, error) {
	normalized := registry.NormalizeAddress(account)
	if normalized == "" {
		return "", ErrInvalidAccount
	}
	return normalized, nil
}
