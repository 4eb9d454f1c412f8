// Package settings holds a vault owner's policy: daily limit, timelock and
// guardians. The risk engine only ever sees a read-only risk.Policy derived
// from it.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vault-guard/internal/risk"
)

var (
	// ErrInvalidSettings is returned when a value is out of range.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrGuardianNotFound is returned when removing an unknown guardian.
	ErrGuardianNotFound = errors.New("guardian not found")
)

// GuardianType classifies how a guardian confirms.
type GuardianType string

const (
	GuardianHardware GuardianType = "hardware"
	GuardianSocial   GuardianType = "social"
	GuardianBackup   GuardianType = "backup"
)

// Guardian is a designated approver. Only the count matters for policy;
// no signing is modelled.
type Guardian struct {
	ID      string       `json:"id" mapstructure:"id"`
	Name    string       `json:"name" mapstructure:"name"`
	Address string       `json:"address" mapstructure:"address"`
	Type    GuardianType `json:"type" mapstructure:"type"`
	Status  string       `json:"status" mapstructure:"status"`
	AddedAt time.Time    `json:"addedAt" mapstructure:"-"`
}

// Settings is one vault's policy.
type Settings struct {
	DailyLimitEth        decimal.Decimal `json:"dailyLimitEth"`
	TimelockHours        int             `json:"timelockHours"`
	GuardianCount        int             `json:"guardianCount"`
	Guardians            []Guardian      `json:"guardians"`
	NotificationsEnabled bool            `json:"notificationsEnabled"`
}

// Defaults is the starting policy: 5 ETH limit, 12h timelock, 3 guardians.
func Defaults() Settings {
	return Settings{
		DailyLimitEth:        decimal.RequireFromString("5.0"),
		TimelockHours:        12,
		GuardianCount:        3,
		NotificationsEnabled: true,
	}
}

// Policy is the engine's read-only view.
func (s Settings) Policy() risk.Policy {
	return risk.Policy{DailyLimitEth: s.DailyLimitEth, TimelockHours: s.TimelockHours}
}

// Validate checks ranges.
func (s Settings) Validate() error {
	var problems []string
	if !s.DailyLimitEth.IsPositive() {
		problems = append(problems, "daily limit must be positive")
	} else if err := risk.CheckAmount(s.DailyLimitEth); err != nil {
		problems = append(problems, "daily limit: "+err.Error())
	}
	if s.TimelockHours <= 0 || s.TimelockHours > risk.MaxDelayHours {
		problems = append(problems, fmt.Sprintf("timelock hours must be between 1 and %d", risk.MaxDelayHours))
	}
	if s.GuardianCount < 0 {
		problems = append(problems, "guardian count must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

func (s Settings) clone() Settings {
	out := s
	out.Guardians = append([]Guardian(nil), s.Guardians...)
	return out
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	DailyLimitEth        *string `json:"dailyLimitEth,omitempty"`
	TimelockHours        *int    `json:"timelockHours,omitempty"`
	GuardianCount        *int    `json:"guardianCount,omitempty"`
	NotificationsEnabled *bool   `json:"notificationsEnabled,omitempty"`
}

// Store guards one vault's settings.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	now      func() time.Time
}

// NewStore creates a store seeded with initial, which is not validated.
func NewStore(initial Settings, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{settings: initial.clone(), now: now}
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// Policy returns the engine view of the current settings.
func (s *Store) Policy() risk.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Policy()
}

// Update applies patch atomically. Nothing changes when the result would be
// invalid.
func (s *Store) Update(patch Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.clone()
	if patch.DailyLimitEth != nil {
		limit, err := risk.ParseAmount(*patch.DailyLimitEth)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: daily limit: %v", ErrInvalidSettings, err)
		}
		next.DailyLimitEth = limit
	}
	if patch.TimelockHours != nil {
		next.TimelockHours = *patch.TimelockHours
	}
	if patch.GuardianCount != nil {
		next.GuardianCount = *patch.GuardianCount
	}
	if patch.NotificationsEnabled != nil {
		next.NotificationsEnabled = *patch.NotificationsEnabled
	}
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	s.settings = next
	return next.clone(), nil
}

// AddGuardian appends g and increments the guardian count. An empty ID is
// generated.
func (s *Store) AddGuardian(g Guardian) (Guardian, error) {
	g.Name = strings.TrimSpace(g.Name)
	g.Address = strings.TrimSpace(g.Address)
	if g.Name == "" || g.Address == "" {
		return Guardian{}, fmt.Errorf("%w: guardian name and address are required", ErrInvalidSettings)
	}
	switch g.Type {
	case GuardianHardware, GuardianSocial, GuardianBackup:
	case "":
		g.Type = GuardianSocial
	default:
		return Guardian{}, fmt.Errorf("%w: unknown guardian type %q", ErrInvalidSettings, g.Type)
	}
	if g.Status == "" {
		g.Status = "pending"
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.AddedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.settings.Guardians {
		if existing.ID == g.ID {
			return Guardian{}, fmt.Errorf("%w: guardian %s already exists", ErrInvalidSettings, g.ID)
		}
	}
	s.settings.Guardians = append(s.settings.Guardians, g)
	s.settings.GuardianCount++
	return g, nil
}

// RemoveGuardian drops the guardian with id. The count never goes below
// zero.
func (s *Store) RemoveGuardian(id string) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Guardian, 0, len(s.settings.Guardians))
	found := false
	for _, g := range s.settings.Guardians {
		if g.ID == id {
			found = true
			continue
		}
		kept = append(kept, g)
	}
	if !found {
		return Settings{}, fmt.Errorf("remove %s: %w", id, ErrGuardianNotFound)
	}
	s.settings.Guardians = kept
	s.settings.GuardianCount = max(0, s.settings.GuardianCount-1)
	return s.settings.clone(), nil
}
