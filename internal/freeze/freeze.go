// Package freeze implements the time-bounded emergency lock on a vault.
//
// Expiry is host driven: once now >= Until the freeze no longer blocks
// anything (IsFrozen is derived), but Active only flips back when someone
// calls Deactivate or ExpireIfDue.
package freeze

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vault-guard/internal/alerting"
)

// ErrInvalidDuration is returned for a non-positive or over-long duration.
var ErrInvalidDuration = errors.New("invalid freeze duration")

// DefaultMaxHours caps a single activation at seven days.
const DefaultMaxHours = 168

// State is a snapshot of the freeze. Until is only set while Active.
type State struct {
	Active bool       `json:"active"`
	Until  *time.Time `json:"until,omitempty"`
}

// Expired reports whether an active freeze has passed its deadline.
func (s State) Expired(now time.Time) bool {
	return s.Active && s.Until != nil && !now.Before(*s.Until)
}

// InEffect reports whether the freeze currently blocks outbound actions.
func (s State) InEffect(now time.Time) bool {
	return s.Active && !s.Expired(now)
}

// Remaining is the time left before expiry, zero when not in effect.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.InEffect(now) || s.Until == nil {
		return 0
	}
	return s.Until.Sub(now)
}

func (s State) clone() State {
	if s.Until == nil {
		return s
	}
	until := *s.Until
	return State{Active: s.Active, Until: &until}
}

// Options configure a Freeze.
type Options struct {
	Account   string
	MaxHours  int
	Publisher alerting.Publisher
	Now       func() time.Time
	// Initial restores persisted state.
	Initial State
}

// Freeze guards one vault.
type Freeze struct {
	mu        sync.Mutex
	account   string
	maxHours  int
	publisher alerting.Publisher
	now       func() time.Time
	state     State
}

// New creates a freeze, inactive unless opts.Initial says otherwise.
func New(opts Options) *Freeze {
	f := &Freeze{
		account:   opts.Account,
		maxHours:  opts.MaxHours,
		publisher: opts.Publisher,
		now:       opts.Now,
		state:     opts.Initial.clone(),
	}
	if f.maxHours <= 0 {
		f.maxHours = DefaultMaxHours
	}
	if f.publisher == nil {
		f.publisher = alerting.Nop
	}
	if f.now == nil {
		f.now = time.Now
	}
	if !f.state.Active {
		f.state.Until = nil
	}
	return f
}

// Activate locks the vault for durationHours from now. Re-activating an
// active freeze replaces its deadline.
func (f *Freeze) Activate(durationHours int) (State, error) {
	if durationHours <= 0 || durationHours > f.maxHours {
		return State{}, fmt.Errorf("%w: %d hours (allowed 1-%d)", ErrInvalidDuration, durationHours, f.maxHours)
	}

	until := f.now().Add(time.Duration(durationHours) * time.Hour)
	f.mu.Lock()
	f.state = State{Active: true, Until: &until}
	snapshot := f.state.clone()
	f.mu.Unlock()

	f.publish(alerting.PriorityCritical, "Emergency Freeze Activated",
		fmt.Sprintf("All transactions locked for %d hours. Vault is now in emergency mode.", durationHours))
	return snapshot, nil
}

// Deactivate clears the freeze. It is a no-op, with no event, when the
// freeze is already inactive.
func (f *Freeze) Deactivate() State {
	f.mu.Lock()
	if !f.state.Active {
		f.mu.Unlock()
		return State{}
	}
	f.state = State{}
	f.mu.Unlock()

	f.publish(alerting.PriorityHigh, "Emergency Freeze Deactivated", "Vault has returned to normal operation mode.")
	return State{}
}

// ExpireIfDue deactivates an expired freeze and reports whether it did.
func (f *Freeze) ExpireIfDue(now time.Time) bool {
	f.mu.Lock()
	expired := f.state.Expired(now)
	f.mu.Unlock()
	if !expired {
		return false
	}
	f.Deactivate()
	return true
}

// State returns the current snapshot.
func (f *Freeze) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// IsFrozen reports whether outbound actions are blocked at now.
func (f *Freeze) IsFrozen(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.InEffect(now)
}

func (f *Freeze) publish(priority alerting.Priority, title, message string) {
	f.publisher.Publish(alerting.Event{
		Account:  f.account,
		Type:     alerting.TypeSecurity,
		Priority: priority,
		Title:    title,
		Message:  message,
	})
}
