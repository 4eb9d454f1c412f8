// Package timelock holds the per-account queue of delayed transactions.
//
// Entries move PENDING -> EXECUTED or PENDING -> CANCELLED and never back.
// Readiness is a derived read (now >= ExecuteAt); the queue never changes an
// entry's status because time passed.
package timelock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"vault-guard/internal/alerting"
	"vault-guard/internal/risk"
)

var (
	// ErrInvalidTransition is returned when cancel or execute targets an
	// entry that is no longer pending.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrVaultFrozen is returned by mutating operations while the emergency
	// freeze is in effect.
	ErrVaultFrozen = errors.New("vault frozen")
	// ErrNotReady is returned by execute in strict mode before ExecuteAt.
	ErrNotReady = errors.New("timelock has not elapsed")
	// ErrNotFound is returned for an index outside the queue.
	ErrNotFound = errors.New("pending transaction not found")
	// ErrNotQueueable is returned when enqueueing an ALLOW or BLOCK analysis.
	ErrNotQueueable = errors.New("analysis does not call for a timelock")
	// ErrInvalidDelay is returned when the resolved timelock is not within
	// 1..risk.MaxDelayHours.
	ErrInvalidDelay = errors.New("invalid timelock delay")
)

// Status is the lifecycle state of a queued entry.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusExecuted  Status = "EXECUTED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// PendingTransaction is one delayed action. Intent and Analysis are private
// copies taken at enqueue time.
type PendingTransaction struct {
	Index         int                    `json:"index"`
	ID            string                 `json:"id"`
	Account       string                 `json:"account"`
	Intent        risk.TransactionIntent `json:"intent"`
	Analysis      risk.RiskAnalysis      `json:"analysis"`
	DelayHours    int                    `json:"delayHours"`
	CreatedAt     time.Time              `json:"createdAt"`
	ExecuteAt     time.Time              `json:"executeAt"`
	Status        Status                 `json:"status"`
	ResolvedAt    *time.Time             `json:"resolvedAt,omitempty"`
	ReadyNotified bool                   `json:"readyNotified"`
}

// IsReady reports whether the timelock has elapsed at now.
func (p PendingTransaction) IsReady(now time.Time) bool {
	return !now.Before(p.ExecuteAt)
}

// Remaining is the time left until ExecuteAt, never negative.
func (p PendingTransaction) Remaining(now time.Time) time.Duration {
	if d := p.ExecuteAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Progress is the elapsed fraction of the timelock in [0, 1].
func (p PendingTransaction) Progress(now time.Time) float64 {
	total := p.ExecuteAt.Sub(p.CreatedAt)
	if total <= 0 {
		return 1
	}
	elapsed := now.Sub(p.CreatedAt)
	switch {
	case elapsed <= 0:
		return 0
	case elapsed >= total:
		return 1
	default:
		return float64(elapsed) / float64(total)
	}
}

func (p PendingTransaction) clone() PendingTransaction {
	out := p
	out.Intent = p.Intent.Clone()
	out.Analysis = p.Analysis.Clone()
	if p.ResolvedAt != nil {
		at := *p.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

// FreezeCheck reports whether outbound actions are suspended at now.
type FreezeCheck interface {
	IsFrozen(now time.Time) bool
}

// Options configure a Queue.
type Options struct {
	Account string
	// StrictExecute makes Execute fail with ErrNotReady before ExecuteAt.
	StrictExecute bool
	Freeze        FreezeCheck
	Publisher     alerting.Publisher
	Now           func() time.Time
	// Entries restores a previously persisted queue, in index order.
	Entries []PendingTransaction
}

// Queue is one account's pending transactions in insertion order. Entries
// are never removed, so indices stay stable.
type Queue struct {
	mu        sync.Mutex
	account   string
	strict    bool
	freeze    FreezeCheck
	publisher alerting.Publisher
	now       func() time.Time
	entries   []PendingTransaction
}

// NewQueue creates a queue.
func NewQueue(opts Options) *Queue {
	q := &Queue{
		account:   opts.Account,
		strict:    opts.StrictExecute,
		freeze:    opts.Freeze,
		publisher: opts.Publisher,
		now:       opts.Now,
	}
	if q.publisher == nil {
		q.publisher = alerting.Nop
	}
	if q.now == nil {
		q.now = time.Now
	}
	for i, entry := range opts.Entries {
		entry = entry.clone()
		entry.Index = i
		q.entries = append(q.entries, entry)
	}
	return q
}

// Enqueue stores a new PENDING entry for a DELAY or GUARDIAN_REQUIRED
// analysis. ExecuteAt is now plus the analysis delay, or the policy timelock
// when the analysis carries none.
func (q *Queue) Enqueue(intent risk.TransactionIntent, analysis risk.RiskAnalysis, policy risk.Policy) (PendingTransaction, error) {
	now := q.now()
	if q.frozen(now) {
		return PendingTransaction{}, fmt.Errorf("enqueue: %w", ErrVaultFrozen)
	}
	if analysis.Action != risk.ActionDelay && analysis.Action != risk.ActionGuardianRequired {
		return PendingTransaction{}, fmt.Errorf("enqueue %s: %w", analysis.Action, ErrNotQueueable)
	}

	hours := analysis.DelayHours
	if hours <= 0 {
		hours = policy.TimelockHours
	}
	if hours <= 0 || hours > risk.MaxDelayHours {
		return PendingTransaction{}, fmt.Errorf("enqueue: %w: %d hours", ErrInvalidDelay, hours)
	}

	q.mu.Lock()
	entry := PendingTransaction{
		Index:      len(q.entries),
		ID:         "ptx-" + uuid.NewString(),
		Account:    q.account,
		Intent:     intent.Clone(),
		Analysis:   analysis.Clone(),
		DelayHours: hours,
		CreatedAt:  now,
		ExecuteAt:  now.Add(time.Duration(hours) * time.Hour),
		Status:     StatusPending,
	}
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	label := intent.FunctionName
	if label == "" {
		label = "Transaction"
	}
	q.publish(alerting.PriorityMedium, "Transaction Queued", fmt.Sprintf("%s will execute in %d hours", label, hours))
	return entry.clone(), nil
}

// Cancel moves a PENDING entry to CANCELLED. Cancelling is permitted while
// the vault is frozen.
func (q *Queue) Cancel(index int) (PendingTransaction, error) {
	now := q.now()

	q.mu.Lock()
	entry, err := q.transition(index, StatusCancelled, now, false)
	q.mu.Unlock()
	if err != nil {
		return PendingTransaction{}, fmt.Errorf("cancel %d: %w", index, err)
	}

	q.publish(alerting.PriorityLow, "Transaction Cancelled", "Pending transaction has been cancelled successfully")
	return entry, nil
}

// Execute moves a PENDING entry to EXECUTED. Unless the queue is strict, an
// entry may be executed before it is ready.
func (q *Queue) Execute(index int) (PendingTransaction, error) {
	now := q.now()
	if q.frozen(now) {
		return PendingTransaction{}, fmt.Errorf("execute %d: %w", index, ErrVaultFrozen)
	}

	q.mu.Lock()
	entry, err := q.transition(index, StatusExecuted, now, q.strict)
	q.mu.Unlock()
	if err != nil {
		return PendingTransaction{}, fmt.Errorf("execute %d: %w", index, err)
	}

	q.publish(alerting.PriorityHigh, "Transaction Executed", "Timelocked transaction has been executed")
	return entry, nil
}

func (q *Queue) transition(index int, to Status, now time.Time, requireReady bool) (PendingTransaction, error) {
	if index < 0 || index >= len(q.entries) {
		return PendingTransaction{}, ErrNotFound
	}
	entry := &q.entries[index]
	if entry.Status.Terminal() {
		return PendingTransaction{}, fmt.Errorf("%w: entry is %s", ErrInvalidTransition, entry.Status)
	}
	if requireReady && !entry.IsReady(now) {
		return PendingTransaction{}, fmt.Errorf("%w: ready at %s", ErrNotReady, entry.ExecuteAt.Format(time.RFC3339))
	}
	entry.Status = to
	resolved := now
	entry.ResolvedAt = &resolved
	return entry.clone(), nil
}

// Get returns the entry at index.
func (q *Queue) Get(index int) (PendingTransaction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.entries) {
		return PendingTransaction{}, ErrNotFound
	}
	return q.entries[index].clone(), nil
}

// List returns every entry in index order.
func (q *Queue) List() []PendingTransaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingTransaction, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.clone())
	}
	return out
}

// Pending returns entries still awaiting cancel or execute.
func (q *Queue) Pending() []PendingTransaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []PendingTransaction
	for _, e := range q.entries {
		if e.Status == StatusPending {
			out = append(out, e.clone())
		}
	}
	return out
}

// Ready returns pending entries whose timelock has elapsed at now.
func (q *Queue) Ready(now time.Time) []PendingTransaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []PendingTransaction
	for _, e := range q.entries {
		if e.Status == StatusPending && e.IsReady(now) {
			out = append(out, e.clone())
		}
	}
	return out
}

// NotifyReady emits one "Transaction Ready" event for every pending entry
// that has become ready since the last call and returns those entries. The
// entries' status is not changed.
func (q *Queue) NotifyReady(now time.Time) []PendingTransaction {
	q.mu.Lock()
	var ready []PendingTransaction
	for i := range q.entries {
		e := &q.entries[i]
		if e.Status != StatusPending || e.ReadyNotified || !e.IsReady(now) {
			continue
		}
		e.ReadyNotified = true
		ready = append(ready, e.clone())
	}
	q.mu.Unlock()

	for _, e := range ready {
		label := e.Intent.FunctionName
		if label == "" {
			label = "Transaction"
		}
		q.publishAction(alerting.PriorityMedium, "Transaction Ready", fmt.Sprintf("%s #%d can now be executed", label, e.Index), "Execute")
	}
	return ready
}

func (q *Queue) frozen(now time.Time) bool {
	return q.freeze != nil && q.freeze.IsFrozen(now)
}

func (q *Queue) publish(priority alerting.Priority, title, message string) {
	q.publishAction(priority, title, message, "")
}

func (q *Queue) publishAction(priority alerting.Priority, title, message, action string) {
	q.publisher.Publish(alerting.Event{
		Account:     q.account,
		Type:        alerting.TypeTransaction,
		Priority:    priority,
		Title:       title,
		Message:     message,
		ActionLabel: action,
	})
}
