package timelock

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-guard/internal/alerting"
	"vault-guard/internal/risk"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type freezeFlag bool

func (f *freezeFlag) IsFrozen(time.Time) bool { return bool(*f) }

type recorder struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recorder) Publish(e alerting.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Title)
	}
	return out
}

func delayed(hours int) risk.RiskAnalysis {
	return risk.RiskAnalysis{Score: 60, Level: risk.LevelCaution, Action: risk.ActionDelay, DelayHours: hours}
}

var testPolicy = risk.Policy{DailyLimitEth: decimal.RequireFromString("5"), TimelockHours: 12}

func newTestQueue(c *clock, rec *recorder, frozen *freezeFlag, strict bool) *Queue {
	return NewQueue(Options{
		Account:       "0xacct",
		StrictExecute: strict,
		Freeze:        frozen,
		Publisher:     rec,
		Now:           c.Now,
	})
}

func TestEnqueueComputesExecuteAt(t *testing.T) {
	c := &clock{now: time.UnixMilli(1_000_000)}
	rec := &recorder{}
	var frozen freezeFlag
	q := newTestQueue(c, rec, &frozen, false)

	entry, err := q.Enqueue(risk.TransactionIntent{To: "0xUNKNOWN", Value: "1"}, delayed(6), testPolicy)
	require.NoError(t, err)

	assert.Equal(t, 0, entry.Index)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, int64(1_000_000+21_600_000), entry.ExecuteAt.UnixMilli())
	assert.False(t, entry.IsReady(time.UnixMilli(1_000_000+100)))
	assert.False(t, entry.IsReady(time.UnixMilli(1_000_000+21_599_999)))
	assert.True(t, entry.IsReady(time.UnixMilli(1_000_000+21_600_000)))
	assert.True(t, entry.IsReady(time.UnixMilli(1_000_000+21_600_001)))

	require.Len(t, rec.events, 1)
	assert.Equal(t, "Transaction Queued", rec.events[0].Title)
	assert.Equal(t, alerting.PriorityMedium, rec.events[0].Priority)
	assert.Equal(t, "Transaction will execute in 6 hours", rec.events[0].Message)
	assert.Equal(t, "0xacct", rec.events[0].Account)
}

func TestEnqueueFallsBackToPolicyTimelock(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var frozen freezeFlag
	q := newTestQueue(c, &recorder{}, &frozen, false)

	entry, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "1"}, delayed(0), testPolicy)
	require.NoError(t, err)
	assert.Equal(t, 12, entry.DelayHours)
	assert.Equal(t, 12*time.Hour, entry.ExecuteAt.Sub(entry.CreatedAt))
}

func TestEnqueueCopiesIntent(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var frozen freezeFlag
	q := newTestQueue(c, &recorder{}, &frozen, false)

	intent := risk.TransactionIntent{To: "0x1", Value: "1", Args: []string{"a", "b"}}
	_, err := q.Enqueue(intent, delayed(1), testPolicy)
	require.NoError(t, err)

	intent.Args[0] = "mutated"
	intent.To = "0x2"

	stored, err := q.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "0x1", stored.Intent.To)
	assert.Equal(t, []string{"a", "b"}, stored.Intent.Args)
}

func TestEnqueueRejectsAllowAndBlock(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var frozen freezeFlag
	q := newTestQueue(c, &recorder{}, &frozen, false)

	for _, action := range []risk.Action{risk.ActionAllow, risk.ActionBlock} {
		_, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "1"}, risk.RiskAnalysis{Action: action}, testPolicy)
		assert.ErrorIs(t, err, ErrNotQueueable)
	}
	assert.Empty(t, q.List())
}

func TestEnqueueRejectsDelayOutsideRange(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var frozen freezeFlag
	q := newTestQueue(c, &recorder{}, &frozen, true)

	// 3,000,000h overflows time.Duration and would land executeAt in the past.
	huge := risk.Policy{DailyLimitEth: testPolicy.DailyLimitEth, TimelockHours: 3_000_000}
	_, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "7"}, delayed(0), huge)
	assert.ErrorIs(t, err, ErrInvalidDelay)

	_, err = q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "7"}, delayed(risk.MaxDelayHours+1), testPolicy)
	assert.ErrorIs(t, err, ErrInvalidDelay)

	none := risk.Policy{DailyLimitEth: testPolicy.DailyLimitEth}
	_, err = q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "7"}, delayed(0), none)
	assert.ErrorIs(t, err, ErrInvalidDelay)
	assert.Empty(t, q.List())

	entry, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "7"}, delayed(risk.MaxDelayHours), testPolicy)
	require.NoError(t, err)
	assert.True(t, entry.ExecuteAt.After(entry.CreatedAt))
	assert.False(t, entry.IsReady(c.Now()))
	_, err = q.Execute(entry.Index)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCancelThenExecuteFails(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	rec := &recorder{}
	var frozen freezeFlag
	q := newTestQueue(c, rec, &frozen, false)

	_, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "1"}, delayed(1), testPolicy)
	require.NoError(t, err)

	cancelled, err := q.Cancel(0)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.ResolvedAt)

	_, err = q.Execute(0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = q.Cancel(0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	entry, err := q.Get(0)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, entry.Status)
	assert.Equal(t, []string{"Transaction Queued", "Transaction Cancelled"}, rec.titles())
}

func TestExecuteBeforeReadyIsPermissiveByDefault(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	rec := &recorder{}
	var frozen freezeFlag
	q := newTestQueue(c, rec, &frozen, false)

	_, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "1"}, delayed(24), testPolicy)
	require.NoError(t, err)

	executed, err := q.Execute(0)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, executed.Status)
	assert.Equal(t, alerting.PriorityHigh, rec.events[1].Priority)
}

func TestStrictExecuteRequiresReady(t *testing.T) {
	start := time.Unix(0, 0)
	c := &clock{now: start}
	var frozen freezeFlag
	q := newTestQueue(c, &recorder{}, &frozen, true)

	_, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "1"}, delayed(2), testPolicy)
	require.NoError(t, err)

	_, err = q.Execute(0)
	assert.ErrorIs(t, err, ErrNotReady)

	c.Set(start.Add(2 * time.Hour))
	executed, err := q.Execute(0)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, executed.Status)
}

func TestFrozenQueueRejectsEnqueueAndExecute(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var frozen freezeFlag
	q := newTestQueue(c, &recorder{}, &frozen, false)

	_, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "1"}, delayed(1), testPolicy)
	require.NoError(t, err)
	_, err = q.Enqueue(risk.TransactionIntent{To: "0x2", Value: "1"}, delayed(1), testPolicy)
	require.NoError(t, err)

	frozen = true

	_, err = q.Enqueue(risk.TransactionIntent{To: "0x3", Value: "1"}, delayed(1), testPolicy)
	assert.ErrorIs(t, err, ErrVaultFrozen)
	_, err = q.Execute(0)
	assert.ErrorIs(t, err, ErrVaultFrozen)

	_, err = q.Cancel(1)
	assert.NoError(t, err)

	frozen = false
	_, err = q.Execute(0)
	assert.NoError(t, err)
}

func TestOutOfRangeIndex(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var frozen freezeFlag
	q := newTestQueue(c, &recorder{}, &frozen, false)

	_, err := q.Cancel(0)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = q.Execute(-1)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = q.Get(3)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNotifyReadyFiresOnce(t *testing.T) {
	start := time.Unix(0, 0)
	c := &clock{now: start}
	rec := &recorder{}
	var frozen freezeFlag
	q := newTestQueue(c, rec, &frozen, false)

	_, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "1", FunctionName: "transfer"}, delayed(1), testPolicy)
	require.NoError(t, err)
	_, err = q.Enqueue(risk.TransactionIntent{To: "0x2", Value: "1"}, delayed(5), testPolicy)
	require.NoError(t, err)

	assert.Empty(t, q.NotifyReady(start.Add(30*time.Minute)))

	ready := q.NotifyReady(start.Add(time.Hour))
	require.Len(t, ready, 1)
	assert.Equal(t, 0, ready[0].Index)
	assert.Empty(t, q.NotifyReady(start.Add(2*time.Hour)))

	entry, err := q.Get(0)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, entry.Status)
	assert.True(t, entry.ReadyNotified)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "Transaction Ready", last.Title)
	assert.Equal(t, "transfer #0 can now be executed", last.Message)
	assert.Equal(t, "Execute", last.ActionLabel)

	assert.Len(t, q.Ready(start.Add(5*time.Hour)), 2)
	assert.Len(t, q.Pending(), 2)
}

func TestRemainingAndProgress(t *testing.T) {
	start := time.Unix(0, 0)
	p := PendingTransaction{CreatedAt: start, ExecuteAt: start.Add(4 * time.Hour)}

	assert.Equal(t, 4*time.Hour, p.Remaining(start))
	assert.Equal(t, time.Hour, p.Remaining(start.Add(3*time.Hour)))
	assert.Zero(t, p.Remaining(start.Add(5*time.Hour)))

	assert.Zero(t, p.Progress(start))
	assert.InDelta(t, 0.5, p.Progress(start.Add(2*time.Hour)), 1e-9)
	assert.Equal(t, 1.0, p.Progress(start.Add(6*time.Hour)))
}

func TestRestoreKeepsIndicesAndStatus(t *testing.T) {
	start := time.Unix(0, 0)
	c := &clock{now: start}
	q := NewQueue(Options{
		Account: "0xacct",
		Now:     c.Now,
		Entries: []PendingTransaction{
			{ID: "a", Status: StatusExecuted, CreatedAt: start, ExecuteAt: start},
			{ID: "b", Status: StatusPending, CreatedAt: start, ExecuteAt: start.Add(time.Hour)},
		},
	})

	_, err := q.Execute(0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	entry, err := q.Cancel(1)
	require.NoError(t, err)
	assert.Equal(t, "b", entry.ID)
	assert.Equal(t, 1, entry.Index)

	next, err := q.Enqueue(risk.TransactionIntent{To: "0x1", Value: "1"}, delayed(1), testPolicy)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Index)
}
