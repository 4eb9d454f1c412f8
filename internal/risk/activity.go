package risk

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ActivityWindow counts per-account submissions inside a sliding window. It
// is the live ActivitySource used by the service; every submission is
// recorded whether or not it is later allowed.
type ActivityWindow struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	seen   map[string][]time.Time
}

// NewActivityWindow creates a window of the given width. A nil now uses
// time.Now.
func NewActivityWindow(window time.Duration, now func() time.Time) *ActivityWindow {
	if window <= 0 {
		window = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &ActivityWindow{window: window, now: now, seen: make(map[string][]time.Time)}
}

// Record notes one submission for account at the current time.
func (w *ActivityWindow) Record(account string) {
	key := strings.ToLower(account)
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen[key] = append(w.prune(w.seen[key], now), now)
}

// RecentActivity implements ActivitySource.
func (w *ActivityWindow) RecentActivity(_ context.Context, account string) (int, error) {
	key := strings.ToLower(account)
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.prune(w.seen[key], now)
	if len(kept) == 0 {
		delete(w.seen, key)
		return 0, nil
	}
	w.seen[key] = kept
	return len(kept), nil
}

func (w *ActivityWindow) prune(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

var _ ActivitySource = (*ActivityWindow)(nil)
var _ ActivitySource = FixedActivity(0)
