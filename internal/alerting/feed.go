package alerting

import (
	"sync"
	"time"
)

// DefaultFeedSize bounds how many events the feed keeps per account.
const DefaultFeedSize = 50

// Feed is the in-memory notification center: newest first, bounded per
// account, with per-event read flags.
type Feed struct {
	mu     sync.RWMutex
	size   int
	events []Event
	now    func() time.Time
}

// NewFeed creates a feed keeping at most size events for each account.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{size: size, now: time.Now}
}

// Publish prepends event and drops the oldest events of the same account
// beyond the bound. Other accounts are never evicted.
func (f *Feed) Publish(event Event) {
	event = event.Stamp(f.now())
	event.Read = false

	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append([]Event{event}, f.events...)

	seen := 0
	kept := f.events[:0]
	for _, e := range f.events {
		if e.Account == event.Account {
			seen++
			if seen > f.size {
				continue
			}
		}
		kept = append(kept, e)
	}
	f.events = kept
}

// List returns up to limit events for account, newest first. An empty
// account lists every event; limit <= 0 means no limit.
func (f *Feed) List(account string, limit int) []Event {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Event, 0, len(f.events))
	for _, e := range f.events {
		if account != "" && e.Account != account {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// UnreadCount counts unread events for account.
func (f *Feed) UnreadCount(account string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := 0
	for _, e := range f.events {
		if (account == "" || e.Account == account) && !e.Read {
			n++
		}
	}
	return n
}

// MarkRead flags one event of account as read. An empty account matches any
// owner. Returns false when id is unknown.
func (f *Feed) MarkRead(account, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.events {
		if f.events[i].ID == id && (account == "" || f.events[i].Account == account) {
			f.events[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every event of account as read.
func (f *Feed) MarkAllRead(account string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.events {
		if account == "" || f.events[i].Account == account {
			f.events[i].Read = true
		}
	}
}

// Delete removes one event of account. Returns false when id is unknown.
func (f *Feed) Delete(account, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.events {
		if f.events[i].ID == id && (account == "" || f.events[i].Account == account) {
			f.events = append(f.events[:i], f.events[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops all events of account.
func (f *Feed) Clear(account string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if account == "" {
		f.events = nil
		return
	}
	kept := f.events[:0]
	for _, e := range f.events {
		if e.Account != account {
			kept = append(kept, e)
		}
	}
	f.events = kept
}

var _ Publisher = (*Feed)(nil)
