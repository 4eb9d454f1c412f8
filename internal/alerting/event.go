package alerting

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType groups notifications the way the wallet feed displays them.
type EventType string

const (
	TypeTransaction EventType = "transaction"
	TypeSecurity    EventType = "security"
	TypeSystem      EventType = "system"
)

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// ParsePriority converts a config value into a Priority, defaulting to low.
func ParsePriority(v string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(v)))
	if _, ok := priorityRank[p]; ok {
		return p
	}
	return PriorityLow
}

// AtLeast reports whether p is as urgent as min.
func (p Priority) AtLeast(min Priority) bool {
	return priorityRank[p] >= priorityRank[min]
}

// Event is one outcome report emitted by the vault core.
type Event struct {
	ID          string    `json:"id"`
	Account     string    `json:"account,omitempty"`
	Type        EventType `json:"type"`
	Priority    Priority  `json:"priority"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	ActionLabel string    `json:"actionLabel,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
}

// Stamp fills ID and Timestamp when unset.
func (e Event) Stamp(now time.Time) Event {
	if e.ID == "" {
		e.ID = "notif-" + uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	return e
}

// Publisher accepts events without blocking and without reporting failure.
// The core depends on this capability only.
type Publisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f.
func (f PublisherFunc) Publish(event Event) { f(event) }

// Fanout publishes to every non-nil member.
type Fanout []Publisher

// Publish forwards event to each publisher in order.
func (f Fanout) Publish(event Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(event)
		}
	}
}

// Notifier is a delivery sink that may block and fail. Sinks are driven by
// the Dispatcher, never by the core directly.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards events.
var Nop Publisher = PublisherFunc(func(Event) {})
