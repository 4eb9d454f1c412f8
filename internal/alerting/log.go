package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes events to the structured log. Useful as the only sink
// in development.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log sink.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs event at a level matching its priority.
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	var e *zerolog.Event
	switch event.Priority {
	case PriorityCritical:
		e = n.logger.Error()
	case PriorityHigh:
		e = n.logger.Warn()
	default:
		e = n.logger.Info()
	}
	e.Str("account", event.Account).
		Str("type", string(event.Type)).
		Str("priority", string(event.Priority)).
		Str("message", event.Message).
		Msg(event.Title)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
