package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vault-guard/internal/metrics"
)

// DispatcherOptions tune asynchronous delivery.
type DispatcherOptions struct {
	BufferSize  int
	MinPriority Priority
	SinkTimeout time.Duration
}

// Dispatcher delivers events to blocking sinks on a background goroutine.
// Publish never blocks: when the buffer is full the event is dropped and
// counted.
type Dispatcher struct {
	sinks  []Notifier
	opts   DispatcherOptions
	queue  chan Event
	logger zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher constructs a dispatcher for sinks. Call Run to start delivery.
func NewDispatcher(opts DispatcherOptions, logger zerolog.Logger, sinks ...Notifier) *Dispatcher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 10 * time.Second
	}
	if opts.MinPriority == "" {
		opts.MinPriority = PriorityLow
	}
	return &Dispatcher{
		sinks:  sinks,
		opts:   opts,
		queue:  make(chan Event, opts.BufferSize),
		logger: logger.With().Str("component", "alert_dispatcher").Logger(),
		done:   make(chan struct{}),
	}
}

// Publish enqueues event for delivery.
func (d *Dispatcher) Publish(event Event) {
	if d == nil || len(d.sinks) == 0 || !event.Priority.AtLeast(d.opts.MinPriority) {
		return
	}
	select {
	case d.queue <- event.Stamp(time.Now()):
	default:
		metrics.NotificationsDropped.Inc()
		d.logger.Warn().Str("title", event.Title).Msg("notification buffer full; event dropped")
	}
}

// Run delivers queued events until ctx is cancelled or Close is called, then
// drains whatever is still buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-d.done:
			d.drain()
			return
		case event := <-d.queue:
			d.deliver(event)
		}
	}
}

// Close stops Run after the buffer has been drained.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.SinkTimeout)
		err := sink.Notify(ctx, event)
		cancel()
		if err != nil {
			metrics.NotificationFailures.Inc()
			d.logger.Error().Err(err).Str("title", event.Title).Str("account", event.Account).Msg("failed to dispatch notification")
		}
	}
}

var _ Publisher = (*Dispatcher)(nil)
