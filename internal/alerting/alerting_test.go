package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Notify(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Title)
	}
	return out
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, PriorityCritical.AtLeast(PriorityHigh))
	assert.True(t, PriorityMedium.AtLeast(PriorityMedium))
	assert.False(t, PriorityLow.AtLeast(PriorityMedium))
	assert.Equal(t, PriorityHigh, ParsePriority(" HIGH "))
	assert.Equal(t, PriorityLow, ParsePriority("urgent"))
}

func TestFeedBoundedNewestFirst(t *testing.T) {
	feed := NewFeed(3)
	for _, title := range []string{"a", "b", "c", "d"} {
		feed.Publish(Event{Account: "acct", Title: title})
	}

	events := feed.List("acct", 0)
	require.Len(t, events, 3)
	assert.Equal(t, "d", events[0].Title)
	assert.Equal(t, "b", events[2].Title)
	assert.Equal(t, 3, feed.UnreadCount("acct"))
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestFeedBoundIsPerAccount(t *testing.T) {
	feed := NewFeed(3)
	feed.Publish(Event{Account: "quiet", Title: "q1"})
	feed.Publish(Event{Account: "quiet", Title: "q2"})
	for i := 0; i < 20; i++ {
		feed.Publish(Event{Account: "busy", Title: "b"})
	}

	quiet := feed.List("quiet", 0)
	require.Len(t, quiet, 2)
	assert.Equal(t, "q2", quiet[0].Title)
	assert.Equal(t, "q1", quiet[1].Title)
	assert.Equal(t, 2, feed.UnreadCount("quiet"))

	assert.Len(t, feed.List("busy", 0), 3)
	assert.Len(t, feed.List("", 0), 5)

	feed.Publish(Event{Account: "quiet", Title: "q3"})
	feed.Publish(Event{Account: "quiet", Title: "q4"})
	quiet = feed.List("quiet", 0)
	require.Len(t, quiet, 3)
	assert.Equal(t, "q4", quiet[0].Title)
	assert.Equal(t, "q2", quiet[2].Title)
	assert.Len(t, feed.List("busy", 0), 3)
}

func TestFeedReadAndDelete(t *testing.T) {
	feed := NewFeed(10)
	feed.Publish(Event{Account: "a", Title: "one"})
	feed.Publish(Event{Account: "b", Title: "two"})
	feed.Publish(Event{Account: "a", Title: "three"})

	a := feed.List("a", 0)
	require.Len(t, a, 2)

	assert.False(t, feed.MarkRead("b", a[0].ID), "other accounts cannot touch the event")
	assert.True(t, feed.MarkRead("a", a[0].ID))
	assert.False(t, feed.MarkRead("a", "missing"))
	assert.Equal(t, 1, feed.UnreadCount("a"))

	feed.MarkAllRead("a")
	assert.Equal(t, 0, feed.UnreadCount("a"))
	assert.Equal(t, 1, feed.UnreadCount("b"))

	assert.False(t, feed.Delete("b", a[1].ID))
	assert.True(t, feed.Delete("", a[1].ID))
	assert.Len(t, feed.List("a", 0), 1)

	feed.Clear("a")
	assert.Empty(t, feed.List("a", 0))
	assert.Len(t, feed.List("", 0), 1)

	assert.Len(t, feed.List("", 1), 1)
}

func TestDispatcherDeliversAndFilters(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(DispatcherOptions{BufferSize: 8, MinPriority: PriorityMedium}, testLogger(), sink)

	d.Publish(Event{Title: "low", Priority: PriorityLow})
	d.Publish(Event{Title: "medium", Priority: PriorityMedium})
	d.Publish(Event{Title: "critical", Priority: PriorityCritical})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	d.Close()
	<-done
	cancel()

	assert.Equal(t, []string{"medium", "critical"}, sink.titles())
}

func TestDispatcherSwallowsSinkErrors(t *testing.T) {
	failing := &recordingSink{err: errors.New("channel down")}
	ok := &recordingSink{}
	d := NewDispatcher(DispatcherOptions{BufferSize: 1}, testLogger(), failing, ok)

	d.Publish(Event{Title: "first", Priority: PriorityHigh})
	// buffer of one: the second publish is dropped rather than blocking
	d.Publish(Event{Title: "second", Priority: PriorityHigh})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Close()
	d.Run(ctx)

	assert.Equal(t, []string{"first"}, failing.titles())
	assert.Equal(t, []string{"first"}, ok.titles())
}

func TestFanoutSkipsNil(t *testing.T) {
	var got []string
	f := Fanout{nil, PublisherFunc(func(e Event) { got = append(got, e.Title) }), Nop}
	f.Publish(Event{Title: "x"})
	assert.Equal(t, []string{"x"}, got)
}

func TestEncodeEventJSON(t *testing.T) {
	payload, err := encodeEvent(Event{ID: "notif-1", Account: "0xabc", Type: TypeTransaction, Priority: PriorityMedium, Title: "Transaction Queued"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "Transaction Queued", decoded["title"])
	assert.Equal(t, "medium", decoded["priority"])
	assert.Equal(t, "0xabc", decoded["account"])
}
