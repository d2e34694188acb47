package events

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e := <-s.C:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	s1 := b.Subscribe()
	s2 := b.Subscribe(EventLoaded)
	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(s1)
	b.Unsubscribe(s1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.Count())
	}
	if _, open := <-s1.C; open {
		t.Error("expected channel closed after unsubscribe")
	}

	b.Unsubscribe(s2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestPublishStampsAndDelivers(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	b.Publish(Event{Type: EventToggle, Path: "/data/a.pdf"})

	e := receive(t, s)
	if e.Type != EventToggle || e.Path != "/data/a.pdf" {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Timestamp == 0 {
		t.Error("expected timestamp")
	}
}

func TestTypeFilter(t *testing.T) {
	b := NewBroadcaster()
	loads := b.Subscribe(EventLoaded, EventMetadata)
	all := b.Subscribe()
	defer b.Unsubscribe(loads)
	defer b.Unsubscribe(all)

	b.Publish(Event{Type: EventPage, Page: 2})
	b.Publish(Event{Type: EventLoaded, Count: 3})

	if e := receive(t, loads); e.Type != EventLoaded || e.Count != 3 {
		t.Errorf("filtered subscriber got %+v", e)
	}
	if e := receive(t, all); e.Type != EventPage {
		t.Errorf("expected page event first, got %+v", e)
	}
	if e := receive(t, all); e.Type != EventLoaded {
		t.Errorf("expected loaded event second, got %+v", e)
	}
}

func TestSlowSubscriberMissesEvents(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe()
	defer b.Unsubscribe(s)

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: EventPage, Page: i + 1})
	}

	if got := len(s.C); got != subscriberBuffer {
		t.Fatalf("expected %d buffered events, got %d", subscriberBuffer, got)
	}
	if e := receive(t, s); e.Page != 1 {
		t.Errorf("expected oldest event kept, got page %d", e.Page)
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	err := Event{Type: EventFilter, Page: 1, Timestamp: 1234567890}.WriteSSE(&buf)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "event: filter\ndata: {") || !strings.HasSuffix(out, "}\n\n") {
		t.Errorf("unexpected frame %q", out)
	}
	if strings.Contains(out, "path") {
		t.Errorf("empty path should be omitted: %q", out)
	}
}
