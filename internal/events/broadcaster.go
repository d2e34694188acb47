// Package events fans out archive state changes to subscribers such as the
// terminal browser prompt and the server's SSE stream.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fruitsalade/docarchive/internal/metrics"
)

const (
	EventLoaded   = "loaded"
	EventMetadata = "metadata"
	EventFilter   = "filter"
	EventPage     = "page"
	EventToggle   = "toggle"
)

const subscriberBuffer = 64

// Event is an archive state change. Path is set for toggles; Count carries
// the number of entries or records for load events.
type Event struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Count     int    `json:"count,omitempty"`
	Page      int    `json:"page,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// WriteSSE writes e as one Server-Sent Events frame.
func (e Event) WriteSSE(w io.Writer) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	return err
}

// Subscription receives events on C until it is cancelled.
type Subscription struct {
	C <-chan Event

	ch    chan Event
	types map[string]bool
}

func (s *Subscription) wants(t string) bool {
	return len(s.types) == 0 || s.types[t]
}

// Broadcaster delivers each published event to every interested
// subscriber. Delivery never blocks: a subscriber whose buffer is full
// misses the event.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber for the given event types, or for all
// types when none are given. Call Unsubscribe when done.
func (b *Broadcaster) Subscribe(types ...string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch}
	if len(types) > 0 {
		s.types = make(map[string]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	metrics.SetEventSubscribers(int64(n))
	return s
}

// Unsubscribe removes s and closes its channel. Repeated calls are no-ops.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	n := len(b.subs)
	b.mu.Unlock()

	metrics.SetEventSubscribers(int64(n))
}

// Publish stamps e if needed and hands it to every interested subscriber.
func (b *Broadcaster) Publish(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			metrics.RecordEventDropped(e.Type)
		}
	}
	metrics.RecordEvent(e.Type)
}

// Count returns the number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
