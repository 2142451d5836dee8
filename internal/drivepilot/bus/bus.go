package bus

import (
	"fmt"
	"sync"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
	"github.com/drivepilot-io/drivepilot/internal/pkg/metrics"
	"github.com/drivepilot-io/drivepilot/pkg/log"
)

// DefaultHistoryLimit bounds the event history when no limit is configured.
const DefaultHistoryLimit = 1000

// Subscription identifies one handler registration. Unsubscribing removes
// exactly this registration, even when the same handler is registered twice.
type Subscription struct {
	eventType core.EventType
	handler   core.HandlerFunc
}

// Bus is the in-memory publish/subscribe registry at the center of the
// simulation. Publication is synchronous: every handler runs on the
// publishing goroutine before Publish returns.
type Bus struct {
	mu      sync.Mutex
	subs    map[core.EventType][]*Subscription
	history []core.Event
	limit   int
}

// New creates a bus whose history holds at most limit events, evicting the
// oldest first. A non-positive limit selects DefaultHistoryLimit.
func New(limit int) *Bus {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Bus{
		subs:  make(map[core.EventType][]*Subscription),
		limit: limit,
	}
}

// Subscribe registers a handler for one event type. Handlers fire in
// subscription order.
func (b *Bus) Subscribe(t core.EventType, handler core.HandlerFunc) *Subscription {
	sub := &Subscription{eventType: t, handler: handler}
	b.mu.Lock()
	b.subs[t] = append(b.subs[t], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the given registration. Unknown subscriptions are
// ignored.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.eventType]
	for i, s := range list {
		if s == sub {
			b.subs[sub.eventType] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish appends the event to the history and fans it out to every
// handler registered for its type. A failing handler is logged and skipped;
// it never aborts delivery to the remaining subscribers and never surfaces
// to the publisher.
func (b *Bus) Publish(event core.Event) {
	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.limit {
		b.history = b.history[len(b.history)-b.limit:]
	}
	handlers := make([]*Subscription, len(b.subs[event.Type]))
	copy(handlers, b.subs[event.Type])
	b.mu.Unlock()

	metrics.EventsPublishedTotal.WithLabelValues(string(event.Type)).Inc()

	for _, sub := range handlers {
		b.dispatch(sub, event)
	}
}

func (b *Bus) dispatch(sub *Subscription, event core.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("panic: %v", r), "Event handler panicked", "type", string(event.Type), "source", event.Source)
		}
	}()
	if err := sub.handler(event); err != nil {
		log.Error(err, "Event handler failed", "type", string(event.Type), "source", event.Source)
	}
}

// History returns buffered events in publish order. With arguments it
// returns only events of the given types, preserving relative order.
func (b *Bus) History(types ...core.EventType) []core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(types) == 0 {
		out := make([]core.Event, len(b.history))
		copy(out, b.history)
		return out
	}

	want := make(map[core.EventType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []core.Event
	for _, ev := range b.history {
		if want[ev.Type] {
			out = append(out, ev)
		}
	}
	return out
}

// ClearHistory drops the buffered event log.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
}
