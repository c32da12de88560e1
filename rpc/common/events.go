package common

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Event types
// --------------------------------------------------------------------------

type EventType string

const (
	// EventRequest is emitted before every attempt is sent to a node
	EventRequest EventType = "request"
	// EventResponse is emitted once per request with the final outcome
	EventResponse EventType = "response"
	// EventSniff is emitted after every sniff, successful or not
	EventSniff EventType = "sniff"
	// EventResurrect is emitted when the pool tries to bring a dead node back
	EventResurrect EventType = "resurrect"
)

// SniffInfo describes one sniff run
type SniffInfo struct {
	Reason string
	Hosts  []string
}

// ResurrectInfo describes one resurrection attempt
type ResurrectInfo struct {
	Strategy     string
	ConnectionID string
	IsAlive      bool
}

// Event is the payload handed to subscribers. Only the fields relevant
// to the event type are set.
type Event struct {
	Type      EventType
	Err       error
	Meta      *RequestMeta
	Sniff     *SniffInfo
	Resurrect *ResurrectInfo
}

// EventHandler is called synchronously by Emit and must not block
type EventHandler func(Event)

// --------------------------------------------------------------------------
// Event bus
// --------------------------------------------------------------------------

type subscription struct {
	typ     EventType
	handler EventHandler
}

// EventBus is the explicit, shareable event channel of a client and its children
type EventBus struct {
	nextID atomic.Uint64
	subs   *xsync.MapOf[uint64, subscription]
}

// NewEventBus creates an empty event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subs: xsync.NewMapOf[uint64, subscription](),
	}
}

// On registers a handler for an event type and returns a function removing it again
func (b *EventBus) On(typ EventType, handler EventHandler) (off func()) {
	id := b.nextID.Add(1)
	b.subs.Store(id, subscription{typ: typ, handler: handler})
	return func() { b.subs.Delete(id) }
}

// Emit calls every handler registered for the event type. A nil bus is a no-op.
func (b *EventBus) Emit(ev Event) {
	if b == nil {
		return
	}
	b.subs.Range(func(_ uint64, sub subscription) bool {
		if sub.typ == ev.Type {
			sub.handler(ev)
		}
		return true
	})
}

// Len returns the number of registered handlers
func (b *EventBus) Len() int {
	return b.subs.Size()
}
