package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var requests, sniffs int
	offRequest := bus.On(EventRequest, func(ev Event) { requests++ })
	bus.On(EventSniff, func(ev Event) {
		sniffs++
		assert.Equal(t, "manual", ev.Sniff.Reason)
		assert.Error(t, ev.Err)
	})
	assert.Equal(t, 2, bus.Len())

	bus.Emit(Event{Type: EventRequest, Meta: &RequestMeta{RequestID: "1"}})
	bus.Emit(Event{Type: EventSniff, Err: errors.New("boom"), Sniff: &SniffInfo{Reason: "manual"}})
	bus.Emit(Event{Type: EventResponse})
	assert.Equal(t, 1, requests)
	assert.Equal(t, 1, sniffs)

	offRequest()
	bus.Emit(Event{Type: EventRequest})
	assert.Equal(t, 1, requests)
	assert.Equal(t, 1, bus.Len())
}

func TestNilEventBus(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.Emit(Event{Type: EventRequest}) })
}
