package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversOnlyMatchingKindsAndScopes(t *testing.T) {
	bus := NewEventBus(nil)
	sub := bus.Subscribe("s1", []string{"artifact_delta"}, []string{"scope-p"})
	defer bus.Unsubscribe("s1")

	bus.Publish(Event{Kind: "artifact_delta", Scope: "scope-p"})
	bus.Publish(Event{Kind: "frame_updated", Scope: "scope-p"})
	bus.Publish(Event{Kind: "artifact_delta", Scope: "scope-q"})

	require.Len(t, sub.Events(), 1)
	e := <-sub.Events()
	assert.Equal(t, "artifact_delta", e.Kind)
	assert.Equal(t, "scope-p", e.Scope)
	assert.False(t, e.At.IsZero())
}

func TestEventBusDropsOldestOnOverflow(t *testing.T) {
	var dropped []Event
	bus := NewEventBus(func(sub string, e Event) { dropped = append(dropped, e) })
	sub := bus.Subscribe("slow", nil, nil)
	defer bus.Unsubscribe("slow")

	for i := 0; i <= EventBufferSize; i++ {
		bus.Publish(Event{Kind: "artifact_delta", Scope: string(rune('a' + i%26))})
	}

	require.Len(t, dropped, 1)
	require.Len(t, sub.Events(), EventBufferSize)
	first := <-sub.Events()
	assert.NotEqual(t, dropped[0].Scope, first.Scope)
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(nil)
	sub := bus.Subscribe("s1", nil, nil)
	bus.Unsubscribe("s1")
	_, open := <-sub.Events()
	assert.False(t, open)
}
