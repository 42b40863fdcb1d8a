package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishJSON(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	var got []Event
	bus.Subscribe(PreviewGenerated, func(e Event) error {
		got = append(got, e)
		return nil
	})
	bus.Subscribe(CoverageGapsDetected, func(Event) error {
		t.Fatal("handler for another type must not run")
		return nil
	})

	require.NoError(t, bus.PublishJSON("run-1", PreviewGenerated, map[string]int{"items": 3}))
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	var payload map[string]int
	require.NoError(t, got[0].Decode(&payload))
	assert.Equal(t, 3, payload["items"])
}

func TestEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())

	calls := 0
	bus.Subscribe(CoverageGapsDetected, func(Event) error {
		calls++
		return errors.New("boom")
	})
	bus.Subscribe(CoverageGapsDetected, func(Event) error {
		calls++
		return nil
	})

	bus.Publish(Event{Type: CoverageGapsDetected})
	assert.Equal(t, 2, calls)
}

func TestEventBus_PublishJSONError(t *testing.T) {
	bus := NewEventBus(zerolog.Nop())
	err := bus.PublishJSON("x", PreviewGenerated, make(chan int))
	assert.Error(t, err)
}

func TestEvent_DecodeError(t *testing.T) {
	var v map[string]any
	err := Event{Type: PreviewGenerated, Payload: []byte("not json")}.Decode(&v)
	assert.ErrorContains(t, err, PreviewGenerated)
}
