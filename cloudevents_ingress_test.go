package trellis

import (
	"context"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCloudEvent(t *testing.T) {
	t.Run("a_well_formed_event_passes", func(t *testing.T) {
		event := NewCloudEvent("com.example.widget.created", "test", map[string]string{"id": "1"}, nil)
		assert.NoError(t, ValidateCloudEvent(event))
	})

	t.Run("an_event_missing_required_fields_fails", func(t *testing.T) {
		event := cloudevents.NewEvent()
		assert.Error(t, ValidateCloudEvent(event))
	})
}

func TestEventBusAccept(t *testing.T) {
	ctrl := NewController()
	bus := NewEventBus(ctrl, nil)
	cell := bus.Cell("com.example.widget.created")
	assert.Nil(t, cell.Get())

	event := NewCloudEvent("com.example.widget.created", "test", nil, nil)
	require.NoError(t, bus.Accept(context.Background(), event))

	got, ok := cell.Get().(cloudevents.Event)
	require.True(t, ok)
	assert.Equal(t, event.ID(), got.ID())

	require.NoError(t, ctrl.Atomically(func() error { return nil }))
	assert.Nil(t, cell.Get(), "the event cell resets to nil on the pulse after it fired")
}

func TestEventBusAcceptRejectsAnInvalidEvent(t *testing.T) {
	ctrl := NewController()
	bus := NewEventBus(ctrl, nil)
	err := bus.Accept(context.Background(), cloudevents.NewEvent())
	assert.Error(t, err)
}

func TestEventBusObserverFanout(t *testing.T) {
	ctrl := NewController()
	bus := NewEventBus(ctrl, nil)

	var receivedA, receivedB []cloudevents.Event
	obsA := NewFunctionalEventObserver("a", func(_ context.Context, e cloudevents.Event) error {
		receivedA = append(receivedA, e)
		return nil
	})
	obsB := NewFunctionalEventObserver("b", func(_ context.Context, e cloudevents.Event) error {
		receivedB = append(receivedB, e)
		return nil
	})
	require.NoError(t, bus.RegisterObserver(obsA, "com.example.widget.created"))
	require.NoError(t, bus.RegisterObserver(obsB)) // subscribed to every type

	event := NewCloudEvent("com.example.widget.created", "test", nil, nil)
	require.NoError(t, bus.Accept(context.Background(), event))
	assert.Len(t, receivedA, 1)
	assert.Len(t, receivedB, 1)

	other := NewCloudEvent("com.example.widget.deleted", "test", nil, nil)
	require.NoError(t, bus.Accept(context.Background(), other))
	assert.Len(t, receivedA, 1, "obsA is filtered to widget.created and must not see widget.deleted")
	assert.Len(t, receivedB, 2)

	require.NoError(t, bus.UnregisterObserver(obsB))
	require.NoError(t, bus.Accept(context.Background(), other))
	assert.Len(t, receivedB, 2, "an unregistered observer must stop receiving events")
}

func TestEventBusObservers(t *testing.T) {
	ctrl := NewController()
	bus := NewEventBus(ctrl, nil)
	assert.Empty(t, bus.Observers())

	obs := NewFunctionalEventObserver("logger", func(context.Context, cloudevents.Event) error { return nil })
	require.NoError(t, bus.RegisterObserver(obs, "com.example.widget.created"))

	infos := bus.Observers()
	require.Len(t, infos, 1)
	assert.Equal(t, "logger", infos[0].ID)
	assert.Equal(t, []string{"com.example.widget.created"}, infos[0].EventTypes)
}

func TestHandleEventEmissionError(t *testing.T) {
	t.Run("no_subject_error_is_always_handled_even_without_a_logger", func(t *testing.T) {
		assert.True(t, HandleEventEmissionError(ErrNoSubjectForEventEmission, nil, "src", "typ"))
	})

	t.Run("any_other_error_is_handled_when_a_logger_is_present", func(t *testing.T) {
		assert.True(t, HandleEventEmissionError(assertError{}, NewSlogLogger(nil), "src", "typ"))
	})

	t.Run("any_other_error_is_unhandled_without_a_logger", func(t *testing.T) {
		assert.False(t, HandleEventEmissionError(assertError{}, nil, "src", "typ"))
	})
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
