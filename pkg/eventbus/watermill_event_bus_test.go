package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/channels/gochannel"
	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishSubscribeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := newTestBus(t)

	received := make(chan any, 1)
	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	completed := events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, "wf-1", "exec-1"),
		StepsExecuted: 4,
		DurationMs:    1200,
	}
	require.NoError(t, bus.Publish(ctx, "exec-1", completed))

	select {
	case event := <-received:
		got, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok)
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, 4, got.StepsExecuted)
		assert.Equal(t, int64(1200), got.DurationMs)
	case <-ctx.Done():
		t.Fatal("published event was never delivered to the handler")
	}
}

func TestWatermillEventBus_UnhandledEventTypesAreAcked(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := newTestBus(t)

	received := make(chan any, 1)
	require.NoError(t, bus.Handle(events.ExecutionFailedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for this one; it must be consumed without
	// blocking delivery of later events.
	sent := events.EmailSent{
		BaseEvent: events.NewBaseEvent(events.EmailSentEvent, "wf-1", "exec-1"),
	}
	require.NoError(t, bus.Publish(ctx, "exec-1", sent))

	failed := events.ExecutionFailed{
		BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, "wf-1", "exec-1"),
		Error:     "email send failed",
	}
	require.NoError(t, bus.Publish(ctx, "exec-1", failed))

	select {
	case event := <-received:
		got, ok := event.(*events.ExecutionFailed)
		require.True(t, ok)
		assert.Equal(t, "email send failed", got.Error)
	case <-ctx.Done():
		t.Fatal("handled event was never delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
