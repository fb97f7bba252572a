package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/warden/pkg/channels/gochannel"
	"github.com/quorumlabs/warden/pkg/eventbus"
	"github.com/quorumlabs/warden/pkg/events"
	"github.com/quorumlabs/warden/pkg/models"
)

func testBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	return bus
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case received := <-ch:
		return received
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")

		var zero T

		return zero
	}
}

func TestWatermillEventBus_PublishSubscribeRoundTrip(t *testing.T) {
	bus := testBus(t)

	started := make(chan *events.RunStarted, 1)
	bus.Handle(events.RunStartedEvent, func(_ context.Context, event any) error {
		if received, ok := event.(*events.RunStarted); ok {
			started <- received
		}

		return nil
	})

	finished := make(chan *events.StepFinished, 1)
	bus.Handle(events.StepFinishedEvent, func(_ context.Context, event any) error {
		if received, ok := event.(*events.StepFinished); ok {
			finished <- received
		}

		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "run-1", events.RunStarted{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.RunStartedEvent,
			Timestamp:  time.Now().UTC(),
			RunID:      "run-1",
			PlaybookID: "pb-1",
		},
		TriggeredBy: "tester",
		Environment: "staging",
	})
	require.NoError(t, err)

	startedEvent := waitFor(t, started)
	assert.Equal(t, "run-1", startedEvent.RunID)
	assert.Equal(t, "pb-1", startedEvent.PlaybookID)
	assert.Equal(t, "tester", startedEvent.TriggeredBy)
	assert.Equal(t, "staging", startedEvent.Environment)

	err = bus.Publish(ctx, "run-1", events.StepFinished{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.StepFinishedEvent,
			Timestamp: time.Now().UTC(),
			RunID:     "run-1",
		},
		StepID:   "deploy",
		Status:   models.StepStatusSucceeded,
		Attempts: 2,
	})
	require.NoError(t, err)

	finishedEvent := waitFor(t, finished)
	assert.Equal(t, "deploy", finishedEvent.StepID)
	assert.Equal(t, models.StepStatusSucceeded, finishedEvent.Status)
	assert.Equal(t, 2, finishedEvent.Attempts)
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := testBus(t)

	denied := make(chan *events.ActionDenied, 1)
	bus.Handle(events.ActionDeniedEvent, func(_ context.Context, event any) error {
		if received, ok := event.(*events.ActionDenied); ok {
			denied <- received
		}

		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler is registered for cancellations; the subscriber must ack
	// and move on rather than stall the stream.
	err := bus.Publish(ctx, "run-1", events.RunCancelled{
		BaseEvent:   events.BaseEvent{ID: bus.GenerateID(), Type: events.RunCancelledEvent, RunID: "run-1"},
		CancelledBy: "operator",
	})
	require.NoError(t, err)

	err = bus.Publish(ctx, "run-1", events.ActionDenied{
		BaseEvent:  events.BaseEvent{ID: bus.GenerateID(), Type: events.ActionDeniedEvent, RunID: "run-1"},
		ActionType: "deploy_service",
		Reason:     "environment_not_permitted",
		PolicyName: "deploy-guard",
	})
	require.NoError(t, err)

	deniedEvent := waitFor(t, denied)
	assert.Equal(t, "deploy_service", deniedEvent.ActionType)
	assert.Equal(t, "environment_not_permitted", deniedEvent.Reason)
	assert.Equal(t, "deploy-guard", deniedEvent.PolicyName)
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := testBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
