package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/automation/pkg/channels/gochannel"
	"github.com/dukex/automation/pkg/eventbus"
	"github.com/dukex/automation/pkg/events"
	"github.com/dukex/automation/pkg/mocks"
	"github.com/dukex/automation/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_BusinessEventRoundTrip(t *testing.T) {
	bus := newBus(t)
	received := make(chan *events.BusinessEvent, 1)

	require.NoError(t, bus.Handle(events.BusinessEventReceived, func(_ context.Context, event any) error {
		received <- event.(*events.BusinessEvent)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	err := eventbus.PublishBusinessEvent(ctx, bus, models.Event{
		Type:     models.TriggerAppointmentCompleted,
		TenantID: "tenant-1",
		Payload:  map[string]any{"status": "DONE"},
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, events.BusinessEventReceived, event.Type)
		assert.Equal(t, "tenant-1", event.TenantID)
		assert.Equal(t, models.TriggerAppointmentCompleted, event.Event.Type)
		assert.NotEmpty(t, event.Event.ID)
		assert.Equal(t, "DONE", event.Event.Payload["status"])
	case <-time.After(5 * time.Second):
		t.Fatal("business event was not delivered")
	}
}

func TestWatermillEventBus_DropsMalformedMessages(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.BusinessEvent, 1)

	require.NoError(t, bus.Handle(events.BusinessEventReceived, func(_ context.Context, event any) error {
		received <- event.(*events.BusinessEvent)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	poison := message.NewMessage(watermill.NewULID(), []byte(`{"event":`))
	poison.Metadata.Set(events.EventTypeMetadataKey, string(events.BusinessEventReceived))
	require.NoError(t, pub.Publish(events.Topic, poison))

	require.NoError(t, eventbus.PublishBusinessEvent(ctx, bus, models.Event{
		Type:     models.TriggerClientCreated,
		TenantID: "tenant-1",
	}))

	select {
	case event := <-received:
		assert.Equal(t, models.TriggerClientCreated, event.Event.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("valid event was blocked by the malformed one")
	}
}

func TestWatermillEventBus_HandleRejectsUnknownTypes(t *testing.T) {
	bus := newBus(t)

	err := bus.Handle(events.EventType("workflow.unknown"), func(context.Context, any) error { return nil })
	require.Error(t, err)
}

func TestFactPublisher_PublishesEachFact(t *testing.T) {
	bus := newBus(t)
	received := make(chan *events.WorkflowFact, 2)

	require.NoError(t, bus.Handle(events.WorkflowFactEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowFact)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := eventbus.NewFactPublisher(bus).PublishFacts(ctx, []models.Fact{
		{Type: models.FactWorkflowCreated, WorkflowID: "wf-1", TenantID: "tenant-1", OccurredAt: now},
		{Type: models.FactWorkflowActivated, WorkflowID: "wf-1", TenantID: "tenant-1", OccurredAt: now},
	})
	require.NoError(t, err)

	got := make([]models.FactType, 0, 2)

	for range 2 {
		select {
		case fact := <-received:
			assert.Equal(t, "wf-1", fact.Fact.WorkflowID)
			assert.True(t, fact.Timestamp.Equal(now))
			got = append(got, fact.Fact.Type)
		case <-time.After(5 * time.Second):
			t.Fatal("fact was not delivered")
		}
	}

	assert.ElementsMatch(t, []models.FactType{models.FactWorkflowCreated, models.FactWorkflowActivated}, got)
}

func TestIngester(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("GenerateID").Return("evt-1")
	bus.On("Publish", mock.Anything, "tenant-1", mock.AnythingOfType("events.BusinessEvent")).Return(nil)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ingester := eventbus.NewIngester(bus, clockwork.NewFakeClockAt(now))

	event, err := ingester.Ingest(t.Context(), models.TriggerSaleCompleted, "tenant-1", map[string]any{"total": 120})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, now, event.OccurredAt)
	bus.AssertNumberOfCalls(t, "Publish", 1)

	_, err = ingester.Ingest(t.Context(), "FULL_MOON", "tenant-1", nil)
	assert.True(t, models.IsValidationError(err))

	_, err = ingester.Ingest(t.Context(), models.TriggerSaleCompleted, " ", nil)
	assert.True(t, models.IsValidationError(err))

	bus.AssertNumberOfCalls(t, "Publish", 1)
}
