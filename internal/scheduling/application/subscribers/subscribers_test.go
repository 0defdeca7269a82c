package subscribers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	changes []domain.SlotChanged
}

func (r *recordingSink) Notify(changes ...domain.SlotChanged) {
	r.changes = append(r.changes, changes...)
}

func TestSlotFreedSubscriber_Handle(t *testing.T) {
	start := time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)
	res := domain.Reservation{
		ParticipantID: uuid.New(),
		SlotID:        uuid.New(),
		AppointmentID: uuid.New(),
		Window:        domain.WindowFrom(start, time.Hour),
	}
	payload, err := json.Marshal(domain.NewSlotFreed(res))
	require.NoError(t, err)

	sink := &recordingSink{}
	sub := NewSlotFreedSubscriber(sink, nil)
	require.Equal(t, []string{domain.RoutingKeySlotFreed}, sub.EventTypes())

	err = sub.Handle(context.Background(), &eventbus.ConsumedEvent{RoutingKey: domain.RoutingKeySlotFreed, Payload: payload})
	require.NoError(t, err)

	require.Len(t, sink.changes, 1)
	got := sink.changes[0]
	assert.Equal(t, domain.SlotReleased, got.Change)
	assert.Equal(t, res.ParticipantID, got.ParticipantID)
	assert.Equal(t, res.AppointmentID, got.AppointmentID)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.EndTime.Equal(start.Add(time.Hour)))
}

func TestSlotFreedSubscriber_IgnoresBadPayloads(t *testing.T) {
	sink := &recordingSink{}
	sub := NewSlotFreedSubscriber(sink, nil)

	assert.NoError(t, sub.Handle(context.Background(), &eventbus.ConsumedEvent{Payload: json.RawMessage(`{`)}))
	assert.NoError(t, sub.Handle(context.Background(), &eventbus.ConsumedEvent{Payload: json.RawMessage(`{"participant_id":"`+uuid.NewString()+`"}`)}))
	assert.Empty(t, sink.changes)
}

func TestOutcomeMetricsSubscriber_CountsByRoutingKey(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	sub := NewOutcomeMetricsSubscriber(metrics, nil)
	registry := eventbus.NewConsumerRegistry(nil)
	registry.Register(sub)

	ctx := context.Background()
	for _, key := range []string{
		domain.RoutingKeyAppointmentConfirmed,
		domain.RoutingKeyAppointmentConfirmed,
		domain.RoutingKeyAppointmentWeatherHold,
		domain.RoutingKeySlotFreed,
	} {
		require.NoError(t, registry.Dispatch(ctx, &eventbus.ConsumedEvent{EventID: uuid.New(), RoutingKey: key}))
	}

	tag := func(key string) observability.Tag { return observability.T("routing_key", key) }
	assert.Equal(t, int64(2), metrics.GetCounter(observability.MetricEventsConsumed, tag(domain.RoutingKeyAppointmentConfirmed)))
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsConsumed, tag(domain.RoutingKeyAppointmentWeatherHold)))
	assert.Zero(t, metrics.GetCounter(observability.MetricEventsConsumed, tag(domain.RoutingKeySlotFreed)))
}
