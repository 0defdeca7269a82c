// Package subscribers reacts to scheduling events delivered by the event bus.
package subscribers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/eventbus"
)

// SlotSink receives slot changes, typically the availability registry.
type SlotSink interface {
	Notify(changes ...domain.SlotChanged)
}

// SlotFreedSubscriber turns slot.freed events from other processes into
// local slot-watch notifications, so watchers learn about capacity freed by
// cancellations made anywhere.
type SlotFreedSubscriber struct {
	sink   SlotSink
	logger *slog.Logger
}

// NewSlotFreedSubscriber creates a new slot freed subscriber.
func NewSlotFreedSubscriber(sink SlotSink, logger *slog.Logger) *SlotFreedSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlotFreedSubscriber{sink: sink, logger: logger}
}

// EventTypes returns the event types this subscriber handles.
func (s *SlotFreedSubscriber) EventTypes() []string {
	return []string{domain.RoutingKeySlotFreed}
}

// Handle processes a slot.freed event.
func (s *SlotFreedSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload domain.SlotFreed
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal slot freed payload",
			"event_id", event.EventID,
			"error", err,
		)
		return nil // Don't fail the event
	}

	res := domain.Reservation{
		ParticipantID: payload.ParticipantID,
		SlotID:        payload.SlotID,
		AppointmentID: payload.AppointmentID,
		Window:        domain.TimeRange{Start: payload.StartTime, End: payload.EndTime},
	}
	if res.Window.IsZero() {
		s.logger.Warn("slot freed event without a window", "event_id", event.EventID)
		return nil
	}
	s.sink.Notify(domain.NewSlotChanged(res, domain.SlotReleased))

	s.logger.DebugContext(ctx, "slot freed",
		"participant_id", payload.ParticipantID,
		"appointment_id", payload.AppointmentID,
		"start", payload.StartTime,
	)
	return nil
}
