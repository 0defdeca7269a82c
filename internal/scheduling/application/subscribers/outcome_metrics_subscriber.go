package subscribers

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
)

// OutcomeMetricsSubscriber counts delivered appointment lifecycle events.
// It runs in the worker, so the counters reflect what the broker delivered
// rather than what one API process emitted.
type OutcomeMetricsSubscriber struct {
	metrics observability.Metrics
	logger  *slog.Logger
}

// NewOutcomeMetricsSubscriber creates the subscriber.
func NewOutcomeMetricsSubscriber(metrics observability.Metrics, logger *slog.Logger) *OutcomeMetricsSubscriber {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutcomeMetricsSubscriber{metrics: metrics, logger: logger}
}

// EventTypes returns the event types this subscriber handles.
func (s *OutcomeMetricsSubscriber) EventTypes() []string {
	return []string{
		domain.RoutingKeyAppointmentProposed,
		domain.RoutingKeyAppointmentConfirmed,
		domain.RoutingKeyAppointmentCancelled,
		domain.RoutingKeyAppointmentRescheduled,
		domain.RoutingKeyAppointmentWeatherHold,
		domain.RoutingKeyAppointmentConflictDetected,
		domain.RoutingKeyAppointmentQuorumTimeout,
	}
}

// Handle records the event.
func (s *OutcomeMetricsSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	s.metrics.Counter(observability.MetricEventsConsumed, 1, observability.T("routing_key", event.RoutingKey))

	if event.RoutingKey == domain.RoutingKeyAppointmentWeatherHold {
		s.logger.WarnContext(ctx, "appointment placed on weather hold",
			"appointment_id", event.AggregateID,
			"event_id", event.EventID,
		)
	}
	return nil
}
