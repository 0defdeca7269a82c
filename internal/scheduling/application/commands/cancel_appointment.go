package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/crewplan/internal/shared/application"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
)

// CancelAppointmentCommand contains the data needed to cancel an appointment.
type CancelAppointmentCommand struct {
	AppointmentID uuid.UUID
	Reason        string
	RequestedBy   uuid.UUID
}

// CancelAppointmentResult lists the reservations the cancellation freed.
type CancelAppointmentResult struct {
	Appointment *domain.Appointment
	Released    []domain.Reservation
}

// CancelAppointmentHandler handles the CancelAppointmentCommand.
type CancelAppointmentHandler struct {
	booker *Booker
}

// NewCancelAppointmentHandler creates a new CancelAppointmentHandler.
func NewCancelAppointmentHandler(booker *Booker) *CancelAppointmentHandler {
	return &CancelAppointmentHandler{booker: booker}
}

// Handle releases every hold of the appointment and cancels it in one unit of
// work. Each freed reservation emits slot.freed.
func (h *CancelAppointmentHandler) Handle(ctx context.Context, cmd CancelAppointmentCommand) (*CancelAppointmentResult, error) {
	b := h.booker
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = "cancelled by request"
	}
	result := &CancelAppointmentResult{}

	err := sharedApplication.WithUnitOfWork(ctx, b.UnitOfWork, func(txCtx context.Context) error {
		appt, err := b.Appointments.FindByID(txCtx, cmd.AppointmentID)
		if err != nil {
			return err
		}
		if appt.Status().IsTerminal() {
			return fmt.Errorf("%w: appointment is already %s", domain.ErrInvalidTransition, appt.Status())
		}
		released, err := b.Planner.Registry().ReleaseAppointment(txCtx, appt.ID())
		if err != nil {
			return err
		}
		if err := appt.Cancel(reason); err != nil {
			return err
		}
		appt.RecordSlotsFreed(released)

		group, err := b.Coordination.FindByAppointment(txCtx, appt.ID())
		switch {
		case err == nil:
			if group.IsOpen() {
				if err := group.Cancel(); err != nil {
					return err
				}
				if err := b.Coordination.Save(txCtx, group); err != nil {
					return err
				}
			}
		case !errors.Is(err, domain.ErrCoordinationNotFound):
			return err
		}

		if err := b.Appointments.Save(txCtx, appt); err != nil {
			return err
		}
		if err := b.Audit.Append(txCtx, domain.NewAuditEntry(appt.ID(), domain.AuditCancelled, true, reason)); err != nil {
			return err
		}
		result.Appointment = appt
		result.Released = released
		return b.emit(txCtx, cmd.RequestedBy, appt)
	})
	if err != nil {
		return nil, err
	}

	b.Metrics.Counter(observability.MetricCancellations, 1, observability.T("reason", "requested"))
	b.Logger.InfoContext(ctx, "appointment cancelled",
		"appointment_id", cmd.AppointmentID,
		"released", len(result.Released),
	)
	return result, nil
}
