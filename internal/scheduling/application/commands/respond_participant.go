package commands

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/crewplan/internal/shared/application"
	"github.com/google/uuid"
)

// RespondParticipantCommand records a coordination member's answer.
type RespondParticipantCommand struct {
	AppointmentID uuid.UUID
	ParticipantID uuid.UUID
	Accept        bool
	RequestedBy   uuid.UUID
}

// RespondParticipantResult reports the coordination state after the answer.
type RespondParticipantResult struct {
	Appointment *domain.Appointment
	Group       *domain.CoordinationGroup
	Reservation *domain.Reservation
	Released    []domain.Reservation
	Confirmed   bool
	Cancelled   bool
}

// RespondParticipantHandler handles the RespondParticipantCommand.
type RespondParticipantHandler struct {
	booker  *Booker
	weather *services.WeatherChecker
}

// NewRespondParticipantHandler creates a new RespondParticipantHandler.
func NewRespondParticipantHandler(booker *Booker, weather *services.WeatherChecker) *RespondParticipantHandler {
	return &RespondParticipantHandler{booker: booker, weather: weather}
}

// Handle places or withdraws the member's provisional hold. The hold that
// completes the quorum confirms every hold and the appointment.
func (h *RespondParticipantHandler) Handle(ctx context.Context, cmd RespondParticipantCommand) (*RespondParticipantResult, error) {
	b := h.booker
	appt, err := b.Appointments.FindByID(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	group, err := b.Coordination.FindByAppointment(ctx, appt.ID())
	if err != nil {
		return nil, err
	}
	check, err := h.currentCheck(ctx, appt)
	if err != nil {
		return nil, err
	}
	result := &RespondParticipantResult{Appointment: appt, Group: group}

	err = sharedApplication.WithUnitOfWork(ctx, b.UnitOfWork, func(txCtx context.Context) error {
		action := "declined"
		if cmd.Accept {
			action = "accepted"
			accepted, err := b.Coordinator.Accept(txCtx, appt, group, cmd.ParticipantID, check)
			if err != nil {
				return err
			}
			result.Reservation = accepted.Reservation
			result.Confirmed = accepted.Confirmed
		} else {
			declined, err := b.Coordinator.Decline(txCtx, appt, group, cmd.ParticipantID)
			if err != nil {
				return err
			}
			result.Released = declined.Released
			result.Cancelled = declined.Cancelled
		}

		if err := b.Appointments.Save(txCtx, appt); err != nil {
			return err
		}
		if err := b.Coordination.Save(txCtx, group); err != nil {
			return err
		}
		entries := []domain.AuditEntry{participantEntry(appt, cmd.ParticipantID, action)}
		switch {
		case result.Confirmed:
			entries = append(entries, domain.NewAuditEntry(appt.ID(), domain.AuditCommitted, true,
				fmt.Sprintf("quorum of %d reached", group.MinQuorum())))
		case result.Cancelled:
			entries = append(entries, domain.NewAuditEntry(appt.ID(), domain.AuditCancelled, false, appt.CancelReason()))
		}
		if err := b.Audit.Append(txCtx, entries...); err != nil {
			return err
		}
		return b.emit(txCtx, cmd.RequestedBy, appt)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// currentCheck re-runs a stale forecast before a hold can confirm the appointment.
func (h *RespondParticipantHandler) currentCheck(ctx context.Context, appt *domain.Appointment) (domain.WeatherCheck, error) {
	last := appt.LastWeatherCheck()
	if !appt.WeatherDependent() {
		if last != nil {
			return *last, nil
		}
		return domain.SkippedWeatherCheck(appt.CreatedAt()), nil
	}
	if !h.weather.IsStale(last) {
		return *last, nil
	}
	apptType, err := h.booker.Planner.Catalog().Lookup(appt.Kind())
	if err != nil {
		return domain.WeatherCheck{}, err
	}
	return h.weather.Check(ctx, appt.Location(), appt.Window().Start, apptType.WeatherProfile), nil
}

func participantEntry(appt *domain.Appointment, participantID uuid.UUID, action string) domain.AuditEntry {
	entry := domain.NewAuditEntry(appt.ID(), domain.AuditParticipantResponded, true, action)
	entry.ParticipantID = participantID
	entry.Window = appt.Window()
	return entry
}
