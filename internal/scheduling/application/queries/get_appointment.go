package queries

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// AppointmentView is the read model of one appointment.
type AppointmentView struct {
	Appointment  *domain.Appointment
	Group        *domain.CoordinationGroup
	Reservations []domain.Reservation
	Conflicts    []*domain.Conflict
}

// PendingConflicts returns the conflicts still awaiting a resolution.
func (v AppointmentView) PendingConflicts() []*domain.Conflict {
	var out []*domain.Conflict
	for _, c := range v.Conflicts {
		if c.IsPending() {
			out = append(out, c)
		}
	}
	return out
}

// GetAppointmentQuery identifies the appointment to load.
type GetAppointmentQuery struct {
	AppointmentID uuid.UUID
}

// GetAppointmentHandler handles the GetAppointmentQuery.
type GetAppointmentHandler struct {
	appointments domain.AppointmentRepository
	coordination domain.CoordinationRepository
	conflicts    domain.ConflictRepository
	store        domain.AvailabilityStore
}

// NewGetAppointmentHandler creates a new GetAppointmentHandler.
func NewGetAppointmentHandler(
	appointments domain.AppointmentRepository,
	coordination domain.CoordinationRepository,
	conflicts domain.ConflictRepository,
	store domain.AvailabilityStore,
) *GetAppointmentHandler {
	return &GetAppointmentHandler{
		appointments: appointments,
		coordination: coordination,
		conflicts:    conflicts,
		store:        store,
	}
}

// Handle executes the GetAppointmentQuery.
func (h *GetAppointmentHandler) Handle(ctx context.Context, query GetAppointmentQuery) (*AppointmentView, error) {
	appt, err := h.appointments.FindByID(ctx, query.AppointmentID)
	if err != nil {
		return nil, err
	}
	view := &AppointmentView{Appointment: appt}

	group, err := h.coordination.FindByAppointment(ctx, appt.ID())
	switch {
	case err == nil:
		view.Group = group
	case !errors.Is(err, domain.ErrCoordinationNotFound):
		return nil, err
	}

	if view.Reservations, err = h.store.ReservationsForAppointment(ctx, appt.ID()); err != nil {
		return nil, err
	}
	if view.Conflicts, err = h.conflicts.FindByAppointment(ctx, appt.ID()); err != nil {
		return nil, err
	}
	return view, nil
}
