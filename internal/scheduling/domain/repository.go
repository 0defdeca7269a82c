package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentRepository defines persistence for appointments.
type AppointmentRepository interface {
	// Save persists an appointment (create or update).
	Save(ctx context.Context, appointment *Appointment) error

	// FindByID finds an appointment by its ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindByStatusInRange finds appointments with one of statuses starting inside r.
	FindByStatusInRange(ctx context.Context, statuses []AppointmentStatus, r TimeRange) ([]*Appointment, error)
}

// ParticipantRepository defines persistence for participants.
type ParticipantRepository interface {
	Save(ctx context.Context, participant *Participant) error
	FindByID(ctx context.Context, id uuid.UUID) (*Participant, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Participant, error)
	// FindActive returns bookable participants holding every skill in skills.
	FindActive(ctx context.Context, skills []string) ([]*Participant, error)
}

// AvailabilityStore owns slots and reservations. Reserve and the bulk
// reservation operations are atomic per participant.
type AvailabilityStore interface {
	SaveSlot(ctx context.Context, slot *AvailabilitySlot) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	FindSlot(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)
	FindSlotByExternalRef(ctx context.Context, participantID uuid.UUID, ref string) (*AvailabilitySlot, error)
	SlotsInRange(ctx context.Context, participantIDs []uuid.UUID, r TimeRange) ([]*AvailabilitySlot, error)

	ReservationsInRange(ctx context.Context, participantIDs []uuid.UUID, r TimeRange) ([]Reservation, error)
	ReservationsForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reservation, error)

	// Reserve applies rules against live state and stores the reservation, or
	// returns a *ReservationConflictError.
	Reserve(ctx context.Context, req ReserveRequest, rules ReservationRules) (*Reservation, error)
	// Release removes the participant's reservations inside window and returns them.
	Release(ctx context.Context, participantID uuid.UUID, window TimeRange) ([]Reservation, error)
	// ReleaseAppointment removes every reservation of an appointment and returns them.
	ReleaseAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reservation, error)
	// ConfirmAppointment turns an appointment's provisional holds into confirmed reservations.
	ConfirmAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reservation, error)
}

// ConflictRepository defines persistence for conflicts.
type ConflictRepository interface {
	Save(ctx context.Context, conflict *Conflict) error
	FindByID(ctx context.Context, id uuid.UUID) (*Conflict, error)
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Conflict, error)
}

// CoordinationRepository defines persistence for coordination groups.
type CoordinationRepository interface {
	Save(ctx context.Context, group *CoordinationGroup) error
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*CoordinationGroup, error)
	// FindExpiring returns open groups whose deadline is at or before now.
	FindExpiring(ctx context.Context, now time.Time) ([]*CoordinationGroup, error)
}

// AuditRepository defines persistence for the audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entries ...AuditEntry) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]AuditEntry, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]AuditEntry, error)
}
