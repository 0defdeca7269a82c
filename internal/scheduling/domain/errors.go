package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrNoAvailability          = errors.New("no availability")
	ErrExternalServiceDegraded = errors.New("external service degraded")
	ErrReservationConflict     = errors.New("reservation conflict")
	ErrQuorumTimeout           = errors.New("quorum timeout")

	ErrInvalidTimeRange       = errors.New("end time must be after start time")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrWeatherUnsatisfied     = errors.New("weather check not satisfied and no backup date set")
	ErrQuorumNotMet           = errors.New("quorum not met")
	ErrUnknownAppointmentKind = errors.New("unknown appointment type")
	ErrNotGroupMember         = errors.New("participant is not part of the coordination group")
	ErrCoordinationClosed     = errors.New("coordination group is closed")
	ErrConflictResolved       = errors.New("conflict already resolved")
	ErrOptionNotFound         = errors.New("resolution option not found")

	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrSlotNotFound         = errors.New("availability slot not found")
	ErrConflictNotFound     = errors.New("conflict not found")
	ErrCoordinationNotFound = errors.New("coordination group not found")
	ErrOptimisticLocking    = errors.New("optimistic locking conflict")
)

// ValidationError describes a malformed request, rejected before any lookup.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Constraint names reported by NoAvailabilityError.
const (
	ConstraintSkills           = "required_skills"
	ConstraintTravelRadius     = "travel_radius"
	ConstraintDailyCap         = "daily_cap"
	ConstraintOpenSlot         = "open_slot"
	ConstraintTeamAvailability = "team_availability"
	ConstraintParticipants     = "participants"
)

// NoAvailabilityError names the hard constraint that eliminated every candidate.
type NoAvailabilityError struct {
	Constraint string
	Detail     string
}

func (e *NoAvailabilityError) Error() string {
	return fmt.Sprintf("no availability: %s (%s)", e.Constraint, e.Detail)
}

func (e *NoAvailabilityError) Unwrap() error { return ErrNoAvailability }

// ReservationConflictError reports a lost race for a window, with regenerated
// alternatives when the caller can retry.
type ReservationConflictError struct {
	ParticipantID uuid.UUID
	Window        TimeRange
	Reason        string
	Alternatives  []CandidateSlot
}

func (e *ReservationConflictError) Error() string {
	return fmt.Sprintf("reservation conflict for participant %s at %s: %s", e.ParticipantID, e.Window, e.Reason)
}

func (e *ReservationConflictError) Unwrap() error { return ErrReservationConflict }

// IsReservationConflict reports whether err signals a lost reservation race.
func IsReservationConflict(err error) bool {
	return errors.Is(err, ErrReservationConflict)
}
