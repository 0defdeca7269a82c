package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/crewplan/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType     = "Appointment"
	SlotAggregateType = "AvailabilitySlot"

	RoutingKeyAppointmentProposed         = "appointment.proposed"
	RoutingKeyAppointmentConfirmed        = "appointment.confirmed"
	RoutingKeyAppointmentCancelled        = "appointment.cancelled"
	RoutingKeyAppointmentRescheduled      = "appointment.rescheduled"
	RoutingKeyAppointmentWeatherHold      = "appointment.weather_hold"
	RoutingKeyAppointmentConflictDetected = "appointment.conflict_detected"
	RoutingKeyAppointmentQuorumTimeout    = "appointment.quorum_timeout"
	RoutingKeySlotChanged                 = "scheduling.slot.changed"
	RoutingKeySlotFreed                   = "slot.freed"
)

// AppointmentProposed is emitted when a multi-participant appointment opens coordination.
type AppointmentProposed struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Kind          AppointmentKind `json:"kind"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	Participants  []uuid.UUID     `json:"participants"`
	MinQuorum     int             `json:"min_quorum"`
	Deadline      time.Time       `json:"deadline"`
}

// NewAppointmentProposed creates an AppointmentProposed event
func NewAppointmentProposed(a *Appointment, deadline time.Time) AppointmentProposed {
	return AppointmentProposed{
		BaseEvent:     sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentProposed),
		AppointmentID: a.ID(),
		Kind:          a.Kind(),
		StartTime:     a.Window().Start,
		EndTime:       a.Window().End,
		Participants:  a.Participants(),
		MinQuorum:     a.MinQuorum(),
		Deadline:      deadline,
	}
}

// AppointmentConfirmed is emitted when an appointment is booked.
type AppointmentConfirmed struct {
	sharedDomain.BaseEvent
	AppointmentID  uuid.UUID       `json:"appointment_id"`
	Kind           AppointmentKind `json:"kind"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	Location       Location        `json:"location"`
	Participants   []uuid.UUID     `json:"participants"`
	WeatherOutcome string          `json:"weather_outcome"`
	Notes          []string        `json:"notes,omitempty"`
}

// NewAppointmentConfirmed creates an AppointmentConfirmed event
func NewAppointmentConfirmed(a *Appointment, participants []uuid.UUID) AppointmentConfirmed {
	outcome := "skipped"
	if c := a.LastWeatherCheck(); c != nil {
		outcome = c.Outcome()
	}
	return AppointmentConfirmed{
		BaseEvent:      sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentConfirmed),
		AppointmentID:  a.ID(),
		Kind:           a.Kind(),
		StartTime:      a.Window().Start,
		EndTime:        a.Window().End,
		Location:       a.Location(),
		Participants:   participants,
		WeatherOutcome: outcome,
		Notes:          a.Notes(),
	}
}

// AppointmentCancelled is emitted when an appointment is cancelled.
type AppointmentCancelled struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID   `json:"appointment_id"`
	Reason        string      `json:"reason"`
	Participants  []uuid.UUID `json:"participants"`
}

// NewAppointmentCancelled creates an AppointmentCancelled event
func NewAppointmentCancelled(a *Appointment, reason string) AppointmentCancelled {
	return AppointmentCancelled{
		BaseEvent:     sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentCancelled),
		AppointmentID: a.ID(),
		Reason:        reason,
		Participants:  a.Participants(),
	}
}

// AppointmentRescheduled links a replaced appointment to its successor.
type AppointmentRescheduled struct {
	sharedDomain.BaseEvent
	AppointmentID    uuid.UUID `json:"appointment_id"`
	NewAppointmentID uuid.UUID `json:"new_appointment_id"`
	OldStartTime     time.Time `json:"old_start_time"`
	OldEndTime       time.Time `json:"old_end_time"`
}

// NewAppointmentRescheduled creates an AppointmentRescheduled event
func NewAppointmentRescheduled(a *Appointment, newID uuid.UUID) AppointmentRescheduled {
	return AppointmentRescheduled{
		BaseEvent:        sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentRescheduled),
		AppointmentID:    a.ID(),
		NewAppointmentID: newID,
		OldStartTime:     a.Window().Start,
		OldEndTime:       a.Window().End,
	}
}

// AppointmentWeatherHold is emitted when a recheck fails for a confirmed appointment.
type AppointmentWeatherHold struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID  `json:"appointment_id"`
	Reasons       []string   `json:"reasons"`
	BackupDate    *time.Time `json:"backup_date,omitempty"`
}

// NewAppointmentWeatherHold creates an AppointmentWeatherHold event
func NewAppointmentWeatherHold(a *Appointment, check WeatherCheck) AppointmentWeatherHold {
	return AppointmentWeatherHold{
		BaseEvent:     sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAppointmentWeatherHold),
		AppointmentID: a.ID(),
		Reasons:       check.Reasons,
		BackupDate:    a.BackupDate(),
	}
}

// ConflictDetected is emitted when a commit or recheck yields conflicts.
type ConflictDetected struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID      `json:"appointment_id"`
	ConflictIDs   []uuid.UUID    `json:"conflict_ids"`
	Types         []ConflictType `json:"types"`
	Blocking      bool           `json:"blocking"`
}

// NewConflictDetected creates a ConflictDetected event
func NewConflictDetected(appointmentID uuid.UUID, conflicts []*Conflict) ConflictDetected {
	e := ConflictDetected{
		BaseEvent:     sharedDomain.NewBaseEvent(appointmentID, AggregateType, RoutingKeyAppointmentConflictDetected),
		AppointmentID: appointmentID,
	}
	for _, c := range conflicts {
		e.ConflictIDs = append(e.ConflictIDs, c.ID())
		e.Types = append(e.Types, c.Type())
		if c.Severity() == SeverityHard {
			e.Blocking = true
		}
	}
	return e
}

// QuorumTimedOut is emitted when coordination expires without quorum.
type QuorumTimedOut struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID   `json:"appointment_id"`
	GroupID       uuid.UUID   `json:"group_id"`
	Held          []uuid.UUID `json:"held"`
	MinQuorum     int         `json:"min_quorum"`
}

// NewQuorumTimedOut creates a QuorumTimedOut event
func NewQuorumTimedOut(g *CoordinationGroup, held []uuid.UUID) QuorumTimedOut {
	return QuorumTimedOut{
		BaseEvent:     sharedDomain.NewBaseEvent(g.AppointmentID(), AggregateType, RoutingKeyAppointmentQuorumTimeout),
		AppointmentID: g.AppointmentID(),
		GroupID:       g.ID(),
		Held:          held,
		MinQuorum:     g.MinQuorum(),
	}
}

// SlotChange names what happened to a participant's calendar.
type SlotChange string

const (
	SlotReserved  SlotChange = "reserved"
	SlotReleased  SlotChange = "released"
	SlotConfirmed SlotChange = "confirmed"
	SlotUpdated   SlotChange = "updated"
)

// SlotChanged signals that a participant's bookable state moved.
type SlotChanged struct {
	sharedDomain.BaseEvent
	ParticipantID uuid.UUID  `json:"participant_id"`
	SlotID        uuid.UUID  `json:"slot_id"`
	AppointmentID uuid.UUID  `json:"appointment_id,omitempty"`
	Change        SlotChange `json:"change"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
}

// NewSlotChanged creates a SlotChanged event for a reservation.
func NewSlotChanged(res Reservation, change SlotChange) SlotChanged {
	return SlotChanged{
		BaseEvent:     sharedDomain.NewBaseEvent(res.ParticipantID, SlotAggregateType, RoutingKeySlotChanged),
		ParticipantID: res.ParticipantID,
		SlotID:        res.SlotID,
		AppointmentID: res.AppointmentID,
		Change:        change,
		StartTime:     res.Window.Start,
		EndTime:       res.Window.End,
	}
}

// NewSlotUpdated creates a SlotChanged event for an upstream slot edit.
func NewSlotUpdated(slot *AvailabilitySlot) SlotChanged {
	return SlotChanged{
		BaseEvent:     sharedDomain.NewBaseEvent(slot.ParticipantID(), SlotAggregateType, RoutingKeySlotChanged),
		ParticipantID: slot.ParticipantID(),
		SlotID:        slot.ID(),
		Change:        SlotUpdated,
		StartTime:     slot.Window().Start,
		EndTime:       slot.Window().End,
	}
}

// SlotFreed is emitted for every reservation released by a cancellation.
type SlotFreed struct {
	sharedDomain.BaseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// NewSlotFreed creates a SlotFreed event
func NewSlotFreed(res Reservation) SlotFreed {
	return SlotFreed{
		BaseEvent:     sharedDomain.NewBaseEvent(res.AppointmentID, AggregateType, RoutingKeySlotFreed),
		AppointmentID: res.AppointmentID,
		ParticipantID: res.ParticipantID,
		SlotID:        res.SlotID,
		StartTime:     res.Window.Start,
		EndTime:       res.Window.End,
	}
}
