package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/felixgeelhaar/crewplan/internal/shared/domain"
	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusProposed           AppointmentStatus = "proposed"
	StatusPartiallyConfirmed AppointmentStatus = "partially_confirmed"
	StatusConfirmed          AppointmentStatus = "confirmed"
	StatusWeatherHold        AppointmentStatus = "weather_hold"
	StatusCancelled          AppointmentStatus = "cancelled"
	StatusRescheduled        AppointmentStatus = "rescheduled"
)

var validTransitions = map[AppointmentStatus]map[AppointmentStatus]bool{
	StatusProposed: {
		StatusPartiallyConfirmed: true,
		StatusConfirmed:          true,
		StatusCancelled:          true,
		StatusRescheduled:        true,
	},
	StatusPartiallyConfirmed: {
		StatusPartiallyConfirmed: true,
		StatusConfirmed:          true,
		StatusCancelled:          true,
		StatusRescheduled:        true,
	},
	StatusConfirmed: {
		StatusWeatherHold: true,
		StatusCancelled:   true,
		StatusRescheduled: true,
	},
	StatusWeatherHold: {
		StatusConfirmed:   true,
		StatusCancelled:   true,
		StatusRescheduled: true,
	},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to AppointmentStatus) bool {
	return validTransitions[from][to]
}

// IsTerminal reports whether no further transitions are possible.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRescheduled
}

// HoldsReservations reports whether the registry may hold slots for the appointment.
func (s AppointmentStatus) HoldsReservations() bool {
	switch s {
	case StatusPartiallyConfirmed, StatusConfirmed, StatusWeatherHold:
		return true
	default:
		return false
	}
}

// Appointment is the aggregate root for a booked field visit.
type Appointment struct {
	sharedDomain.BaseAggregateRoot
	kind             AppointmentKind
	priority         Priority
	window           TimeRange
	location         Location
	weatherDependent bool
	backupDate       *time.Time
	required         []uuid.UUID
	optional         []uuid.UUID
	lead             uuid.UUID
	minQuorum        int
	status           AppointmentStatus
	weatherCheck     *WeatherCheck
	notes            []string
	customerRef      string
	score            float64
	rescheduledFrom  *uuid.UUID
	rescheduledTo    *uuid.UUID
	cancelReason     string
}

// NewAppointment drafts a Proposed appointment from a normalized request and the
// chosen candidate. Pool requests book the candidate's participant as lead.
func NewAppointment(req SchedulingRequest, candidate CandidateSlot) (*Appointment, error) {
	if candidate.ParticipantID == uuid.Nil {
		return nil, NewValidationError("candidate", "has no participant")
	}
	if !candidate.Window.End.After(candidate.Window.Start) {
		return nil, ErrInvalidTimeRange
	}

	required := append([]uuid.UUID(nil), req.RequiredParticipants...)
	optional := append([]uuid.UUID(nil), req.OptionalParticipants...)
	lead := req.Lead()
	if lead == uuid.Nil {
		lead = candidate.ParticipantID
		required = []uuid.UUID{lead}
	}
	if lead != candidate.ParticipantID {
		return nil, NewValidationError("candidate", "is not led by the designated lead participant")
	}
	quorum := req.MinQuorum
	if quorum < 1 {
		quorum = 1
	}

	return &Appointment{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		kind:              req.Kind,
		priority:          req.Priority,
		window:            candidate.Window,
		location:          req.Location,
		weatherDependent:  req.IsWeatherDependent(),
		backupDate:        req.BackupDate,
		required:          required,
		optional:          optional,
		lead:              lead,
		minQuorum:         quorum,
		status:            StatusProposed,
		customerRef:       req.CustomerRef,
		score:             candidate.Score,
	}, nil
}

// AppointmentSnapshot carries persisted state for rehydration.
type AppointmentSnapshot struct {
	ID               uuid.UUID
	Kind             AppointmentKind
	Priority         Priority
	Window           TimeRange
	Location         Location
	WeatherDependent bool
	BackupDate       *time.Time
	Required         []uuid.UUID
	Optional         []uuid.UUID
	Lead             uuid.UUID
	MinQuorum        int
	Status           AppointmentStatus
	WeatherCheck     *WeatherCheck
	Notes            []string
	CustomerRef      string
	Score            float64
	RescheduledFrom  *uuid.UUID
	RescheduledTo    *uuid.UUID
	CancelReason     string
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RehydrateAppointment recreates an appointment from persisted state.
func RehydrateAppointment(s AppointmentSnapshot) *Appointment {
	entity := sharedDomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt)
	return &Appointment{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, s.Version),
		kind:              s.Kind,
		priority:          s.Priority,
		window:            s.Window,
		location:          s.Location,
		weatherDependent:  s.WeatherDependent,
		backupDate:        s.BackupDate,
		required:          s.Required,
		optional:          s.Optional,
		lead:              s.Lead,
		minQuorum:         s.MinQuorum,
		status:            s.Status,
		weatherCheck:      s.WeatherCheck,
		notes:             s.Notes,
		customerRef:       s.CustomerRef,
		score:             s.Score,
		rescheduledFrom:   s.RescheduledFrom,
		rescheduledTo:     s.RescheduledTo,
		cancelReason:      s.CancelReason,
	}
}

// Snapshot exports the persisted state.
func (a *Appointment) Snapshot() AppointmentSnapshot {
	return AppointmentSnapshot{
		ID:               a.ID(),
		Kind:             a.kind,
		Priority:         a.priority,
		Window:           a.window,
		Location:         a.location,
		WeatherDependent: a.weatherDependent,
		BackupDate:       a.backupDate,
		Required:         a.RequiredParticipants(),
		Optional:         a.OptionalParticipants(),
		Lead:             a.lead,
		MinQuorum:        a.minQuorum,
		Status:           a.status,
		WeatherCheck:     a.weatherCheck,
		Notes:            a.Notes(),
		CustomerRef:      a.customerRef,
		Score:            a.score,
		RescheduledFrom:  a.rescheduledFrom,
		RescheduledTo:    a.rescheduledTo,
		CancelReason:     a.cancelReason,
		Version:          a.Version(),
		CreatedAt:        a.CreatedAt(),
		UpdatedAt:        a.UpdatedAt(),
	}
}

func (a *Appointment) Kind() AppointmentKind           { return a.kind }
func (a *Appointment) Priority() Priority              { return a.priority }
func (a *Appointment) Window() TimeRange               { return a.window }
func (a *Appointment) Location() Location              { return a.location }
func (a *Appointment) WeatherDependent() bool          { return a.weatherDependent }
func (a *Appointment) BackupDate() *time.Time          { return a.backupDate }
func (a *Appointment) Lead() uuid.UUID                 { return a.lead }
func (a *Appointment) MinQuorum() int                  { return a.minQuorum }
func (a *Appointment) Status() AppointmentStatus       { return a.status }
func (a *Appointment) LastWeatherCheck() *WeatherCheck { return a.weatherCheck }
func (a *Appointment) CustomerRef() string             { return a.customerRef }
func (a *Appointment) Score() float64                  { return a.score }
func (a *Appointment) RescheduledFrom() *uuid.UUID     { return a.rescheduledFrom }
func (a *Appointment) RescheduledTo() *uuid.UUID       { return a.rescheduledTo }
func (a *Appointment) CancelReason() string            { return a.cancelReason }

func (a *Appointment) RequiredParticipants() []uuid.UUID {
	return append([]uuid.UUID(nil), a.required...)
}

func (a *Appointment) OptionalParticipants() []uuid.UUID {
	return append([]uuid.UUID(nil), a.optional...)
}

// Participants lists required then optional participants.
func (a *Appointment) Participants() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(a.required)+len(a.optional))
	out = append(out, a.required...)
	return append(out, a.optional...)
}

// Notes returns a copy of the informational notes.
func (a *Appointment) Notes() []string {
	return append([]string(nil), a.notes...)
}

// IsMultiParticipant reports whether the appointment needs coordination.
func (a *Appointment) IsMultiParticipant() bool {
	return len(a.required)+len(a.optional) > 1
}

// IsParticipant reports whether id was invited.
func (a *Appointment) IsParticipant(id uuid.UUID) bool {
	for _, p := range a.Participants() {
		if p == id {
			return true
		}
	}
	return false
}

// Request rebuilds the scheduling request the appointment answers, anchored on its window.
func (a *Appointment) Request() SchedulingRequest {
	dep := a.weatherDependent
	req := SchedulingRequest{
		RequestID:        uuid.New(),
		Kind:             a.kind,
		Priority:         a.priority,
		PreferredWindows: []TimeRange{a.window},
		SearchRange:      DayRange(a.window.Start),
		Location:         a.location,
		WeatherDependent: &dep,
		BackupDate:       a.backupDate,
		MinQuorum:        a.minQuorum,
		Duration:         a.window.Duration(),
		CustomerRef:      a.customerRef,
	}
	if a.IsMultiParticipant() {
		req.RequiredParticipants = a.RequiredParticipants()
		req.OptionalParticipants = a.OptionalParticipants()
	}
	return req
}

// Retarget moves a Proposed appointment to another candidate before any hold exists.
func (a *Appointment) Retarget(candidate CandidateSlot) error {
	if a.status != StatusProposed {
		return fmt.Errorf("%w: cannot retarget a %s appointment", ErrInvalidTransition, a.status)
	}
	if a.IsMultiParticipant() && candidate.ParticipantID != a.lead {
		return NewValidationError("candidate", "is not led by the designated lead participant")
	}
	a.window = candidate.Window
	a.score = candidate.Score
	if !a.IsMultiParticipant() {
		a.lead = candidate.ParticipantID
		a.required = []uuid.UUID{candidate.ParticipantID}
	}
	a.Touch()
	return nil
}

// RecordWeatherCheck stores the latest suitability result.
func (a *Appointment) RecordWeatherCheck(check WeatherCheck) {
	c := check
	a.weatherCheck = &c
	a.Touch()
}

// AddNote appends an informational note.
func (a *Appointment) AddNote(note string) {
	a.notes = append(a.notes, note)
	a.Touch()
}

// OpenCoordination announces a multi-participant proposal.
func (a *Appointment) OpenCoordination(deadline time.Time) error {
	if a.status != StatusProposed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.status, StatusProposed)
	}
	a.AddDomainEvent(NewAppointmentProposed(a, deadline))
	return nil
}

// MarkPartiallyConfirmed records that some, but not enough, holds exist.
func (a *Appointment) MarkPartiallyConfirmed() error {
	return a.transition(StatusPartiallyConfirmed)
}

// Confirm books the appointment. confirmed lists participants holding reservations.
// Weather-dependent appointments need a satisfied check or a backup date; a failed
// check with a backup date confirms with a note.
func (a *Appointment) Confirm(check WeatherCheck, confirmed []uuid.UUID) error {
	if !CanTransition(a.status, StatusConfirmed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.status, StatusConfirmed)
	}
	var note string
	if a.weatherDependent && !check.Satisfied() {
		if a.backupDate == nil {
			return ErrWeatherUnsatisfied
		}
		note = fmt.Sprintf("weather unsuitable (%s); backup date %s held",
			joinReasons(check.Reasons), a.backupDate.Format("2006-01-02"))
	}
	if !a.quorumHeld(confirmed) {
		return fmt.Errorf("%w: %d of %d held", ErrQuorumNotMet, len(confirmed), a.minQuorum)
	}
	if note != "" {
		a.notes = append(a.notes, note)
	}

	if a.weatherDependent {
		a.RecordWeatherCheck(check)
	} else {
		a.RecordWeatherCheck(SkippedWeatherCheck(check.CheckedAt))
	}
	if err := a.transition(StatusConfirmed); err != nil {
		return err
	}
	a.AddDomainEvent(NewAppointmentConfirmed(a, confirmed))
	return nil
}

func (a *Appointment) quorumHeld(confirmed []uuid.UUID) bool {
	leadHeld := false
	count := 0
	for _, id := range confirmed {
		if !a.IsParticipant(id) {
			continue
		}
		count++
		if id == a.lead {
			leadHeld = true
		}
	}
	return leadHeld && count >= a.minQuorum
}

// PlaceOnWeatherHold suspends a confirmed appointment after a failed recheck.
func (a *Appointment) PlaceOnWeatherHold(check WeatherCheck) error {
	if err := a.transition(StatusWeatherHold); err != nil {
		return err
	}
	a.RecordWeatherCheck(check)
	a.AddDomainEvent(NewAppointmentWeatherHold(a, check))
	return nil
}

// ReleaseWeatherHold reconfirms an appointment once conditions pass again.
func (a *Appointment) ReleaseWeatherHold(check WeatherCheck) error {
	if a.status != StatusWeatherHold {
		return fmt.Errorf("%w: %s is not on weather hold", ErrInvalidTransition, a.status)
	}
	if !check.Satisfied() {
		return ErrWeatherUnsatisfied
	}
	a.RecordWeatherCheck(check)
	if err := a.transition(StatusConfirmed); err != nil {
		return err
	}
	a.AddDomainEvent(NewAppointmentConfirmed(a, a.Participants()))
	return nil
}

// Cancel ends the appointment. Callers release its reservations in the same unit of work.
func (a *Appointment) Cancel(reason string) error {
	if err := a.transition(StatusCancelled); err != nil {
		return err
	}
	a.cancelReason = reason
	a.AddDomainEvent(NewAppointmentCancelled(a, reason))
	return nil
}

// RecordSlotsFreed emits a SlotFreed event per released reservation.
func (a *Appointment) RecordSlotsFreed(released []Reservation) {
	for _, res := range released {
		a.AddDomainEvent(NewSlotFreed(res))
	}
}

// MarkRescheduled links the appointment to its successor and ends it.
func (a *Appointment) MarkRescheduled(newID uuid.UUID) error {
	if err := a.transition(StatusRescheduled); err != nil {
		return err
	}
	id := newID
	a.rescheduledTo = &id
	a.AddDomainEvent(NewAppointmentRescheduled(a, newID))
	return nil
}

// LinkRescheduledFrom records the appointment this one replaces.
func (a *Appointment) LinkRescheduledFrom(previousID uuid.UUID) {
	id := previousID
	a.rescheduledFrom = &id
}

// RecordConflicts emits a ConflictDetected event.
func (a *Appointment) RecordConflicts(conflicts []*Conflict) {
	if len(conflicts) == 0 {
		return
	}
	a.AddDomainEvent(NewConflictDetected(a.ID(), conflicts))
}

func (a *Appointment) transition(to AppointmentStatus) error {
	if !CanTransition(a.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.status, to)
	}
	a.status = to
	a.Touch()
	return nil
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "no forecast detail"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
