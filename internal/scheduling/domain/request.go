package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchedulingRequest is the input of find_slots and the draft of an appointment.
type SchedulingRequest struct {
	RequestID            uuid.UUID       `json:"request_id"`
	Kind                 AppointmentKind `json:"kind"`
	Priority             Priority        `json:"priority"`
	PreferredWindows     []TimeRange     `json:"preferred_windows,omitempty"`
	SearchRange          TimeRange       `json:"search_range"`
	Location             Location        `json:"location"`
	WeatherDependent     *bool           `json:"weather_dependent,omitempty"`
	BackupDate           *time.Time      `json:"backup_date,omitempty"`
	RequiredParticipants []uuid.UUID     `json:"required_participants,omitempty"`
	OptionalParticipants []uuid.UUID     `json:"optional_participants,omitempty"`
	MinQuorum            int             `json:"min_quorum,omitempty"`
	Duration             time.Duration   `json:"duration"`
	CustomerRef          string          `json:"customer_ref,omitempty"`
}

// Normalize validates the request against the catalog and fills defaults:
// priority, duration, weather dependency, search range and quorum.
func (r *SchedulingRequest) Normalize(catalog *Catalog) (AppointmentType, error) {
	if r.RequestID == uuid.Nil {
		r.RequestID = uuid.New()
	}
	apptType, err := catalog.Lookup(r.Kind)
	if err != nil {
		return AppointmentType{}, NewValidationError("type", fmt.Sprintf("unknown appointment type %q", r.Kind))
	}
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
	if !r.Priority.IsValid() {
		return AppointmentType{}, NewValidationError("priority", fmt.Sprintf("unknown priority %q", r.Priority))
	}
	if err := r.Location.Validate(); err != nil {
		return AppointmentType{}, err
	}
	if r.Duration == 0 {
		r.Duration = apptType.DefaultDuration
	}
	if r.Duration < 0 {
		return AppointmentType{}, NewValidationError("duration", "must be positive")
	}
	if r.WeatherDependent == nil {
		dep := apptType.WeatherDependent
		r.WeatherDependent = &dep
	}

	for i, w := range r.PreferredWindows {
		if !w.End.After(w.Start) {
			return AppointmentType{}, NewValidationError(fmt.Sprintf("preferred_windows[%d]", i), "end must be after start")
		}
		if w.Duration() < r.Duration {
			return AppointmentType{}, NewValidationError(fmt.Sprintf("preferred_windows[%d]", i), "is shorter than the appointment")
		}
	}
	if r.SearchRange.IsZero() {
		span, ok := SpanOf(r.PreferredWindows)
		if !ok {
			return AppointmentType{}, NewValidationError("preferred_windows", "at least one window or a search range is required")
		}
		r.SearchRange = span
	}
	if !r.SearchRange.End.After(r.SearchRange.Start) {
		return AppointmentType{}, NewValidationError("search_range", "end must be after start")
	}
	if r.BackupDate != nil && DayOf(*r.BackupDate).Before(DayOf(r.SearchRange.Start)) {
		return AppointmentType{}, NewValidationError("backup_date", "must not precede the requested dates")
	}

	if err := r.normalizeParticipants(); err != nil {
		return AppointmentType{}, err
	}
	return apptType, nil
}

func (r *SchedulingRequest) normalizeParticipants() error {
	if len(r.RequiredParticipants) == 0 && len(r.OptionalParticipants) > 0 {
		return NewValidationError("required_participants", "a lead participant is required when optional participants are given")
	}
	seen := make(map[uuid.UUID]struct{})
	for _, id := range r.AllParticipants() {
		if id == uuid.Nil {
			return NewValidationError("participants", "contain an empty id")
		}
		if _, dup := seen[id]; dup {
			return NewValidationError("participants", fmt.Sprintf("participant %s listed twice", id))
		}
		seen[id] = struct{}{}
	}

	total := len(seen)
	if !r.IsMultiParticipant() {
		if r.MinQuorum > 1 {
			return NewValidationError("min_quorum", "exceeds the number of participants")
		}
		r.MinQuorum = 1
		return nil
	}
	if r.MinQuorum == 0 {
		r.MinQuorum = len(r.RequiredParticipants)
	}
	if r.MinQuorum < 1 || r.MinQuorum > total {
		return NewValidationError("min_quorum", fmt.Sprintf("must be between 1 and %d", total))
	}
	return nil
}

// IsWeatherDependent reports the effective weather flag.
func (r SchedulingRequest) IsWeatherDependent() bool {
	return r.WeatherDependent != nil && *r.WeatherDependent
}

// IsMultiParticipant reports whether coordination is needed.
func (r SchedulingRequest) IsMultiParticipant() bool {
	return len(r.RequiredParticipants)+len(r.OptionalParticipants) > 1
}

// Lead returns the designated lead participant, or uuid.Nil for pool requests.
func (r SchedulingRequest) Lead() uuid.UUID {
	if len(r.RequiredParticipants) == 0 {
		return uuid.Nil
	}
	return r.RequiredParticipants[0]
}

// AllParticipants lists required then optional participants.
func (r SchedulingRequest) AllParticipants() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.RequiredParticipants)+len(r.OptionalParticipants))
	out = append(out, r.RequiredParticipants...)
	return append(out, r.OptionalParticipants...)
}

// InPreferredWindow reports whether w lies inside any preferred window.
func (r SchedulingRequest) InPreferredWindow(w TimeRange) bool {
	for _, p := range r.PreferredWindows {
		if p.Contains(w) {
			return true
		}
	}
	return false
}

// WithBackupDate returns a copy searching the backup date instead of the original range.
// Preferred windows keep their time of day.
func (r SchedulingRequest) WithBackupDate() (SchedulingRequest, bool) {
	if r.BackupDate == nil {
		return r, false
	}
	out := r.shiftedTo(DayOf(*r.BackupDate))
	out.BackupDate = nil
	return out, true
}

// NextDay returns a copy searching the day after the current search range.
// A range ending at midnight belongs to the day before.
func (r SchedulingRequest) NextDay() SchedulingRequest {
	lastDay := DayOf(r.SearchRange.End.Add(-time.Nanosecond))
	return r.shiftedTo(lastDay.AddDate(0, 0, 1))
}

func (r SchedulingRequest) shiftedTo(day time.Time) SchedulingRequest {
	out := r
	out.RequestID = uuid.New()
	shift := day.Sub(DayOf(r.SearchRange.Start))
	out.SearchRange = r.SearchRange.Shift(shift)
	out.PreferredWindows = make([]TimeRange, len(r.PreferredWindows))
	for i, w := range r.PreferredWindows {
		out.PreferredWindows[i] = w.Shift(shift)
	}
	return out
}
