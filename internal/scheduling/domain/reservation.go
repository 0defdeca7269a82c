package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReservationState distinguishes coordination holds from final bookings.
type ReservationState string

const (
	ReservationProvisional ReservationState = "provisional"
	ReservationConfirmed   ReservationState = "confirmed"
)

// Reservation is a participant's claim on a window inside one slot.
// Released reservations are deleted rather than flagged.
type Reservation struct {
	ID            uuid.UUID        `json:"id"`
	ParticipantID uuid.UUID        `json:"participant_id"`
	SlotID        uuid.UUID        `json:"slot_id"`
	AppointmentID uuid.UUID        `json:"appointment_id"`
	Window        TimeRange        `json:"window"`
	Location      Location         `json:"location"`
	State         ReservationState `json:"state"`
	CreatedAt     time.Time        `json:"created_at"`
}

// IsProvisional reports whether the reservation is a coordination hold.
func (r Reservation) IsProvisional() bool {
	return r.State == ReservationProvisional
}

// ReserveRequest asks the registry to claim a window.
type ReserveRequest struct {
	ParticipantID uuid.UUID
	SlotID        uuid.UUID
	AppointmentID uuid.UUID
	Window        TimeRange
	Location      Location
	Provisional   bool
	DailyCap      int
}

// Validate rejects requests that could never succeed.
func (r ReserveRequest) Validate() error {
	switch {
	case r.ParticipantID == uuid.Nil:
		return NewValidationError("participant_id", "is required")
	case r.SlotID == uuid.Nil:
		return NewValidationError("slot_id", "is required")
	case r.AppointmentID == uuid.Nil:
		return NewValidationError("appointment_id", "is required")
	case !r.Window.End.After(r.Window.Start):
		return ErrInvalidTimeRange
	}
	return nil
}

// NewReservation builds the reservation a successful request produces.
func NewReservation(req ReserveRequest, now time.Time) Reservation {
	state := ReservationConfirmed
	if req.Provisional {
		state = ReservationProvisional
	}
	return Reservation{
		ID:            uuid.New(),
		ParticipantID: req.ParticipantID,
		SlotID:        req.SlotID,
		AppointmentID: req.AppointmentID,
		Window:        req.Window,
		Location:      req.Location,
		State:         state,
		CreatedAt:     now.UTC(),
	}
}

// ReservationRules are the checks every store applies atomically at reserve time.
type ReservationRules struct {
	Buffer time.Duration
}

// LookupRange is the span of existing reservations Check must see: the whole
// day of the window, the buffered window and the slot itself.
func (r ReservationRules) LookupRange(slot *AvailabilitySlot, window TimeRange) TimeRange {
	ranges := []TimeRange{DayRange(window.Start), window.Expand(r.Buffer, r.Buffer)}
	if slot != nil {
		ranges = append(ranges, slot.Window())
	}
	span, _ := SpanOf(ranges)
	return span
}

// Check validates req against the live slot and the participant's active
// reservations. A reservation already held by the same appointment for the
// same window is returned as-is so retries stay idempotent.
func (r ReservationRules) Check(slot *AvailabilitySlot, req ReserveRequest, active []Reservation) (*Reservation, error) {
	if slot == nil {
		return nil, r.conflict(req, "slot no longer exists")
	}
	if slot.ParticipantID() != req.ParticipantID {
		return nil, NewValidationError("slot_id", "belongs to another participant")
	}
	if !slot.Window().Contains(req.Window) {
		return nil, r.conflict(req, "window outside slot")
	}
	if slot.IsBlocked(req.Window) {
		return nil, r.conflict(req, "window overlaps a blocked range")
	}

	buffered := req.Window.Expand(r.Buffer, r.Buffer)
	inSlot, sameDay := 0, 0
	for i := range active {
		res := active[i]
		if res.ParticipantID != req.ParticipantID {
			continue
		}
		if res.AppointmentID == req.AppointmentID {
			if res.Window.Equal(req.Window) {
				return &res, nil
			}
			return nil, r.conflict(req, "appointment already holds another window")
		}
		if buffered.Overlaps(res.Window) {
			return nil, r.conflict(req, fmt.Sprintf("overlaps reservation %s", res.Window))
		}
		if res.SlotID == slot.ID() {
			inSlot++
		}
		if SameDay(res.Window.Start, req.Window.Start) {
			sameDay++
		}
	}
	if inSlot >= slot.Capacity() {
		return nil, r.conflict(req, "slot at capacity")
	}
	if req.DailyCap > 0 && sameDay >= req.DailyCap {
		return nil, r.conflict(req, "daily cap reached")
	}
	return nil, nil
}

func (r ReservationRules) conflict(req ReserveRequest, reason string) *ReservationConflictError {
	return &ReservationConflictError{ParticipantID: req.ParticipantID, Window: req.Window, Reason: reason}
}
