package domain

import (
	"sort"
	"time"

	sharedDomain "github.com/felixgeelhaar/crewplan/internal/shared/domain"
	"github.com/google/uuid"
)

// SlotSource records who created a slot.
type SlotSource string

const (
	SlotSourceManual SlotSource = "manual"
	SlotSourceCalDAV SlotSource = "caldav"
)

// AvailabilitySlot is a bookable stretch of one participant's calendar.
type AvailabilitySlot struct {
	sharedDomain.BaseEntity
	participantID uuid.UUID
	window        TimeRange
	capacity      int
	blocked       []TimeRange
	source        SlotSource
	externalRef   string
}

// NewAvailabilitySlot creates a slot. Capacity is the number of appointments the slot can hold.
func NewAvailabilitySlot(participantID uuid.UUID, window TimeRange, capacity int, blocked []TimeRange) (*AvailabilitySlot, error) {
	if participantID == uuid.Nil {
		return nil, NewValidationError("participant_id", "is required")
	}
	if !window.End.After(window.Start) {
		return nil, ErrInvalidTimeRange
	}
	if capacity <= 0 {
		return nil, NewValidationError("capacity", "must be positive")
	}
	s := &AvailabilitySlot{
		BaseEntity:    sharedDomain.NewBaseEntity(),
		participantID: participantID,
		window:        window,
		capacity:      capacity,
		source:        SlotSourceManual,
	}
	if err := s.ReplaceBlocked(blocked); err != nil {
		return nil, err
	}
	return s, nil
}

// RehydrateAvailabilitySlot recreates a slot from persisted state.
func RehydrateAvailabilitySlot(
	id, participantID uuid.UUID,
	window TimeRange,
	capacity int,
	blocked []TimeRange,
	source SlotSource,
	externalRef string,
	createdAt, updatedAt time.Time,
) *AvailabilitySlot {
	return &AvailabilitySlot{
		BaseEntity:    sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		participantID: participantID,
		window:        window,
		capacity:      capacity,
		blocked:       mergeRanges(blocked),
		source:        source,
		externalRef:   externalRef,
	}
}

func (s *AvailabilitySlot) ParticipantID() uuid.UUID { return s.participantID }
func (s *AvailabilitySlot) Window() TimeRange        { return s.window }
func (s *AvailabilitySlot) Capacity() int            { return s.capacity }
func (s *AvailabilitySlot) Source() SlotSource       { return s.source }
func (s *AvailabilitySlot) ExternalRef() string      { return s.externalRef }

// Date returns midnight of the slot's start day.
func (s *AvailabilitySlot) Date() time.Time {
	return DayOf(s.window.Start)
}

// Blocked returns a copy of the blocked sub-ranges.
func (s *AvailabilitySlot) Blocked() []TimeRange {
	out := make([]TimeRange, len(s.blocked))
	copy(out, s.blocked)
	return out
}

// IsBlocked reports whether w touches any blocked sub-range.
func (s *AvailabilitySlot) IsBlocked(w TimeRange) bool {
	for _, b := range s.blocked {
		if b.Overlaps(w) {
			return true
		}
	}
	return false
}

// Fits reports whether w lies inside the slot and clear of blocked ranges.
func (s *AvailabilitySlot) Fits(w TimeRange) bool {
	return s.window.Contains(w) && !s.IsBlocked(w)
}

// ReplaceBlocked swaps the blocked sub-ranges. Ranges are clipped to the slot.
func (s *AvailabilitySlot) ReplaceBlocked(blocked []TimeRange) error {
	clipped := make([]TimeRange, 0, len(blocked))
	for _, b := range blocked {
		if !b.End.After(b.Start) {
			return ErrInvalidTimeRange
		}
		if in, ok := s.window.Intersect(b); ok {
			clipped = append(clipped, in)
		}
	}
	s.blocked = mergeRanges(clipped)
	s.Touch()
	return nil
}

// Resize changes the window and capacity.
func (s *AvailabilitySlot) Resize(window TimeRange, capacity int) error {
	if !window.End.After(window.Start) {
		return ErrInvalidTimeRange
	}
	if capacity <= 0 {
		return NewValidationError("capacity", "must be positive")
	}
	s.window = window
	s.capacity = capacity
	return s.ReplaceBlocked(s.blocked)
}

// MarkImported tags the slot as owned by an upstream calendar.
func (s *AvailabilitySlot) MarkImported(source SlotSource, externalRef string) {
	s.source = source
	s.externalRef = externalRef
	s.Touch()
}

func mergeRanges(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
