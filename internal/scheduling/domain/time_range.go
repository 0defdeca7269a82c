package domain

import (
	"fmt"
	"time"
)

// TimeRange represents a half-open time period [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeRange creates a validated time range.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{Start: start, End: end}, nil
}

// WindowFrom creates a time range starting at start and lasting d.
func WindowFrom(start time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: start, End: start.Add(d)}
}

// Overlaps checks if two time ranges overlap.
func (t TimeRange) Overlaps(other TimeRange) bool {
	return t.Start.Before(other.End) && other.Start.Before(t.End)
}

// Contains reports whether other lies entirely within t.
func (t TimeRange) Contains(other TimeRange) bool {
	return !other.Start.Before(t.Start) && !other.End.After(t.End)
}

// ContainsTime reports whether ts falls inside the range.
func (t TimeRange) ContainsTime(ts time.Time) bool {
	return !ts.Before(t.Start) && ts.Before(t.End)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// Expand widens the range by before and after.
func (t TimeRange) Expand(before, after time.Duration) TimeRange {
	return TimeRange{Start: t.Start.Add(-before), End: t.End.Add(after)}
}

// Intersect returns the overlapping part of two ranges.
func (t TimeRange) Intersect(other TimeRange) (TimeRange, bool) {
	start := t.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := t.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return TimeRange{}, false
	}
	return TimeRange{Start: start, End: end}, true
}

// Shift moves the whole range by d.
func (t TimeRange) Shift(d time.Duration) TimeRange {
	return TimeRange{Start: t.Start.Add(d), End: t.End.Add(d)}
}

// IsZero reports whether the range is unset.
func (t TimeRange) IsZero() bool {
	return t.Start.IsZero() && t.End.IsZero()
}

// Equal compares two ranges by instant.
func (t TimeRange) Equal(other TimeRange) bool {
	return t.Start.Equal(other.Start) && t.End.Equal(other.End)
}

func (t TimeRange) String() string {
	return fmt.Sprintf("%s–%s", t.Start.Format(time.RFC3339), t.End.Format("15:04"))
}

// DayOf truncates a timestamp to midnight in its own location.
func DayOf(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

// DayRange returns the full calendar day containing ts.
func DayRange(ts time.Time) TimeRange {
	start := DayOf(ts)
	return TimeRange{Start: start, End: start.AddDate(0, 0, 1)}
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return DayOf(a).Equal(DayOf(b.In(a.Location())))
}

// SpanOf returns the smallest range covering all given ranges.
func SpanOf(ranges []TimeRange) (TimeRange, bool) {
	if len(ranges) == 0 {
		return TimeRange{}, false
	}
	span := ranges[0]
	for _, r := range ranges[1:] {
		if r.Start.Before(span.Start) {
			span.Start = r.Start
		}
		if r.End.After(span.End) {
			span.End = r.End
		}
	}
	return span, true
}
