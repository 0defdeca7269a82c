package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// Layouts accepted on the command line.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTime reads an RFC 3339 timestamp or a local YYYY-MM-DDTHH:MM.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use YYYY-MM-DDTHH:MM or RFC 3339", value)
}

// ParseDate reads a local YYYY-MM-DD.
func ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
	}
	return d, nil
}

// ParseWindow reads START/END. END may be a bare HH:MM on the start's day.
func ParseWindow(value string) (domain.TimeRange, error) {
	startRaw, endRaw, ok := strings.Cut(value, "/")
	if !ok {
		return domain.TimeRange{}, fmt.Errorf("invalid window %q, use START/END", value)
	}
	start, err := ParseTime(startRaw)
	if err != nil {
		return domain.TimeRange{}, err
	}
	var end time.Time
	if clock, err := time.Parse(TimeLayout, endRaw); err == nil {
		end = time.Date(start.Year(), start.Month(), start.Day(), clock.Hour(), clock.Minute(), 0, 0, start.Location())
	} else if end, err = ParseTime(endRaw); err != nil {
		return domain.TimeRange{}, err
	}
	w, err := domain.NewTimeRange(start, end)
	if err != nil {
		return domain.TimeRange{}, fmt.Errorf("invalid window %q: %w", value, err)
	}
	return w, nil
}

// ParseID reads a UUID argument; name labels it in errors.
func ParseID(value, name string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("%s is required", name)
	}
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

// ParseIDs reads a list of participant UUIDs.
func ParseIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := ParseID(v, "participant id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
