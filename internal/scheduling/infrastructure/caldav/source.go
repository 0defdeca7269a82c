// Package caldav imports participant availability from a CalDAV calendar
// (Apple Calendar, Fastmail, Nextcloud, etc.).
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// Custom VEVENT properties. Events without a participant are ignored.
const (
	PropParticipant = "X-CREWPLAN-PARTICIPANT"
	PropCapacity    = "X-CREWPLAN-CAPACITY"
	PropKind        = "X-CREWPLAN-KIND"

	kindBlocked = "BLOCKED"
)

// Source reads availability windows from a CalDAV calendar.
type Source struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewSource creates a CalDAV availability source.
func NewSource(baseURL, username, password string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// WithCalendarPath pins the calendar instead of using the first one found.
func (s *Source) WithCalendarPath(path string) *Source {
	s.calendarPath = path
	return s
}

// ListAvailability implements commands.AvailabilitySource.
func (s *Source) ListAvailability(ctx context.Context, rng domain.TimeRange) ([]commands.ImportedWindow, []commands.ImportedBlock, error) {
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(s.httpClient, s.username, s.password), s.baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	calPath, err := s.findCalendarPath(ctx, client)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find calendar: %w", err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{{
				Name: "VEVENT",
				Props: []string{
					ical.PropUID, ical.PropDateTimeStart, ical.PropDateTimeEnd,
					ical.PropRecurrenceID, ical.PropStatus,
					PropParticipant, PropCapacity, PropKind,
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: rng.Start,
				End:   rng.End,
			}},
		},
	}

	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	windows, blocks := s.parse(objects)
	s.logger.DebugContext(ctx, "caldav availability listed",
		"calendar", calPath,
		"windows", len(windows),
		"blocks", len(blocks),
	)
	return windows, blocks, nil
}

func (s *Source) findCalendarPath(ctx context.Context, client *caldav.Client) (string, error) {
	if s.calendarPath != "" {
		return s.calendarPath, nil
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found")
	}
	return cals[0].Path, nil
}

func (s *Source) parse(objects []caldav.CalendarObject) ([]commands.ImportedWindow, []commands.ImportedBlock) {
	var (
		windows []commands.ImportedWindow
		blocks  []commands.ImportedBlock
	)
	for i := range objects {
		if objects[i].Data == nil {
			continue
		}
		for _, child := range objects[i].Data.Children {
			if child.Name != ical.CompEvent {
				continue
			}
			w, blocked, ok := s.parseEvent(child)
			if !ok {
				continue
			}
			if blocked {
				blocks = append(blocks, commands.ImportedBlock{ParticipantID: w.ParticipantID, Window: w.Window})
				continue
			}
			windows = append(windows, w)
		}
	}
	return windows, blocks
}

func (s *Source) parseEvent(c *ical.Component) (commands.ImportedWindow, bool, bool) {
	var w commands.ImportedWindow

	raw := propValue(c, PropParticipant)
	if raw == "" {
		return w, false, false
	}
	participantID, err := uuid.Parse(raw)
	if err != nil {
		s.logger.Warn("caldav event has invalid participant", "value", raw)
		return w, false, false
	}
	if strings.EqualFold(propValue(c, ical.PropStatus), "CANCELLED") {
		return w, false, false
	}

	event := &ical.Event{Component: c}
	start, err := event.DateTimeStart(time.UTC)
	if err != nil {
		return w, false, false
	}
	end, err := event.DateTimeEnd(time.UTC)
	if err != nil {
		return w, false, false
	}
	window, err := domain.NewTimeRange(start, end)
	if err != nil {
		return w, false, false
	}

	capacity := 1
	if v := propValue(c, PropCapacity); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			capacity = n
		}
	}

	ref := propValue(c, ical.PropUID)
	if rid := propValue(c, ical.PropRecurrenceID); rid != "" {
		ref += "#" + rid
	}

	w = commands.ImportedWindow{
		ExternalRef:   ref,
		ParticipantID: participantID,
		Window:        window,
		Capacity:      capacity,
	}
	return w, strings.EqualFold(propValue(c, PropKind), kindBlocked), true
}

func propValue(c *ical.Component, name string) string {
	if p := c.Props.Get(name); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}
