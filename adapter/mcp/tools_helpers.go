package mcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.UUID{}, errors.New("id is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := cli.ParseDate(value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type windowInput struct {
	Start string `json:"start" jsonschema:"required"`
	End   string `json:"end" jsonschema:"required"`
}

func (w windowInput) toRange() (domain.TimeRange, error) {
	start, err := cli.ParseTime(w.Start)
	if err != nil {
		return domain.TimeRange{}, err
	}
	end, err := cli.ParseTime(w.End)
	if err != nil {
		return domain.TimeRange{}, err
	}
	return domain.NewTimeRange(start, end)
}

// requestInput is the JSON shape of a scheduling request.
type requestInput struct {
	Kind             string        `json:"kind" jsonschema:"required"`
	Priority         string        `json:"priority,omitempty"`
	Windows          []windowInput `json:"preferred_windows,omitempty"`
	SearchRange      *windowInput  `json:"search_range,omitempty"`
	Latitude         float64       `json:"latitude"`
	Longitude        float64       `json:"longitude"`
	Address          string        `json:"address,omitempty"`
	WeatherDependent *bool         `json:"weather_dependent,omitempty"`
	BackupDate       string        `json:"backup_date,omitempty"`
	Required         []string      `json:"required_participants,omitempty"`
	Optional         []string      `json:"optional_participants,omitempty"`
	MinQuorum        int           `json:"min_quorum,omitempty"`
	DurationMinutes  int           `json:"duration_minutes,omitempty"`
	CustomerRef      string        `json:"customer_ref,omitempty"`
}

func (in requestInput) toRequest(catalog *domain.Catalog) (domain.SchedulingRequest, error) {
	kind, err := catalog.ParseKind(in.Kind)
	if err != nil {
		return domain.SchedulingRequest{}, err
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return domain.SchedulingRequest{}, err
	}
	req := domain.SchedulingRequest{
		Kind:             kind,
		Priority:         priority,
		Location:         domain.Location{Latitude: in.Latitude, Longitude: in.Longitude, Address: in.Address},
		WeatherDependent: in.WeatherDependent,
		MinQuorum:        in.MinQuorum,
		Duration:         time.Duration(in.DurationMinutes) * time.Minute,
		CustomerRef:      in.CustomerRef,
	}
	for _, w := range in.Windows {
		tr, err := w.toRange()
		if err != nil {
			return domain.SchedulingRequest{}, fmt.Errorf("preferred window: %w", err)
		}
		req.PreferredWindows = append(req.PreferredWindows, tr)
	}
	if in.SearchRange != nil {
		if req.SearchRange, err = in.SearchRange.toRange(); err != nil {
			return domain.SchedulingRequest{}, fmt.Errorf("search range: %w", err)
		}
	}
	if req.BackupDate, err = parseOptionalDate(in.BackupDate); err != nil {
		return domain.SchedulingRequest{}, err
	}
	if req.RequiredParticipants, err = cli.ParseIDs(in.Required); err != nil {
		return domain.SchedulingRequest{}, err
	}
	if req.OptionalParticipants, err = cli.ParseIDs(in.Optional); err != nil {
		return domain.SchedulingRequest{}, err
	}
	return req, nil
}

type weatherDTO struct {
	Suitable  bool      `json:"suitable"`
	Degraded  bool      `json:"degraded,omitempty"`
	Skipped   bool      `json:"skipped,omitempty"`
	Reasons   []string  `json:"reasons,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func toWeatherDTO(check *domain.WeatherCheck) *weatherDTO {
	if check == nil {
		return nil
	}
	return &weatherDTO{
		Suitable:  check.Suitable,
		Degraded:  check.Degraded,
		Skipped:   check.Skipped,
		Reasons:   check.Reasons,
		CheckedAt: check.CheckedAt,
	}
}

type appointmentDTO struct {
	ID               uuid.UUID        `json:"id"`
	Kind             string           `json:"kind"`
	Priority         string           `json:"priority"`
	Status           string           `json:"status"`
	Window           domain.TimeRange `json:"window"`
	Location         domain.Location  `json:"location"`
	Lead             uuid.UUID        `json:"lead"`
	Participants     []uuid.UUID      `json:"participants"`
	MinQuorum        int              `json:"min_quorum"`
	WeatherDependent bool             `json:"weather_dependent"`
	Weather          *weatherDTO      `json:"weather,omitempty"`
	BackupDate       *time.Time       `json:"backup_date,omitempty"`
	CustomerRef      string           `json:"customer_ref,omitempty"`
	Score            float64          `json:"score"`
	Notes            []string         `json:"notes,omitempty"`
	CancelReason     string           `json:"cancel_reason,omitempty"`
	RescheduledFrom  *uuid.UUID       `json:"rescheduled_from,omitempty"`
	RescheduledTo    *uuid.UUID       `json:"rescheduled_to,omitempty"`
}

func toAppointmentDTO(a *domain.Appointment) *appointmentDTO {
	if a == nil {
		return nil
	}
	return &appointmentDTO{
		ID:               a.ID(),
		Kind:             string(a.Kind()),
		Priority:         string(a.Priority()),
		Status:           string(a.Status()),
		Window:           a.Window(),
		Location:         a.Location(),
		Lead:             a.Lead(),
		Participants:     a.Participants(),
		MinQuorum:        a.MinQuorum(),
		WeatherDependent: a.WeatherDependent(),
		Weather:          toWeatherDTO(a.LastWeatherCheck()),
		BackupDate:       a.BackupDate(),
		CustomerRef:      a.CustomerRef(),
		Score:            a.Score(),
		Notes:            a.Notes(),
		CancelReason:     a.CancelReason(),
		RescheduledFrom:  a.RescheduledFrom(),
		RescheduledTo:    a.RescheduledTo(),
	}
}

type groupDTO struct {
	Status    string               `json:"status"`
	MinQuorum int                  `json:"min_quorum"`
	Deadline  time.Time            `json:"deadline"`
	Members   []domain.GroupMember `json:"members"`
}

func toGroupDTO(g *domain.CoordinationGroup) *groupDTO {
	if g == nil {
		return nil
	}
	return &groupDTO{
		Status:    string(g.Status()),
		MinQuorum: g.MinQuorum(),
		Deadline:  g.Deadline(),
		Members:   g.Members(),
	}
}

type conflictDTO struct {
	ID            uuid.UUID                 `json:"id"`
	Type          string                    `json:"type"`
	Severity      string                    `json:"severity"`
	ParticipantID uuid.UUID                 `json:"participant_id,omitempty"`
	Window        domain.TimeRange          `json:"window"`
	Message       string                    `json:"message"`
	Pending       bool                      `json:"pending"`
	Options       []domain.ResolutionOption `json:"options,omitempty"`
}

func toConflictDTOs(conflicts []*domain.Conflict) []conflictDTO {
	out := make([]conflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictDTO{
			ID:            c.ID(),
			Type:          string(c.Type()),
			Severity:      string(c.Severity()),
			ParticipantID: c.ParticipantID(),
			Window:        c.Window(),
			Message:       c.Message(),
			Pending:       c.IsPending(),
			Options:       c.Options(),
		})
	}
	return out
}

// commitDTO reports every booking outcome, including a lost reservation race.
type commitDTO struct {
	Outcome      string                    `json:"outcome"`
	Appointment  *appointmentDTO           `json:"appointment,omitempty"`
	Group        *groupDTO                 `json:"coordination,omitempty"`
	Reservations []domain.Reservation      `json:"reservations,omitempty"`
	Conflicts    []conflictDTO             `json:"conflicts,omitempty"`
	Options      []domain.ResolutionOption `json:"options,omitempty"`
	Attempts     int                       `json:"attempts,omitempty"`
	Reason       string                    `json:"reason,omitempty"`
	Alternatives []domain.CandidateSlot    `json:"alternatives,omitempty"`
}

const outcomeReservationConflict = "reservation_conflict"

func toCommitDTO(result *commands.CommitResult) *commitDTO {
	return &commitDTO{
		Outcome:      string(result.Outcome),
		Appointment:  toAppointmentDTO(result.Appointment),
		Group:        toGroupDTO(result.Group),
		Reservations: result.Reservations,
		Conflicts:    toConflictDTOs(result.Conflicts),
		Options:      result.Options,
	}
}

// commitOutcome turns a lost race into a result carrying the alternatives;
// every other error passes through.
func commitOutcome(result *commands.CommitResult, err error) (*commitDTO, error) {
	var raceErr *domain.ReservationConflictError
	if errors.As(err, &raceErr) {
		return &commitDTO{
			Outcome:      outcomeReservationConflict,
			Reason:       raceErr.Reason,
			Alternatives: raceErr.Alternatives,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return toCommitDTO(result), nil
}
