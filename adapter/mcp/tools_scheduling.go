package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/mcp-go"
)

var errNoDatabase = errors.New("scheduling requires an initialized application")

type findSlotsInput struct {
	Request requestInput `json:"request" jsonschema:"required"`
	Limit   int          `json:"limit,omitempty"`
}

type findSlotsOutput struct {
	Kind       string                 `json:"kind"`
	Duration   string                 `json:"duration"`
	Total      int                    `json:"total"`
	Candidates []domain.CandidateSlot `json:"candidates"`
}

type commitInput struct {
	Request       requestInput `json:"request" jsonschema:"required"`
	ParticipantID string       `json:"participant_id,omitempty"`
	Start         string       `json:"start,omitempty"`
	Rank          int          `json:"rank,omitempty"`
	AcceptSoft    bool         `json:"accept_soft,omitempty"`
}

type autoInput struct {
	Request    requestInput `json:"request" jsonschema:"required"`
	AcceptSoft bool         `json:"accept_soft,omitempty"`
}

type resolveInput struct {
	ConflictID string `json:"conflict_id" jsonschema:"required"`
	OptionID   string `json:"option_id" jsonschema:"required"`
	BackupDate string `json:"backup_date,omitempty"`
}

type cancelInput struct {
	AppointmentID string `json:"appointment_id" jsonschema:"required"`
	Reason        string `json:"reason,omitempty"`
}

type appointmentInput struct {
	AppointmentID string `json:"appointment_id" jsonschema:"required"`
}

type recheckOutput struct {
	Appointment *appointmentDTO `json:"appointment"`
	Weather     *weatherDTO     `json:"weather"`
	Previous    string          `json:"previous_status"`
	Changed     bool            `json:"changed"`
}

type respondInput struct {
	AppointmentID string `json:"appointment_id" jsonschema:"required"`
	ParticipantID string `json:"participant_id" jsonschema:"required"`
	Decision      string `json:"decision" jsonschema:"required"`
}

type respondOutput struct {
	Appointment *appointmentDTO      `json:"appointment"`
	Group       *groupDTO            `json:"coordination"`
	Reservation *domain.Reservation  `json:"reservation,omitempty"`
	Released    []domain.Reservation `json:"released,omitempty"`
	Confirmed   bool                 `json:"confirmed"`
	Cancelled   bool                 `json:"cancelled"`
}

type showOutput struct {
	Appointment  *appointmentDTO      `json:"appointment"`
	Group        *groupDTO            `json:"coordination,omitempty"`
	Reservations []domain.Reservation `json:"reservations,omitempty"`
	Conflicts    []conflictDTO        `json:"conflicts,omitempty"`
}

type auditInput struct {
	AppointmentID string `json:"appointment_id,omitempty"`
	SinceHours    int    `json:"since_hours,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

type participantsInput struct {
	Skills []string `json:"skills,omitempty"`
}

type participantDTO struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Skills            []string        `json:"skills"`
	Home              domain.Location `json:"home"`
	DailyCap          int             `json:"daily_cap"`
	TravelRadiusMiles float64         `json:"travel_radius_miles"`
}

// schedulingTools implements the scheduling tool handlers over a CLI app.
type schedulingTools struct {
	app *cli.App
}

func (t schedulingTools) ready() error {
	if t.app == nil || t.app.FindSlotsHandler == nil {
		return errNoDatabase
	}
	return nil
}

func (t schedulingTools) findSlots(ctx context.Context, input findSlotsInput) (*findSlotsOutput, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	req, err := input.Request.toRequest(t.app.Catalog)
	if err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}
	result, err := t.app.FindSlotsHandler.Handle(ctx, queries.FindSlotsQuery{Request: req, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &findSlotsOutput{
		Kind:       string(result.Request.Kind),
		Duration:   result.Request.Duration.String(),
		Total:      result.Total,
		Candidates: result.Candidates,
	}, nil
}

func (t schedulingTools) commit(ctx context.Context, input commitInput) (*commitDTO, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	req, err := input.Request.toRequest(t.app.Catalog)
	if err != nil {
		return nil, err
	}
	found, err := t.app.FindSlotsHandler.Handle(ctx, queries.FindSlotsQuery{Request: req})
	if err != nil {
		return nil, err
	}

	var candidate domain.CandidateSlot
	switch {
	case input.ParticipantID != "":
		id, err := parseUUID(input.ParticipantID)
		if err != nil {
			return nil, err
		}
		start, err := cli.ParseTime(input.Start)
		if err != nil {
			return nil, err
		}
		c, ok := found.Lookup(id, start)
		if !ok {
			return nil, fmt.Errorf("no candidate for participant %s at %s", id, start.Format(time.RFC3339))
		}
		candidate = c
	case input.Rank > 0 && input.Rank <= len(found.Candidates):
		candidate = found.Candidates[input.Rank-1]
	default:
		return nil, errors.New("choose a candidate by participant_id and start, or by rank")
	}

	dto, err := commitOutcome(t.app.CommitAppointmentHandler.Handle(ctx, commands.CommitAppointmentCommand{
		Request:     found.Request,
		Candidate:   candidate,
		AcceptSoft:  input.AcceptSoft,
		RequestedBy: t.app.OperatorID,
	}))
	if err == nil {
		t.app.Flush(ctx)
	}
	return dto, err
}

func (t schedulingTools) auto(ctx context.Context, input autoInput) (*commitDTO, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	req, err := input.Request.toRequest(t.app.Catalog)
	if err != nil {
		return nil, err
	}
	result, err := t.app.AutoScheduleHandler.Handle(ctx, commands.AutoScheduleCommand{
		Request:     req,
		AcceptSoft:  input.AcceptSoft,
		RequestedBy: t.app.OperatorID,
	})
	var commitResult *commands.CommitResult
	if result != nil {
		commitResult = result.CommitResult
	}
	dto, err := commitOutcome(commitResult, err)
	if err != nil {
		return nil, err
	}
	if result != nil {
		dto.Attempts = result.Attempts
	}
	t.app.Flush(ctx)
	return dto, nil
}

func (t schedulingTools) resolve(ctx context.Context, input resolveInput) (*commitDTO, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	conflictID, err := parseUUID(input.ConflictID)
	if err != nil {
		return nil, err
	}
	backup, err := parseOptionalDate(input.BackupDate)
	if err != nil {
		return nil, err
	}
	dto, err := commitOutcome(t.app.ResolveConflictHandler.Handle(ctx, commands.ResolveConflictCommand{
		ConflictID:  conflictID,
		OptionID:    input.OptionID,
		BackupDate:  backup,
		RequestedBy: t.app.OperatorID,
	}))
	if err == nil {
		t.app.Flush(ctx)
	}
	return dto, err
}

func (t schedulingTools) cancel(ctx context.Context, input cancelInput) (map[string]any, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	id, err := parseUUID(input.AppointmentID)
	if err != nil {
		return nil, err
	}
	result, err := t.app.CancelAppointmentHandler.Handle(ctx, commands.CancelAppointmentCommand{
		AppointmentID: id,
		Reason:        input.Reason,
		RequestedBy:   t.app.OperatorID,
	})
	if err != nil {
		return nil, err
	}
	t.app.Flush(ctx)
	return map[string]any{
		"appointment": toAppointmentDTO(result.Appointment),
		"released":    result.Released,
	}, nil
}

func (t schedulingTools) recheckWeather(ctx context.Context, input appointmentInput) (*recheckOutput, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	id, err := parseUUID(input.AppointmentID)
	if err != nil {
		return nil, err
	}
	result, err := t.app.RecheckWeatherHandler.Handle(ctx, commands.RecheckWeatherCommand{
		AppointmentID: id,
		RequestedBy:   t.app.OperatorID,
	})
	if err != nil {
		return nil, err
	}
	t.app.Flush(ctx)
	return &recheckOutput{
		Appointment: toAppointmentDTO(result.Appointment),
		Weather:     toWeatherDTO(&result.Check),
		Previous:    string(result.Previous),
		Changed:     result.Changed,
	}, nil
}

func (t schedulingTools) respond(ctx context.Context, input respondInput) (*respondOutput, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	appointmentID, err := parseUUID(input.AppointmentID)
	if err != nil {
		return nil, err
	}
	participantID, err := parseUUID(input.ParticipantID)
	if err != nil {
		return nil, err
	}
	var accept bool
	switch input.Decision {
	case "accept":
		accept = true
	case "decline":
	default:
		return nil, fmt.Errorf("decision must be accept or decline, got %q", input.Decision)
	}
	result, err := t.app.RespondParticipantHandler.Handle(ctx, commands.RespondParticipantCommand{
		AppointmentID: appointmentID,
		ParticipantID: participantID,
		Accept:        accept,
		RequestedBy:   t.app.OperatorID,
	})
	if err != nil {
		return nil, err
	}
	t.app.Flush(ctx)
	return &respondOutput{
		Appointment: toAppointmentDTO(result.Appointment),
		Group:       toGroupDTO(result.Group),
		Reservation: result.Reservation,
		Released:    result.Released,
		Confirmed:   result.Confirmed,
		Cancelled:   result.Cancelled,
	}, nil
}

func (t schedulingTools) show(ctx context.Context, input appointmentInput) (*showOutput, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	id, err := parseUUID(input.AppointmentID)
	if err != nil {
		return nil, err
	}
	view, err := t.app.GetAppointmentHandler.Handle(ctx, queries.GetAppointmentQuery{AppointmentID: id})
	if err != nil {
		return nil, err
	}
	return &showOutput{
		Appointment:  toAppointmentDTO(view.Appointment),
		Group:        toGroupDTO(view.Group),
		Reservations: view.Reservations,
		Conflicts:    toConflictDTOs(view.Conflicts),
	}, nil
}

func (t schedulingTools) audit(ctx context.Context, input auditInput) ([]domain.AuditEntry, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	query := queries.ListAuditQuery{Limit: input.Limit}
	if input.AppointmentID != "" {
		id, err := parseUUID(input.AppointmentID)
		if err != nil {
			return nil, err
		}
		query.AppointmentID = id
	} else if input.SinceHours > 0 {
		query.Since = time.Now().Add(-time.Duration(input.SinceHours) * time.Hour)
	}
	return t.app.ListAuditHandler.Handle(ctx, query)
}

func (t schedulingTools) participants(ctx context.Context, input participantsInput) ([]participantDTO, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	participants, err := t.app.ListParticipantsHandler.Handle(ctx, queries.ListParticipantsQuery{Skills: input.Skills})
	if err != nil {
		return nil, err
	}
	out := make([]participantDTO, 0, len(participants))
	for _, p := range participants {
		out = append(out, participantDTO{
			ID:                p.ID().String(),
			Name:              p.Name(),
			Skills:            p.Skills(),
			Home:              p.HomeLocation(),
			DailyCap:          p.DailyCap(),
			TravelRadiusMiles: p.TravelRadiusMiles(),
		})
	}
	return out, nil
}

func registerSchedulingTools(srv *mcp.Server, deps ToolDependencies) error {
	t := schedulingTools{app: deps.App}

	srv.Tool("scheduling.find_slots").
		Description("Rank candidate slots for a scheduling request without reserving anything").
		Handler(t.findSlots)

	srv.Tool("scheduling.commit").
		Description("Book a candidate chosen by participant_id and start, or by rank, from a fresh search").
		Handler(t.commit)

	srv.Tool("scheduling.auto").
		Description("Find and book the best candidate, retrying lost reservation races").
		Handler(t.auto)

	srv.Tool("scheduling.resolve").
		Description("Apply one of the resolution options of a pending conflict").
		Handler(t.resolve)

	srv.Tool("scheduling.cancel").
		Description("Cancel an appointment and free its reservations").
		Handler(t.cancel)

	srv.Tool("scheduling.recheck_weather").
		Description("Re-run the forecast check of a booked appointment").
		Handler(t.recheckWeather)

	srv.Tool("scheduling.respond").
		Description("Record a participant's accept or decline for a proposed appointment").
		Handler(t.respond)

	srv.Tool("scheduling.show").
		Description("Get an appointment with its reservations, coordination state and conflicts").
		Handler(t.show)

	srv.Tool("scheduling.audit").
		Description("List audit entries for an appointment or for recent scheduling decisions").
		Handler(t.audit)

	srv.Tool("scheduling.participants").
		Description("List active participants, optionally filtered by skills").
		Handler(t.participants)

	return nil
}
