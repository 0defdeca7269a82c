package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
)

// DetectionInput is the candidate about to be committed.
type DetectionInput struct {
	Request   domain.SchedulingRequest
	Profile   domain.WeatherRequirementProfile
	Candidate domain.CandidateSlot
	// AppointmentID owns reservations that must not count against the candidate.
	AppointmentID uuid.UUID
	// PreviousCheck is re-used unless stale. Nil falls back to the candidate's check.
	PreviousCheck *domain.WeatherCheck
}

// DetectionResult carries the conflicts and the fresh provider data gathered
// while detecting them.
type DetectionResult struct {
	Conflicts []*domain.Conflict
	Weather   domain.WeatherCheck
	Travel    TravelEstimate
}

// Clear reports whether nothing was detected.
func (r DetectionResult) Clear() bool {
	return len(r.Conflicts) == 0
}

// ConflictDetector re-validates a candidate against live registry state just
// before commit.
type ConflictDetector struct {
	registry *Registry
	weather  *WeatherChecker
	travel   *TravelEstimator
	logger   *slog.Logger
	metrics  observability.Metrics
}

// NewConflictDetector creates a conflict detector.
func NewConflictDetector(registry *Registry, weather *WeatherChecker, travel *TravelEstimator, logger *slog.Logger, metrics observability.Metrics) *ConflictDetector {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &ConflictDetector{registry: registry, weather: weather, travel: travel, logger: logger, metrics: metrics}
}

// Detect returns an empty result when the candidate is clear to commit.
func (d *ConflictDetector) Detect(ctx context.Context, in DetectionInput) (*DetectionResult, error) {
	c := in.Candidate
	buffer := d.registry.Config().Buffer
	buffered := c.Window.Expand(buffer, buffer)
	lookup := domain.DayRange(c.Window.Start).Expand(buffer, buffer)

	reservations, err := d.registry.ActiveReservations(ctx, c.Participants(), lookup)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	byParticipant := make(map[uuid.UUID][]domain.Reservation)
	for _, res := range reservations {
		if in.AppointmentID != uuid.Nil && res.AppointmentID == in.AppointmentID {
			continue
		}
		byParticipant[res.ParticipantID] = append(byParticipant[res.ParticipantID], res)
	}

	result := &DetectionResult{}

	leadRes := byParticipant[c.ParticipantID]
	if res := firstOverlap(leadRes, buffered); res != nil {
		result.Conflicts = append(result.Conflicts, domain.NewConflict(
			domain.ConflictTimeOverlap, domain.SeverityHard, c.ParticipantID, c.Window,
			fmt.Sprintf("participant already booked %s (buffer %s)", res.Window, buffer),
		))
	}

	if in.Request.IsMultiParticipant() {
		for _, member := range c.Team {
			if res := firstOverlap(byParticipant[member], buffered); res != nil {
				result.Conflicts = append(result.Conflicts, domain.NewConflict(
					domain.ConflictTeamUnavailable, domain.SeverityHard, member, c.Window,
					fmt.Sprintf("team member booked elsewhere at %s", res.Window),
				))
			}
		}
	}

	travel, travelConflict, err := d.checkTravel(ctx, in, leadRes)
	if err != nil {
		return nil, err
	}
	result.Travel = travel
	if travelConflict != nil {
		result.Conflicts = append(result.Conflicts, travelConflict)
	}

	check, weatherConflict := d.checkWeather(ctx, in)
	result.Weather = check
	if weatherConflict != nil {
		result.Conflicts = append(result.Conflicts, weatherConflict)
	}

	for _, conflict := range result.Conflicts {
		d.metrics.Counter(observability.MetricConflictsDetected, 1,
			observability.T("type", string(conflict.Type())),
			observability.T("severity", string(conflict.Severity())),
		)
	}
	if len(result.Conflicts) > 0 {
		d.logger.InfoContext(ctx, "conflicts detected",
			"participant_id", c.ParticipantID,
			"window", c.Window.String(),
			"conflicts", len(result.Conflicts),
		)
	}
	return result, nil
}

// DetectMember checks a coordination member's hold on appt before it is
// placed. A booking inside the buffered window is hard; a travel shortfall
// around the member's neighbouring stops is soft.
func (d *ConflictDetector) DetectMember(ctx context.Context, appt *domain.Appointment, participantID uuid.UUID) ([]*domain.Conflict, error) {
	window := appt.Window()
	buffer := d.registry.Config().Buffer
	lookup := domain.DayRange(window.Start).Expand(buffer, buffer)

	reservations, err := d.registry.ActiveReservations(ctx, []uuid.UUID{participantID}, lookup)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	active := reservations[:0]
	for _, res := range reservations {
		if res.AppointmentID != appt.ID() {
			active = append(active, res)
		}
	}

	var conflicts []*domain.Conflict
	if res := firstOverlap(active, window.Expand(buffer, buffer)); res != nil {
		conflicts = append(conflicts, domain.NewConflict(
			domain.ConflictTeamUnavailable, domain.SeverityHard, participantID, window,
			fmt.Sprintf("team member booked elsewhere at %s", res.Window),
		))
	}

	in := DetectionInput{
		Request:   domain.SchedulingRequest{Location: appt.Location()},
		Candidate: domain.CandidateSlot{ParticipantID: participantID, Window: window},
	}
	if _, travelConflict, err := d.checkTravel(ctx, in, active); err != nil {
		return nil, err
	} else if travelConflict != nil {
		conflicts = append(conflicts, travelConflict)
	}

	for _, conflict := range conflicts {
		conflict.AddAffected(appt.ID())
		d.metrics.Counter(observability.MetricConflictsDetected, 1,
			observability.T("type", string(conflict.Type())),
			observability.T("severity", string(conflict.Severity())),
		)
	}
	return conflicts, nil
}

// checkTravel recomputes travel from the prior stop to the site and from the
// site to the next stop. A gap shorter than either drive is a soft conflict.
func (d *ConflictDetector) checkTravel(ctx context.Context, in DetectionInput, active []domain.Reservation) (TravelEstimate, *domain.Conflict, error) {
	c := in.Candidate
	site := in.Request.Location

	prior := priorReservation(active, c.Window)
	var inbound TravelEstimate
	if prior != nil && !prior.Location.IsZero() {
		inbound = d.travel.Estimate(ctx, prior.Location, site, prior.Window.End)
	} else {
		p, err := d.registry.Participant(ctx, c.ParticipantID)
		if err != nil {
			return TravelEstimate{}, nil, err
		}
		departure := c.Window.Start
		if prior != nil {
			departure = prior.Window.End
		}
		inbound = d.travel.Estimate(ctx, p.HomeLocation(), site, departure)
	}

	if prior != nil {
		gap := c.Window.Start.Sub(prior.Window.End).Minutes()
		if gap < float64(inbound.Minutes) {
			return inbound, domain.NewConflict(
				domain.ConflictTravelInfeasible, domain.SeveritySoft, c.ParticipantID, c.Window,
				fmt.Sprintf("%d min gap after previous appointment, travel needs %d min", int(math.Floor(gap)), inbound.Minutes),
			), nil
		}
	}

	if next := nextReservation(active, c.Window); next != nil && !next.Location.IsZero() {
		outbound := d.travel.Estimate(ctx, site, next.Location, c.Window.End)
		gap := next.Window.Start.Sub(c.Window.End).Minutes()
		if gap < float64(outbound.Minutes) {
			return inbound, domain.NewConflict(
				domain.ConflictTravelInfeasible, domain.SeveritySoft, c.ParticipantID, c.Window,
				fmt.Sprintf("%d min gap before next appointment, travel needs %d min", int(math.Floor(gap)), outbound.Minutes),
			), nil
		}
	}
	return inbound, nil, nil
}

// checkWeather re-runs a stale check. A failing forecast is informational when
// a backup date exists and hard otherwise.
func (d *ConflictDetector) checkWeather(ctx context.Context, in DetectionInput) (domain.WeatherCheck, *domain.Conflict) {
	c := in.Candidate
	if !in.Request.IsWeatherDependent() {
		return domain.SkippedWeatherCheck(d.weather.now().UTC()), nil
	}

	previous := in.PreviousCheck
	if previous == nil && !c.Weather.CheckedAt.IsZero() && !c.Weather.Skipped {
		w := c.Weather
		previous = &w
	}
	var check domain.WeatherCheck
	if d.weather.IsStale(previous) {
		check = d.weather.Check(ctx, in.Request.Location, c.Window.Start, in.Profile)
	} else {
		check = *previous
	}
	if check.Satisfied() {
		return check, nil
	}

	severity := domain.SeverityHard
	message := "forecast fails weather requirements and no backup date is set"
	if in.Request.BackupDate != nil {
		severity = domain.SeverityInformational
		message = fmt.Sprintf("forecast fails weather requirements; backup date %s available", in.Request.BackupDate.Format("2006-01-02"))
	}
	if len(check.Reasons) > 0 {
		message += ": " + strings.Join(check.Reasons, "; ")
	}
	return check, domain.NewConflict(domain.ConflictWeatherGated, severity, c.ParticipantID, c.Window, message)
}

func firstOverlap(active []domain.Reservation, window domain.TimeRange) *domain.Reservation {
	for i := range active {
		if active[i].Window.Overlaps(window) {
			return &active[i]
		}
	}
	return nil
}
