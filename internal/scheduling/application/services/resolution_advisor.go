package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// AdviceInput is a conflicted candidate awaiting remedies.
type AdviceInput struct {
	Request   domain.SchedulingRequest
	Candidate domain.CandidateSlot
	Conflicts []*domain.Conflict
	// AppointmentID owns holds that should not block the alternatives.
	AppointmentID uuid.UUID
}

// ResolutionAdvisor proposes ranked remedies for conflicts. It never applies them.
type ResolutionAdvisor struct {
	planner *Planner
	logger  *slog.Logger
}

// NewResolutionAdvisor creates a resolution advisor.
func NewResolutionAdvisor(planner *Planner, logger *slog.Logger) *ResolutionAdvisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolutionAdvisor{planner: planner, logger: logger}
}

// Advise returns options ranked by score, actionable ones first. A branch that
// finds no availability contributes no option.
func (a *ResolutionAdvisor) Advise(ctx context.Context, in AdviceInput) ([]domain.ResolutionOption, error) {
	if len(in.Conflicts) == 0 {
		return nil, nil
	}
	req := in.Request
	c := in.Candidate
	var options []domain.ResolutionOption

	found, err := a.search(ctx, req, SearchOptions{
		Exclusions:        []domain.Exclusion{c.Key()},
		IgnoreAppointment: in.AppointmentID,
	})
	if err != nil {
		return nil, err
	}
	if alt, ok := pick(found, func(x domain.CandidateSlot) bool { return x.ParticipantID == c.ParticipantID }); ok {
		options = append(options, domain.ResolutionOption{
			Kind:        domain.ResolutionAlternateSlot,
			Description: fmt.Sprintf("move to %s", alt.Window),
			Score:       alt.Score,
			Candidate:   &alt,
		})
	}
	if !req.IsMultiParticipant() && len(req.RequiredParticipants) == 0 {
		sameWindow := func(x domain.CandidateSlot) bool {
			return x.ParticipantID != c.ParticipantID && x.Window.Equal(c.Window)
		}
		other := func(x domain.CandidateSlot) bool { return x.ParticipantID != c.ParticipantID }
		alt, ok := pick(found, sameWindow)
		if !ok {
			alt, ok = pick(found, other)
		}
		if ok {
			options = append(options, domain.ResolutionOption{
				Kind:         domain.ResolutionReassign,
				Description:  fmt.Sprintf("reassign to %s at %s", displayName(alt), alt.Window),
				Score:        alt.Score,
				Candidate:    &alt,
				Participants: []uuid.UUID{alt.ParticipantID},
			})
		}
	}

	if opt, ok := reduceScope(req, c, in.Conflicts); ok {
		options = append(options, opt)
	}

	if hasType(in.Conflicts, domain.ConflictWeatherGated) {
		if backup, ok := req.WithBackupDate(); ok {
			found, err := a.search(ctx, backup, SearchOptions{IgnoreAppointment: in.AppointmentID})
			if err != nil {
				return nil, err
			}
			if alt, ok := pick(found, nil); ok {
				date := domain.DayOf(*req.BackupDate)
				options = append(options, domain.ResolutionOption{
					Kind:        domain.ResolutionUseBackupDate,
					Description: fmt.Sprintf("use backup date %s at %s", date.Format("2006-01-02"), alt.Window),
					Score:       alt.Score,
					Candidate:   &alt,
					BackupDate:  &date,
				})
			}
		} else {
			options = append(options, domain.ResolutionOption{
				Kind:        domain.ResolutionRequestBackupDate,
				Description: "ask the requester for a backup date",
			})
		}
	}

	found, err = a.search(ctx, req.NextDay(), SearchOptions{IgnoreAppointment: in.AppointmentID})
	if err != nil {
		return nil, err
	}
	if alt, ok := pick(found, nil); ok {
		options = append(options, domain.ResolutionOption{
			Kind:        domain.ResolutionDefer,
			Description: fmt.Sprintf("defer to %s", alt.Window),
			Score:       alt.Score,
			Candidate:   &alt,
		})
	}

	if softOnly(in.Conflicts) {
		accepted := c
		options = append(options, domain.ResolutionOption{
			Kind:        domain.ResolutionAcceptSoft,
			Description: "keep the slot and accept the tight travel gap",
			Score:       c.Score,
			Candidate:   &accepted,
		})
	}

	rankOptions(options)
	a.logger.DebugContext(ctx, "resolution options generated",
		"conflicts", len(in.Conflicts),
		"options", len(options),
	)
	return options, nil
}

func (a *ResolutionAdvisor) search(ctx context.Context, req domain.SchedulingRequest, opts SearchOptions) ([]domain.CandidateSlot, error) {
	result, err := a.planner.FindSlots(ctx, req, opts)
	if err != nil {
		var noAvail *domain.NoAvailabilityError
		var invalid *domain.ValidationError
		if errors.As(err, &noAvail) || errors.As(err, &invalid) {
			return nil, nil
		}
		return nil, err
	}
	return result.Candidates, nil
}

// reduceScope drops unavailable team members when the rest still meets quorum
// with the lead included.
func reduceScope(req domain.SchedulingRequest, c domain.CandidateSlot, conflicts []*domain.Conflict) (domain.ResolutionOption, bool) {
	if !req.IsMultiParticipant() {
		return domain.ResolutionOption{}, false
	}
	unavailable := make(map[uuid.UUID]bool)
	for _, conflict := range conflicts {
		switch conflict.Type() {
		case domain.ConflictTeamUnavailable:
			unavailable[conflict.ParticipantID()] = true
		case domain.ConflictTimeOverlap:
			if conflict.ParticipantID() == c.ParticipantID {
				return domain.ResolutionOption{}, false
			}
		}
	}
	if len(unavailable) == 0 {
		return domain.ResolutionOption{}, false
	}

	reduced := c
	reduced.Team = nil
	reduced.TeamSlots = nil
	for i, member := range c.Team {
		if unavailable[member] {
			continue
		}
		reduced.Team = append(reduced.Team, member)
		if i < len(c.TeamSlots) {
			reduced.TeamSlots = append(reduced.TeamSlots, c.TeamSlots[i])
		}
	}
	if 1+len(reduced.Team) < req.MinQuorum {
		return domain.ResolutionOption{}, false
	}
	return domain.ResolutionOption{
		Kind:         domain.ResolutionReduceScope,
		Description:  fmt.Sprintf("proceed with %d of %d participants", 1+len(reduced.Team), 1+len(c.Team)),
		Score:        c.Score,
		Candidate:    &reduced,
		Participants: reduced.Participants(),
	}, true
}

func pick(candidates []domain.CandidateSlot, match func(domain.CandidateSlot) bool) (domain.CandidateSlot, bool) {
	for _, x := range candidates {
		if match == nil || match(x) {
			return x, true
		}
	}
	return domain.CandidateSlot{}, false
}

func hasType(conflicts []*domain.Conflict, t domain.ConflictType) bool {
	for _, c := range conflicts {
		if c.Type() == t {
			return true
		}
	}
	return false
}

// softOnly reports whether every conflict that blocks a plain commit is soft.
func softOnly(conflicts []*domain.Conflict) bool {
	soft := false
	for _, c := range conflicts {
		switch c.Severity() {
		case domain.SeverityHard:
			return false
		case domain.SeveritySoft:
			soft = true
		}
	}
	return soft
}

func rankOptions(options []domain.ResolutionOption) {
	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.Actionable() != b.Actionable() {
			return a.Actionable()
		}
		return a.Score > b.Score
	})
}

func displayName(c domain.CandidateSlot) string {
	if c.ParticipantName != "" {
		return c.ParticipantName
	}
	return c.ParticipantID.String()
}
