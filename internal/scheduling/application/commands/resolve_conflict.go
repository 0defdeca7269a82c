package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// ResolveConflictCommand applies one of a conflict's resolution options.
type ResolveConflictCommand struct {
	ConflictID uuid.UUID
	OptionID   string
	// BackupDate answers a request_backup_date option.
	BackupDate  *time.Time
	RequestedBy uuid.UUID
}

// ResolveConflictHandler handles the ResolveConflictCommand.
type ResolveConflictHandler struct {
	booker *Booker
}

// NewResolveConflictHandler creates a new ResolveConflictHandler.
func NewResolveConflictHandler(booker *Booker) *ResolveConflictHandler {
	return &ResolveConflictHandler{booker: booker}
}

// Handle re-enters the commit pipeline with the option's candidate. The
// conflict is marked resolved only when that commit succeeds; new conflicts
// are returned with their own options.
func (h *ResolveConflictHandler) Handle(ctx context.Context, cmd ResolveConflictCommand) (*CommitResult, error) {
	b := h.booker
	conflict, err := b.Conflicts.FindByID(ctx, cmd.ConflictID)
	if err != nil {
		return nil, err
	}
	if !conflict.IsPending() {
		return nil, domain.ErrConflictResolved
	}
	option, err := conflict.Option(cmd.OptionID)
	if err != nil {
		return nil, err
	}

	req := conflict.Request()
	apptType, err := b.Planner.Normalize(&req)
	if err != nil {
		return nil, err
	}
	appt, err := b.Appointments.FindByID(ctx, conflict.PrimaryAppointment())
	if err != nil {
		return nil, err
	}
	group, err := b.Coordination.FindByAppointment(ctx, appt.ID())
	if err != nil && !errors.Is(err, domain.ErrCoordinationNotFound) {
		return nil, err
	}

	in := commitInput{Type: apptType, RequestedBy: cmd.RequestedBy}
	switch option.Kind {
	case domain.ResolutionRequestBackupDate:
		candidate, backupReq, err := h.searchBackupDate(ctx, req, cmd.BackupDate, appt.ID())
		if err != nil {
			return nil, err
		}
		req, in.Candidate = backupReq, candidate
	case domain.ResolutionUseBackupDate:
		if shifted, ok := req.WithBackupDate(); ok {
			req = shifted
		}
	case domain.ResolutionDefer:
		req = req.NextDay()
	case domain.ResolutionReduceScope:
		req = reduceRequest(req, option.Participants)
	case domain.ResolutionAcceptSoft:
		in.AcceptSoft = true
	}
	if option.Kind != domain.ResolutionRequestBackupDate {
		if !option.Actionable() {
			return nil, domain.NewValidationError("option", fmt.Sprintf("%s carries no candidate", option.Kind))
		}
		in.Candidate = *option.Candidate
	}
	in.Request = req

	if appt.Status() == domain.StatusProposed && group == nil && option.Kind != domain.ResolutionReduceScope {
		in.Existing = appt
	} else {
		in.Replaces = appt
		in.ReplacesGroup = group
	}

	now := time.Now().UTC()
	in.Finalize = func(txCtx context.Context, booked *domain.Appointment) error {
		if err := conflict.Resolve(option.ID, now); err != nil {
			return err
		}
		conflict.AddAffected(booked.ID())
		if err := b.Conflicts.Save(txCtx, conflict); err != nil {
			return err
		}
		entry := domain.NewAuditEntry(booked.ID(), domain.AuditResolved, true,
			fmt.Sprintf("%s applied to conflict %s", option.Kind, conflict.ID())).
			WithCandidate(in.Candidate).
			WithConflicts([]*domain.Conflict{conflict})
		entry.RequestID = req.RequestID
		return b.Audit.Append(txCtx, entry)
	}

	result, err := b.commit(ctx, in)
	if err != nil {
		return nil, err
	}
	b.Logger.InfoContext(ctx, "conflict resolution applied",
		"conflict_id", conflict.ID(),
		"option", option.Kind,
		"outcome", result.Outcome,
	)
	return result, nil
}

// searchBackupDate answers request_backup_date: the caller supplies the date
// and the best candidate on that day is committed.
func (h *ResolveConflictHandler) searchBackupDate(ctx context.Context, req domain.SchedulingRequest, date *time.Time, owner uuid.UUID) (domain.CandidateSlot, domain.SchedulingRequest, error) {
	if date == nil {
		return domain.CandidateSlot{}, req, domain.NewValidationError("backup_date", "is required for this option")
	}
	req.BackupDate = date
	shifted, _ := req.WithBackupDate()
	plan, err := h.booker.Planner.FindSlots(ctx, shifted, services.SearchOptions{IgnoreAppointment: owner})
	if err != nil {
		return domain.CandidateSlot{}, req, err
	}
	best, ok := plan.Best()
	if !ok {
		return domain.CandidateSlot{}, req, &domain.NoAvailabilityError{Constraint: domain.ConstraintOpenSlot, Detail: "nothing free on the backup date"}
	}
	return best, plan.Request, nil
}

// reduceRequest keeps only the participants an option retained.
func reduceRequest(req domain.SchedulingRequest, keep []uuid.UUID) domain.SchedulingRequest {
	kept := make(map[uuid.UUID]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	filter := func(ids []uuid.UUID) []uuid.UUID {
		var out []uuid.UUID
		for _, id := range ids {
			if kept[id] {
				out = append(out, id)
			}
		}
		return out
	}
	out := req
	out.RequiredParticipants = filter(req.RequiredParticipants)
	out.OptionalParticipants = filter(req.OptionalParticipants)
	if n := len(out.RequiredParticipants) + len(out.OptionalParticipants); out.MinQuorum > n {
		out.MinQuorum = n
	}
	return out
}
