package commands

import (
	"context"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
)

// CommitAppointmentCommand books a candidate the caller picked from find_slots.
type CommitAppointmentCommand struct {
	Request   domain.SchedulingRequest
	Candidate domain.CandidateSlot
	// AcceptSoft lets soft conflicts through as appointment notes.
	AcceptSoft  bool
	RequestedBy uuid.UUID
}

// CommitAppointmentHandler handles the CommitAppointmentCommand.
type CommitAppointmentHandler struct {
	booker *Booker
}

// NewCommitAppointmentHandler creates a new CommitAppointmentHandler.
func NewCommitAppointmentHandler(booker *Booker) *CommitAppointmentHandler {
	return &CommitAppointmentHandler{booker: booker}
}

// Handle re-validates the candidate against live state and reserves it. A
// lost race returns a *domain.ReservationConflictError carrying regenerated
// alternatives; the handler never switches candidates on its own.
func (h *CommitAppointmentHandler) Handle(ctx context.Context, cmd CommitAppointmentCommand) (*CommitResult, error) {
	return observability.TimeOperationResult(ctx, h.booker.Logger, h.booker.Metrics, "commit_appointment", func() (*CommitResult, error) {
		return h.commit(ctx, cmd)
	})
}

func (h *CommitAppointmentHandler) commit(ctx context.Context, cmd CommitAppointmentCommand) (*CommitResult, error) {
	req := cmd.Request
	apptType, err := h.booker.Planner.Normalize(&req)
	if err != nil {
		return nil, err
	}
	if err := validateCandidate(req, cmd.Candidate); err != nil {
		return nil, err
	}
	return h.booker.commit(ctx, commitInput{
		Request:     req,
		Type:        apptType,
		Candidate:   cmd.Candidate,
		AcceptSoft:  cmd.AcceptSoft,
		RequestedBy: cmd.RequestedBy,
	})
}

func validateCandidate(req domain.SchedulingRequest, c domain.CandidateSlot) error {
	if c.ParticipantID == uuid.Nil || c.SlotID == uuid.Nil {
		return domain.NewValidationError("candidate", "must name a participant and a slot")
	}
	if !c.Window.End.After(c.Window.Start) {
		return domain.ErrInvalidTimeRange
	}
	if c.Window.Duration() != req.Duration {
		return domain.NewValidationError("candidate", "window does not match the requested duration")
	}
	if len(req.RequiredParticipants) > 0 && c.ParticipantID != req.Lead() {
		return domain.NewValidationError("candidate", "is not led by the designated lead participant")
	}
	if req.IsMultiParticipant() && len(c.Team) != len(c.TeamSlots) {
		return domain.NewValidationError("candidate", "team members and team slots differ in length")
	}
	return nil
}
