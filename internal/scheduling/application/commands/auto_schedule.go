package commands

import (
	"context"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// DefaultMaxAttempts bounds auto-schedule retries after lost reservation races.
const DefaultMaxAttempts = 3

// AutoScheduleCommand finds and books the best candidate in one call.
type AutoScheduleCommand struct {
	Request     domain.SchedulingRequest
	AcceptSoft  bool
	RequestedBy uuid.UUID
}

// AutoScheduleResult adds the attempt count to the commit outcome.
type AutoScheduleResult struct {
	*CommitResult
	Attempts int
}

// AutoScheduleHandler handles the AutoScheduleCommand.
type AutoScheduleHandler struct {
	booker      *Booker
	maxAttempts int
}

// NewAutoScheduleHandler creates a new AutoScheduleHandler.
func NewAutoScheduleHandler(booker *Booker, maxAttempts int) *AutoScheduleHandler {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &AutoScheduleHandler{booker: booker, maxAttempts: maxAttempts}
}

// Handle commits the top-ranked candidate. On a reservation conflict it
// regenerates candidates excluding every lost option and tries again, up to
// the attempt limit.
func (h *AutoScheduleHandler) Handle(ctx context.Context, cmd AutoScheduleCommand) (*AutoScheduleResult, error) {
	req := cmd.Request
	apptType, err := h.booker.Planner.Normalize(&req)
	if err != nil {
		return nil, err
	}

	var exclusions []domain.Exclusion
	var lastErr error
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plan, err := h.booker.Planner.FindSlots(ctx, req, services.SearchOptions{Exclusions: exclusions})
		if err != nil {
			return nil, err
		}
		best, ok := plan.Best()
		if !ok {
			return nil, &domain.NoAvailabilityError{Constraint: domain.ConstraintOpenSlot, Detail: "no candidates left"}
		}

		result, err := h.booker.commit(ctx, commitInput{
			Request:     plan.Request,
			Type:        apptType,
			Candidate:   best,
			AcceptSoft:  cmd.AcceptSoft,
			RequestedBy: cmd.RequestedBy,
		})
		if err == nil {
			return &AutoScheduleResult{CommitResult: result, Attempts: attempt}, nil
		}
		if !domain.IsReservationConflict(err) {
			return nil, err
		}
		lastErr = err
		exclusions = append(exclusions, best.Key())
		h.booker.Logger.InfoContext(ctx, "auto-schedule retrying after reservation conflict",
			"request_id", req.RequestID,
			"attempt", attempt,
			"participant_id", best.ParticipantID,
			"window", best.Window.String(),
		)
	}
	return nil, lastErr
}
