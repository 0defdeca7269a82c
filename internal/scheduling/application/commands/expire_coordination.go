package commands

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/crewplan/internal/shared/application"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
)

// ExpireCoordinationCommand sweeps coordination groups whose window elapsed.
type ExpireCoordinationCommand struct {
	Now time.Time
}

// ExpiredGroup describes one QuorumTimeout transition.
type ExpiredGroup struct {
	AppointmentID uuid.UUID
	ConflictID    uuid.UUID
	Held          int
	Released      int
	Options       int
}

// ExpireCoordinationResult lists the groups that timed out.
type ExpireCoordinationResult struct {
	Expired []ExpiredGroup
}

// ExpireCoordinationHandler handles the ExpireCoordinationCommand.
type ExpireCoordinationHandler struct {
	booker *Booker
}

// NewExpireCoordinationHandler creates a new ExpireCoordinationHandler.
func NewExpireCoordinationHandler(booker *Booker) *ExpireCoordinationHandler {
	return &ExpireCoordinationHandler{booker: booker}
}

// Handle times out every due group: all holds are released together, the
// appointment is cancelled and a quorum_timeout conflict with reschedule
// options is stored. One failing group does not stop the sweep.
func (h *ExpireCoordinationHandler) Handle(ctx context.Context, cmd ExpireCoordinationCommand) (*ExpireCoordinationResult, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now()
	}
	groups, err := h.booker.Coordination.FindExpiring(ctx, now.UTC())
	if err != nil {
		return nil, err
	}

	result := &ExpireCoordinationResult{}
	var errs []error
	for _, group := range groups {
		expired, err := h.expire(ctx, group)
		if err != nil {
			h.booker.Logger.ErrorContext(ctx, "coordination expiry failed",
				"appointment_id", group.AppointmentID(),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		result.Expired = append(result.Expired, *expired)
	}
	return result, errors.Join(errs...)
}

func (h *ExpireCoordinationHandler) expire(ctx context.Context, group *domain.CoordinationGroup) (*ExpiredGroup, error) {
	b := h.booker
	appt, err := b.Appointments.FindByID(ctx, group.AppointmentID())
	if err != nil {
		return nil, err
	}

	// options are searched before the sweep so no transaction spans provider calls
	candidate := services.CandidateFromGroup(appt, group)
	draft := domain.NewConflict(domain.ConflictQuorumTimeout, domain.SeverityHard, appt.Lead(), appt.Window(), "")
	options, err := b.Advisor.Advise(ctx, services.AdviceInput{
		Request:       appt.Request(),
		Candidate:     candidate,
		Conflicts:     []*domain.Conflict{draft},
		AppointmentID: appt.ID(),
	})
	if err != nil {
		return nil, err
	}

	var out *ExpiredGroup
	err = sharedApplication.WithUnitOfWork(ctx, b.UnitOfWork, func(txCtx context.Context) error {
		res, err := b.Coordinator.Expire(txCtx, appt, group)
		if err != nil {
			return err
		}
		res.Conflict.SetOptions(options)

		if err := b.Appointments.Save(txCtx, appt); err != nil {
			return err
		}
		if err := b.Coordination.Save(txCtx, group); err != nil {
			return err
		}
		if err := b.Conflicts.Save(txCtx, res.Conflict); err != nil {
			return err
		}
		appt.RecordConflicts([]*domain.Conflict{res.Conflict})
		entry := domain.NewAuditEntry(appt.ID(), domain.AuditQuorumTimeout, false, res.Conflict.Message()).
			WithConflicts([]*domain.Conflict{res.Conflict})
		entry.Window = appt.Window()
		if err := b.Audit.Append(txCtx, entry); err != nil {
			return err
		}
		out = &ExpiredGroup{
			AppointmentID: appt.ID(),
			ConflictID:    res.Conflict.ID(),
			Held:          len(res.Held),
			Released:      len(res.Released),
			Options:       len(options),
		}
		return b.emit(txCtx, uuid.Nil, appt)
	})
	if err != nil {
		return nil, err
	}
	b.Metrics.Counter(observability.MetricCancellations, 1, observability.T("reason", "quorum_timeout"))
	return out, nil
}
