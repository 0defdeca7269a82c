package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/crewplan/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/crewplan/internal/shared/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
)

// Outcome summarizes what a commit did.
type Outcome string

const (
	// OutcomeConfirmed means the reservation was taken and the appointment booked.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeProposed means a coordination group was opened.
	OutcomeProposed Outcome = "proposed"
	// OutcomeConflicted means blocking conflicts were found and options generated.
	OutcomeConflicted Outcome = "conflicted"
)

// CommitResult is the outcome of committing a candidate.
type CommitResult struct {
	Outcome      Outcome
	Appointment  *domain.Appointment
	Group        *domain.CoordinationGroup
	Reservations []domain.Reservation
	Conflicts    []*domain.Conflict
	Options      []domain.ResolutionOption
	Weather      domain.WeatherCheck
}

// BookerDeps are the collaborators of the commit pipeline.
type BookerDeps struct {
	Appointments domain.AppointmentRepository
	Conflicts    domain.ConflictRepository
	Coordination domain.CoordinationRepository
	Audit        domain.AuditRepository
	Outbox       outbox.Repository
	UnitOfWork   sharedApplication.UnitOfWork
	Planner      *services.Planner
	Detector     *services.ConflictDetector
	Advisor      *services.ResolutionAdvisor
	Coordinator  *services.Coordinator
	Logger       *slog.Logger
	Metrics      observability.Metrics
}

// Booker runs the commit pipeline shared by commit, auto-schedule, resolve
// and coordination responses: re-validate, reserve, persist, emit.
type Booker struct {
	BookerDeps
}

// NewBooker creates a booker.
func NewBooker(deps BookerDeps) *Booker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	return &Booker{BookerDeps: deps}
}

type commitInput struct {
	Request     domain.SchedulingRequest
	Type        domain.AppointmentType
	Candidate   domain.CandidateSlot
	AcceptSoft  bool
	RequestedBy uuid.UUID
	// Existing is a Proposed appointment without holds that moves to Candidate.
	Existing *domain.Appointment
	// Replaces is superseded by the new appointment once Candidate is reserved.
	Replaces *domain.Appointment
	// ReplacesGroup is the coordination group of Replaces, if any.
	ReplacesGroup *domain.CoordinationGroup
	// Finalize runs inside the unit of work once the appointment is stored.
	Finalize func(ctx context.Context, appt *domain.Appointment) error
}

func (in commitInput) finalize(ctx context.Context, appt *domain.Appointment) error {
	if in.Finalize == nil {
		return nil
	}
	return in.Finalize(ctx, appt)
}

func (in commitInput) ownerID() uuid.UUID {
	switch {
	case in.Existing != nil:
		return in.Existing.ID()
	case in.Replaces != nil:
		return in.Replaces.ID()
	default:
		return uuid.Nil
	}
}

func (b *Booker) commit(ctx context.Context, in commitInput) (*CommitResult, error) {
	det, err := b.Detector.Detect(ctx, services.DetectionInput{
		Request:       in.Request,
		Profile:       in.Type.WeatherProfile,
		Candidate:     in.Candidate,
		AppointmentID: in.ownerID(),
	})
	if err != nil {
		return nil, err
	}
	candidate := in.Candidate
	candidate.Weather = det.Weather

	blocking := domain.Blocking(det.Conflicts, in.AcceptSoft)
	if len(blocking) > 0 {
		return b.reject(ctx, in, candidate, blocking)
	}

	appt, err := b.draft(in, candidate)
	if err != nil {
		return nil, err
	}
	for _, c := range det.Conflicts {
		switch c.Severity() {
		case domain.SeverityInformational:
			appt.AddNote(c.Message())
		case domain.SeveritySoft:
			appt.AddNote("accepted: " + c.Message())
		}
	}

	if in.Request.IsMultiParticipant() {
		return b.propose(ctx, in, appt, candidate, det.Weather)
	}
	return b.book(ctx, in, appt, candidate, det.Weather)
}

func (b *Booker) draft(in commitInput, candidate domain.CandidateSlot) (*domain.Appointment, error) {
	if in.Existing != nil {
		if err := in.Existing.Retarget(candidate); err != nil {
			return nil, err
		}
		return in.Existing, nil
	}
	appt, err := domain.NewAppointment(in.Request, candidate)
	if err != nil {
		return nil, err
	}
	if in.Replaces != nil {
		appt.LinkRescheduledFrom(in.Replaces.ID())
	}
	return appt, nil
}

// reject persists the blocking conflicts with ranked options. A brand-new
// request leaves a Proposed appointment behind so the conflict can be resolved.
func (b *Booker) reject(ctx context.Context, in commitInput, candidate domain.CandidateSlot, blocking []*domain.Conflict) (*CommitResult, error) {
	owner := in.Existing
	if owner == nil {
		owner = in.Replaces
	}
	if owner == nil {
		appt, err := domain.NewAppointment(in.Request, candidate)
		if err != nil {
			return nil, err
		}
		owner = appt
	}

	options, err := b.Advisor.Advise(ctx, services.AdviceInput{
		Request:       in.Request,
		Candidate:     candidate,
		Conflicts:     blocking,
		AppointmentID: owner.ID(),
	})
	if err != nil {
		return nil, err
	}
	for _, c := range blocking {
		c.Attach(owner.ID(), in.Request, candidate)
		c.SetOptions(options)
	}
	owner.RecordConflicts(blocking)

	entry := domain.NewAuditEntry(owner.ID(), domain.AuditConflictDetected, false, conflictSummary(blocking)).
		WithCandidate(candidate).
		WithConflicts(blocking)
	entry.RequestID = in.Request.RequestID

	err = sharedApplication.WithUnitOfWork(ctx, b.UnitOfWork, func(txCtx context.Context) error {
		if err := b.Appointments.Save(txCtx, owner); err != nil {
			return err
		}
		for _, c := range blocking {
			if err := b.Conflicts.Save(txCtx, c); err != nil {
				return err
			}
		}
		if err := b.Audit.Append(txCtx, entry); err != nil {
			return err
		}
		return b.emit(txCtx, in.RequestedBy, owner)
	})
	if err != nil {
		return nil, err
	}

	b.Logger.InfoContext(ctx, "commit blocked by conflicts",
		"appointment_id", owner.ID(),
		"conflicts", len(blocking),
		"options", len(options),
	)
	return &CommitResult{
		Outcome:     OutcomeConflicted,
		Appointment: owner,
		Conflicts:   blocking,
		Options:     options,
		Weather:     candidate.Weather,
	}, nil
}

// book reserves the lead's window and confirms a single-participant appointment.
func (b *Booker) book(ctx context.Context, in commitInput, appt *domain.Appointment, candidate domain.CandidateSlot, check domain.WeatherCheck) (*CommitResult, error) {
	registry := b.Planner.Registry()
	result := &CommitResult{Outcome: OutcomeConfirmed, Appointment: appt, Weather: check}

	err := sharedApplication.WithUnitOfWork(ctx, b.UnitOfWork, func(txCtx context.Context) error {
		if err := b.supersede(txCtx, in, appt); err != nil {
			return err
		}
		res, err := registry.Reserve(txCtx, domain.ReserveRequest{
			ParticipantID: candidate.ParticipantID,
			SlotID:        candidate.SlotID,
			AppointmentID: appt.ID(),
			Window:        candidate.Window,
			Location:      in.Request.Location,
		})
		if err != nil {
			return err
		}
		result.Reservations = []domain.Reservation{*res}

		if err := appt.Confirm(check, []uuid.UUID{res.ParticipantID}); err != nil {
			return err
		}
		if err := b.Appointments.Save(txCtx, appt); err != nil {
			return err
		}
		entry := domain.NewAuditEntry(appt.ID(), domain.AuditCommitted, true, "").WithCandidate(candidate)
		entry.RequestID = in.Request.RequestID
		if err := b.Audit.Append(txCtx, entry); err != nil {
			return err
		}
		if err := in.finalize(txCtx, appt); err != nil {
			return err
		}
		return b.emit(txCtx, in.RequestedBy, appt, in.Replaces)
	})
	if err != nil {
		if domain.IsReservationConflict(err) {
			return nil, b.lostRace(ctx, in, appt, candidate, err)
		}
		return nil, err
	}

	b.Metrics.Counter(observability.MetricAppointmentsBooked, 1, observability.T("kind", string(appt.Kind())))
	b.Logger.InfoContext(ctx, "appointment confirmed",
		"appointment_id", appt.ID(),
		"participant_id", candidate.ParticipantID,
		"window", candidate.Window.String(),
		"score", candidate.Score,
	)
	return result, nil
}

// propose opens coordination for a multi-participant appointment.
func (b *Booker) propose(ctx context.Context, in commitInput, appt *domain.Appointment, candidate domain.CandidateSlot, check domain.WeatherCheck) (*CommitResult, error) {
	appt.RecordWeatherCheck(check)
	group, err := b.Coordinator.Propose(ctx, appt, candidate)
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, b.UnitOfWork, func(txCtx context.Context) error {
		if err := b.supersede(txCtx, in, appt); err != nil {
			return err
		}
		if err := b.Appointments.Save(txCtx, appt); err != nil {
			return err
		}
		if err := b.Coordination.Save(txCtx, group); err != nil {
			return err
		}
		entry := domain.NewAuditEntry(appt.ID(), domain.AuditProposed, true,
			fmt.Sprintf("awaiting %d of %d participants until %s", group.MinQuorum(), len(group.Members()), group.Deadline().Format(time.RFC3339))).
			WithCandidate(candidate)
		entry.RequestID = in.Request.RequestID
		if err := b.Audit.Append(txCtx, entry); err != nil {
			return err
		}
		if err := in.finalize(txCtx, appt); err != nil {
			return err
		}
		return b.emit(txCtx, in.RequestedBy, appt, in.Replaces)
	})
	if err != nil {
		return nil, err
	}
	return &CommitResult{Outcome: OutcomeProposed, Appointment: appt, Group: group, Weather: check}, nil
}

// supersede releases the holds of the appointment being replaced and links it
// to its successor.
func (b *Booker) supersede(ctx context.Context, in commitInput, successor *domain.Appointment) error {
	if in.Replaces == nil {
		return nil
	}
	old := in.Replaces
	if old.Status().HoldsReservations() {
		released, err := b.Planner.Registry().ReleaseAppointment(ctx, old.ID())
		if err != nil {
			return err
		}
		old.RecordSlotsFreed(released)
	}
	if !old.Status().IsTerminal() {
		if err := old.MarkRescheduled(successor.ID()); err != nil {
			return err
		}
		if err := b.Appointments.Save(ctx, old); err != nil {
			return err
		}
	}
	if g := in.ReplacesGroup; g != nil {
		if err := g.MarkRescheduled(); err != nil {
			return err
		}
		if err := b.Coordination.Save(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// lostRace regenerates alternatives after a reservation conflict. The chosen
// candidate is never swapped silently.
func (b *Booker) lostRace(ctx context.Context, in commitInput, appt *domain.Appointment, candidate domain.CandidateSlot, err error) error {
	b.Metrics.Counter(observability.MetricReservationConflicts, 1)

	var conflict *domain.ReservationConflictError
	if !errors.As(err, &conflict) {
		conflict = &domain.ReservationConflictError{
			ParticipantID: candidate.ParticipantID,
			Window:        candidate.Window,
			Reason:        err.Error(),
		}
	}
	found, ferr := b.Planner.FindSlots(ctx, in.Request, services.SearchOptions{
		Exclusions:        []domain.Exclusion{candidate.Key()},
		IgnoreAppointment: in.ownerID(),
	})
	if ferr == nil {
		conflict.Alternatives = found.Candidates
	} else {
		b.Logger.DebugContext(ctx, "no alternatives after reservation conflict", "error", ferr)
	}

	owner := in.ownerID()
	if owner == uuid.Nil {
		owner = appt.ID()
	}
	entry := domain.NewAuditEntry(owner, domain.AuditReservationConflict, false, conflict.Reason).WithCandidate(candidate)
	entry.RequestID = in.Request.RequestID
	if aerr := b.Audit.Append(ctx, entry); aerr != nil {
		b.Logger.WarnContext(ctx, "audit append failed", "error", aerr)
	}
	return conflict
}

// emit writes the appointments' pending events to the outbox.
func (b *Booker) emit(ctx context.Context, requestedBy uuid.UUID, appointments ...*domain.Appointment) error {
	return emitAppointments(ctx, b.Outbox, requestedBy, appointments...)
}

func emitAppointments(ctx context.Context, repo outbox.Repository, requestedBy uuid.UUID, appointments ...*domain.Appointment) error {
	var events []sharedDomain.DomainEvent
	for _, a := range appointments {
		if a != nil {
			events = append(events, a.DomainEvents()...)
		}
	}
	if err := saveEvents(ctx, repo, requestedBy, events); err != nil {
		return err
	}
	for _, a := range appointments {
		if a != nil {
			a.ClearDomainEvents()
		}
	}
	return nil
}

func saveEvents(ctx context.Context, repo outbox.Repository, requestedBy uuid.UUID, events []sharedDomain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(requestedBy))

	msgs := make([]*outbox.Message, 0, len(events))
	for _, event := range events {
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return repo.SaveBatch(ctx, msgs)
}

func conflictSummary(conflicts []*domain.Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	s := string(conflicts[0].Type()) + ": " + conflicts[0].Message()
	if len(conflicts) > 1 {
		s += fmt.Sprintf(" (+%d more)", len(conflicts)-1)
	}
	return s
}
