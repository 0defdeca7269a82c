package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
)

// CoordinatorConfig configures multi-participant coordination.
type CoordinatorConfig struct {
	// Window is how long members have to place their holds.
	Window time.Duration
}

// DefaultCoordinatorConfig returns the default coordination settings.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{Window: 30 * time.Minute}
}

// Coordinator drives the quorum state machine of multi-participant
// appointments. Each hold is checked by the conflict detector and placed
// through the registry; the coordinator only tracks aggregate state and
// releases holds when the group fails.
// Callers persist the appointment and group it mutates.
type Coordinator struct {
	registry *Registry
	detector *ConflictDetector
	config   CoordinatorConfig
	logger   *slog.Logger
	metrics  observability.Metrics
	now      func() time.Time
}

// NewCoordinator creates a coordinator. detector may be nil, in which case
// holds are only checked by the registry.
func NewCoordinator(registry *Registry, detector *ConflictDetector, config CoordinatorConfig, logger *slog.Logger, metrics observability.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if config.Window <= 0 {
		config.Window = DefaultCoordinatorConfig().Window
	}
	return &Coordinator{registry: registry, detector: detector, config: config, logger: logger, metrics: metrics, now: time.Now}
}

// Window returns the coordination window.
func (c *Coordinator) Window() time.Duration {
	return c.config.Window
}

// Propose opens a coordination group for a Proposed appointment. Members
// without a free slot in the candidate start out declined.
func (c *Coordinator) Propose(ctx context.Context, appt *domain.Appointment, candidate domain.CandidateSlot) (*domain.CoordinationGroup, error) {
	now := c.now().UTC()
	deadline := now.Add(c.config.Window)

	var members []domain.GroupMember
	var missing []uuid.UUID
	for _, id := range appt.Participants() {
		slotID, ok := candidate.SlotFor(id)
		if !ok {
			missing = append(missing, id)
		}
		members = append(members, domain.GroupMember{ParticipantID: id, SlotID: slotID})
	}

	group, err := domain.NewCoordinationGroup(appt.ID(), appt.Lead(), members, appt.MinQuorum(), deadline)
	if err != nil {
		return nil, err
	}
	for _, id := range missing {
		if err := group.RecordDecline(id, now); err != nil {
			return nil, err
		}
	}
	if !group.CanStillReachQuorum() {
		return nil, &domain.NoAvailabilityError{
			Constraint: domain.ConstraintTeamAvailability,
			Detail:     fmt.Sprintf("only %d of %d participants free for %s", len(members)-len(missing), appt.MinQuorum(), appt.Window()),
		}
	}
	if err := appt.OpenCoordination(deadline); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "coordination opened",
		"appointment_id", appt.ID(),
		"members", len(members),
		"min_quorum", appt.MinQuorum(),
		"deadline", deadline,
	)
	return group, nil
}

// AcceptResult reports the outcome of a member placing their hold.
type AcceptResult struct {
	Reservation *domain.Reservation
	Confirmed   bool
	// Conflicts are the soft conflicts accepted with the hold.
	Conflicts []*domain.Conflict
}

// Accept places a provisional hold for a member. When the hold completes the
// quorum, every hold is confirmed along with the appointment.
func (c *Coordinator) Accept(ctx context.Context, appt *domain.Appointment, group *domain.CoordinationGroup, participantID uuid.UUID, check domain.WeatherCheck) (*AcceptResult, error) {
	now := c.now().UTC()
	if err := c.ensureOpen(group, now); err != nil {
		return nil, err
	}
	member, ok := group.Member(participantID)
	if !ok {
		return nil, domain.ErrNotGroupMember
	}
	if member.State == domain.MemberDeclined || member.SlotID == uuid.Nil {
		return nil, &domain.ReservationConflictError{
			ParticipantID: participantID,
			Window:        appt.Window(),
			Reason:        "participant has no open slot for this window",
		}
	}

	conflicts, err := c.memberConflicts(ctx, appt, participantID)
	if err != nil {
		return nil, err
	}

	res, err := c.registry.Reserve(ctx, domain.ReserveRequest{
		ParticipantID: participantID,
		SlotID:        member.SlotID,
		AppointmentID: appt.ID(),
		Window:        appt.Window(),
		Location:      appt.Location(),
		Provisional:   true,
	})
	if err != nil {
		return nil, err
	}
	if err := group.RecordHold(participantID, now); err != nil {
		return nil, err
	}
	result := &AcceptResult{Reservation: res, Conflicts: conflicts}
	for _, conflict := range conflicts {
		appt.AddNote("accepted: " + conflict.Message())
	}
	appt.RecordConflicts(conflicts)

	if !group.QuorumMet() {
		if appt.Status() != domain.StatusPartiallyConfirmed {
			if err := appt.MarkPartiallyConfirmed(); err != nil {
				return nil, err
			}
		}
		c.logger.InfoContext(ctx, "coordination hold placed",
			"appointment_id", appt.ID(),
			"participant_id", participantID,
			"held", len(group.HeldParticipants()),
			"min_quorum", group.MinQuorum(),
		)
		return result, nil
	}

	if err := c.confirm(ctx, appt, group, check); err != nil {
		return nil, err
	}
	result.Confirmed = true
	return result, nil
}

// memberConflicts returns the member's soft conflicts, or a reservation
// conflict when a hard one blocks the hold.
func (c *Coordinator) memberConflicts(ctx context.Context, appt *domain.Appointment, participantID uuid.UUID) ([]*domain.Conflict, error) {
	if c.detector == nil {
		return nil, nil
	}
	conflicts, err := c.detector.DetectMember(ctx, appt, participantID)
	if err != nil {
		return nil, err
	}
	for _, conflict := range conflicts {
		if conflict.Severity() == domain.SeverityHard {
			return nil, &domain.ReservationConflictError{
				ParticipantID: participantID,
				Window:        appt.Window(),
				Reason:        conflict.Message(),
			}
		}
	}
	return conflicts, nil
}

func (c *Coordinator) confirm(ctx context.Context, appt *domain.Appointment, group *domain.CoordinationGroup, check domain.WeatherCheck) error {
	held := group.HeldParticipants()
	if err := appt.Confirm(check, held); err != nil {
		return err
	}
	if err := group.Confirm(); err != nil {
		return err
	}
	if _, err := c.registry.ConfirmHolds(ctx, appt.ID()); err != nil {
		return fmt.Errorf("confirm holds: %w", err)
	}
	c.logger.InfoContext(ctx, "coordination confirmed",
		"appointment_id", appt.ID(),
		"participants", len(held),
	)
	return nil
}

// DeclineResult reports the outcome of a member declining.
type DeclineResult struct {
	Released  []domain.Reservation
	Cancelled bool
}

// Decline records that a member cannot attend. When quorum becomes
// unreachable the group fails and every hold is released.
func (c *Coordinator) Decline(ctx context.Context, appt *domain.Appointment, group *domain.CoordinationGroup, participantID uuid.UUID) (*DeclineResult, error) {
	now := c.now().UTC()
	if err := c.ensureOpen(group, now); err != nil {
		return nil, err
	}
	member, ok := group.Member(participantID)
	if !ok {
		return nil, domain.ErrNotGroupMember
	}

	result := &DeclineResult{}
	if member.State == domain.MemberHeld {
		released, err := c.registry.Release(ctx, participantID, appt.Window())
		if err != nil {
			return nil, err
		}
		result.Released = released
	}
	if err := group.RecordDecline(participantID, now); err != nil {
		return nil, err
	}
	if group.CanStillReachQuorum() {
		return result, nil
	}

	released, err := c.registry.ReleaseAppointment(ctx, appt.ID())
	if err != nil {
		return nil, err
	}
	result.Released = append(result.Released, released...)
	if err := group.Cancel(); err != nil {
		return nil, err
	}
	if err := appt.Cancel("quorum unreachable after decline"); err != nil {
		return nil, err
	}
	appt.RecordSlotsFreed(result.Released)
	result.Cancelled = true

	c.metrics.Counter(observability.MetricCancellations, 1, observability.T("reason", "quorum_unreachable"))
	c.logger.InfoContext(ctx, "coordination failed",
		"appointment_id", appt.ID(),
		"declined_by", participantID,
		"released", len(result.Released),
	)
	return result, nil
}

// ExpiryResult reports a QuorumTimeout transition.
type ExpiryResult struct {
	Held     []uuid.UUID
	Released []domain.Reservation
	Conflict *domain.Conflict
}

// Expire times out a group whose window elapsed before quorum. All holds are
// released in the same call and the appointment is cancelled.
func (c *Coordinator) Expire(ctx context.Context, appt *domain.Appointment, group *domain.CoordinationGroup) (*ExpiryResult, error) {
	now := c.now().UTC()
	held := group.HeldParticipants()
	if err := group.TimeOut(now); err != nil {
		return nil, err
	}

	released, err := c.registry.ReleaseAppointment(ctx, appt.ID())
	if err != nil {
		return nil, err
	}

	appt.AddDomainEvent(domain.NewQuorumTimedOut(group, held))
	if err := appt.Cancel("quorum timeout"); err != nil {
		return nil, err
	}
	appt.RecordSlotsFreed(released)

	conflict := domain.NewConflict(
		domain.ConflictQuorumTimeout, domain.SeverityHard, appt.Lead(), appt.Window(),
		fmt.Sprintf("%d of %d required holds placed before %s", len(held), group.MinQuorum(), group.Deadline().Format(time.RFC3339)),
	)
	conflict.Attach(appt.ID(), appt.Request(), CandidateFromGroup(appt, group))

	c.metrics.Counter(observability.MetricQuorumTimeouts, 1)
	c.logger.InfoContext(ctx, "coordination timed out",
		"appointment_id", appt.ID(),
		"held", len(held),
		"min_quorum", group.MinQuorum(),
		"released", len(released),
	)
	return &ExpiryResult{Held: held, Released: released, Conflict: conflict}, nil
}

func (c *Coordinator) ensureOpen(group *domain.CoordinationGroup, now time.Time) error {
	if group.IsExpired(now) {
		return fmt.Errorf("%w: window closed at %s", domain.ErrQuorumTimeout, group.Deadline().Format(time.RFC3339))
	}
	if !group.IsOpen() {
		return domain.ErrCoordinationClosed
	}
	return nil
}

// CandidateFromGroup rebuilds the candidate an appointment was proposed with.
func CandidateFromGroup(appt *domain.Appointment, group *domain.CoordinationGroup) domain.CandidateSlot {
	c := domain.CandidateSlot{
		ParticipantID: appt.Lead(),
		Window:        appt.Window(),
		Score:         appt.Score(),
	}
	if check := appt.LastWeatherCheck(); check != nil {
		c.Weather = *check
	}
	for _, m := range group.Members() {
		if m.ParticipantID == appt.Lead() {
			c.SlotID = m.SlotID
			continue
		}
		if m.State == domain.MemberDeclined {
			continue
		}
		c.Team = append(c.Team, m.ParticipantID)
		c.TeamSlots = append(c.TeamSlots, m.SlotID)
	}
	return c
}

// IsCoordinationClosed reports errors that mean the group no longer accepts responses.
func IsCoordinationClosed(err error) bool {
	return errors.Is(err, domain.ErrCoordinationClosed) || errors.Is(err, domain.ErrQuorumTimeout)
}
