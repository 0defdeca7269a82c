package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// RegistryConfig configures the availability registry.
type RegistryConfig struct {
	// Buffer is the mandatory gap around every reservation.
	Buffer time.Duration
	// Granularity is the step between candidate start times inside a slot.
	Granularity time.Duration
	// MaxOptionsPerParticipant caps pool query results per participant. Zero
	// means no cap. Options inside preferred windows are always kept and the
	// rest are sampled evenly across the range.
	MaxOptionsPerParticipant int
}

// DefaultRegistryConfig returns the default registry settings.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Buffer:                   15 * time.Minute,
		Granularity:              30 * time.Minute,
		MaxOptionsPerParticipant: 16,
	}
}

// AvailabilityQuery describes the windows a request can use.
type AvailabilityQuery struct {
	Range          domain.TimeRange
	Duration       time.Duration
	Location       domain.Location
	RequiredSkills []string
	// Participants restricts the query to these participants. Empty means the whole pool.
	Participants []uuid.UUID
	Exclusions   []domain.Exclusion
	// IgnoreAppointment hides the reservations of an appointment being moved.
	IgnoreAppointment uuid.UUID
	// Preferred windows survive the per-participant limit.
	Preferred []domain.TimeRange
	Limit     int
}

// AvailableOption pairs a participant with a free window inside one of their slots.
type AvailableOption struct {
	Participant *domain.Participant
	Slot        *domain.AvailabilitySlot
	Window      domain.TimeRange
	DayLoad     int
	// Prior is the participant's last reservation ending before Window on the same day.
	Prior *domain.Reservation
}

// AvailabilityDiagnostics counts how many participants each hard constraint eliminated.
type AvailabilityDiagnostics struct {
	Considered    int
	MissingSkills int
	OutOfRange    int
	AtDailyCap    int
	NoOpenSlot    int
}

// FailingConstraint names the constraint that eliminated the most participants.
func (d AvailabilityDiagnostics) FailingConstraint() *domain.NoAvailabilityError {
	if d.Considered == 0 {
		return &domain.NoAvailabilityError{Constraint: domain.ConstraintParticipants, Detail: "no active participants"}
	}
	type count struct {
		constraint string
		n          int
		detail     string
	}
	counts := []count{
		{domain.ConstraintOpenSlot, d.NoOpenSlot, "no free window in any slot"},
		{domain.ConstraintDailyCap, d.AtDailyCap, "daily appointment cap reached"},
		{domain.ConstraintTravelRadius, d.OutOfRange, "site outside travel radius"},
		{domain.ConstraintSkills, d.MissingSkills, "required skills not held"},
	}
	best := counts[0]
	for _, c := range counts[1:] {
		if c.n > best.n {
			best = c
		}
	}
	return &domain.NoAvailabilityError{
		Constraint: best.constraint,
		Detail:     fmt.Sprintf("%s for %d of %d participants", best.detail, best.n, d.Considered),
	}
}

// AvailabilityResult is the outcome of QueryAvailable.
type AvailabilityResult struct {
	Options     []AvailableOption
	Diagnostics AvailabilityDiagnostics
}

// Registry is the single source of truth for who can be booked when. Reads
// take no locks; reservation state changes go through the store's atomic
// per-participant operations.
type Registry struct {
	participants domain.ParticipantRepository
	store        domain.AvailabilityStore
	config       RegistryConfig
	logger       *slog.Logger

	mu       sync.Mutex
	watchers map[uint64]chan domain.SlotChanged
	nextID   uint64
}

// NewRegistry creates an availability registry.
func NewRegistry(participants domain.ParticipantRepository, store domain.AvailabilityStore, config RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Granularity <= 0 {
		config.Granularity = DefaultRegistryConfig().Granularity
	}
	return &Registry{
		participants: participants,
		store:        store,
		config:       config,
		logger:       logger,
		watchers:     make(map[uint64]chan domain.SlotChanged),
	}
}

// Config returns the registry settings.
func (r *Registry) Config() RegistryConfig {
	return r.config
}

// Rules returns the reservation rules the registry enforces.
func (r *Registry) Rules() domain.ReservationRules {
	return domain.ReservationRules{Buffer: r.config.Buffer}
}

// QueryAvailable returns participants with open capacity in the query range,
// filtered by skills, travel radius and daily cap, clear of blocked ranges and
// of the buffer around existing reservations.
func (r *Registry) QueryAvailable(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	if q.Duration <= 0 {
		return nil, domain.NewValidationError("duration", "must be positive")
	}
	if !q.Range.End.After(q.Range.Start) {
		return nil, domain.ErrInvalidTimeRange
	}

	candidates, err := r.loadParticipants(ctx, q.Participants)
	if err != nil {
		return nil, err
	}

	result := &AvailabilityResult{}
	result.Diagnostics.Considered = len(candidates)

	eligible := make([]*domain.Participant, 0, len(candidates))
	for _, p := range candidates {
		switch {
		case !p.HasSkills(q.RequiredSkills):
			result.Diagnostics.MissingSkills++
		case !p.CanReach(q.Location):
			result.Diagnostics.OutOfRange++
		default:
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, len(eligible))
	for i, p := range eligible {
		ids[i] = p.ID()
	}
	days := domain.TimeRange{
		Start: domain.DayOf(q.Range.Start),
		End:   domain.DayOf(q.Range.End).AddDate(0, 0, 1),
	}
	slots, err := r.store.SlotsInRange(ctx, ids, q.Range)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	reservations, err := r.store.ReservationsInRange(ctx, ids, days.Expand(r.config.Buffer, r.config.Buffer))
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}

	slotsByParticipant := make(map[uuid.UUID][]*domain.AvailabilitySlot)
	for _, s := range slots {
		slotsByParticipant[s.ParticipantID()] = append(slotsByParticipant[s.ParticipantID()], s)
	}
	resByParticipant := make(map[uuid.UUID][]domain.Reservation)
	for _, res := range reservations {
		if q.IgnoreAppointment != uuid.Nil && res.AppointmentID == q.IgnoreAppointment {
			continue
		}
		resByParticipant[res.ParticipantID] = append(resByParticipant[res.ParticipantID], res)
	}

	for _, p := range eligible {
		options, capped := r.participantOptions(p, q, slotsByParticipant[p.ID()], resByParticipant[p.ID()])
		if len(options) == 0 {
			if capped {
				result.Diagnostics.AtDailyCap++
			} else {
				result.Diagnostics.NoOpenSlot++
			}
			continue
		}
		result.Options = append(result.Options, options...)
	}

	r.logger.DebugContext(ctx, "availability queried",
		"participants", result.Diagnostics.Considered,
		"options", len(result.Options),
	)
	return result, nil
}

func (r *Registry) loadParticipants(ctx context.Context, ids []uuid.UUID) ([]*domain.Participant, error) {
	if len(ids) == 0 {
		all, err := r.participants.FindActive(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("load participants: %w", err)
		}
		return all, nil
	}
	found, err := r.participants.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	active := found[:0]
	for _, p := range found {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	return active, nil
}

// participantOptions steps through the participant's slots. capped reports
// that free windows existed but every one fell on a day at the daily cap.
func (r *Registry) participantOptions(
	p *domain.Participant,
	q AvailabilityQuery,
	slots []*domain.AvailabilitySlot,
	active []domain.Reservation,
) (options []AvailableOption, capped bool) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].Window().Start.Before(slots[j].Window().Start) })
	rules := r.Rules()

	for _, slot := range slots {
		span, ok := slot.Window().Intersect(q.Range)
		if !ok {
			continue
		}
		for start := alignUp(span.Start, r.config.Granularity); !start.Add(q.Duration).After(span.End); start = start.Add(r.config.Granularity) {
			window := domain.WindowFrom(start, q.Duration)
			if excluded(q.Exclusions, p.ID(), window) {
				continue
			}
			req := domain.ReserveRequest{ParticipantID: p.ID(), SlotID: slot.ID(), Window: window}
			if _, err := rules.Check(slot, req, active); err != nil {
				continue
			}
			load := dayLoad(active, window.Start)
			if p.AtCap(load) {
				capped = true
				continue
			}
			options = append(options, AvailableOption{
				Participant: p,
				Slot:        slot,
				Window:      window,
				DayLoad:     load,
				Prior:       priorReservation(active, window),
			})
		}
	}
	return thinOptions(options, q.Limit, q.Preferred), capped
}

// thinOptions trims time-ordered options to limit. Every option inside a
// preferred window is kept; the remaining budget is spread evenly over the
// others so later days stay represented.
func thinOptions(options []AvailableOption, limit int, preferred []domain.TimeRange) []AvailableOption {
	if limit <= 0 || len(options) <= limit {
		return options
	}
	kept := make([]AvailableOption, 0, limit)
	var rest []AvailableOption
	for _, opt := range options {
		if insideAny(preferred, opt.Window) {
			kept = append(kept, opt)
		} else {
			rest = append(rest, opt)
		}
	}
	budget := limit - len(kept)
	switch {
	case budget <= 0 || len(rest) == 0:
	case budget >= len(rest):
		kept = append(kept, rest...)
	default:
		// with room for two or more, the first and last options are both sampled
		for i := 0; i < budget; i++ {
			idx := 0
			if budget > 1 {
				idx = i * (len(rest) - 1) / (budget - 1)
			}
			kept = append(kept, rest[idx])
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Window.Start.Before(kept[j].Window.Start) })
	return kept
}

func insideAny(ranges []domain.TimeRange, w domain.TimeRange) bool {
	for _, r := range ranges {
		if r.Contains(w) {
			return true
		}
	}
	return false
}

// Reserve atomically claims a window. The participant's daily cap is applied
// from the stored profile.
func (r *Registry) Reserve(ctx context.Context, req domain.ReserveRequest) (*domain.Reservation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := r.participants.FindByID(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, &domain.ReservationConflictError{ParticipantID: req.ParticipantID, Window: req.Window, Reason: "participant inactive"}
	}
	req.DailyCap = p.DailyCap()

	res, err := r.store.Reserve(ctx, req, r.Rules())
	if err != nil {
		if domain.IsReservationConflict(err) {
			r.logger.InfoContext(ctx, "reservation conflict",
				"participant_id", req.ParticipantID,
				"window", req.Window.String(),
				"error", err,
			)
		}
		return nil, err
	}
	r.Notify(domain.NewSlotChanged(*res, domain.SlotReserved))
	return res, nil
}

// Release frees the participant's reservations inside window. Releasing a free
// window is a no-op.
func (r *Registry) Release(ctx context.Context, participantID uuid.UUID, window domain.TimeRange) ([]domain.Reservation, error) {
	released, err := r.store.Release(ctx, participantID, window)
	if err != nil {
		return nil, err
	}
	r.notifyAll(released, domain.SlotReleased)
	return released, nil
}

// ReleaseAppointment frees every reservation of an appointment.
func (r *Registry) ReleaseAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	released, err := r.store.ReleaseAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	r.notifyAll(released, domain.SlotReleased)
	return released, nil
}

// ConfirmHolds turns an appointment's provisional holds into confirmed reservations.
func (r *Registry) ConfirmHolds(ctx context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	confirmed, err := r.store.ConfirmAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	r.notifyAll(confirmed, domain.SlotConfirmed)
	return confirmed, nil
}

// ActiveReservations returns the reservations of participants inside rng.
func (r *Registry) ActiveReservations(ctx context.Context, participantIDs []uuid.UUID, rng domain.TimeRange) ([]domain.Reservation, error) {
	return r.store.ReservationsInRange(ctx, participantIDs, rng)
}

// AppointmentReservations returns the reservations held for an appointment.
func (r *Registry) AppointmentReservations(ctx context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	return r.store.ReservationsForAppointment(ctx, appointmentID)
}

// Participant loads one participant.
func (r *Registry) Participant(ctx context.Context, id uuid.UUID) (*domain.Participant, error) {
	return r.participants.FindByID(ctx, id)
}

// Watch streams slot changes until ctx is done. Slow receivers miss changes
// rather than block reservations.
func (r *Registry) Watch(ctx context.Context) <-chan domain.SlotChanged {
	ch := make(chan domain.SlotChanged, 32)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = ch
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.watchers, id)
		close(ch)
		r.mu.Unlock()
	}()
	return ch
}

// Notify fans a slot change out to watchers.
func (r *Registry) Notify(changes ...domain.SlotChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, change := range changes {
		for _, ch := range r.watchers {
			select {
			case ch <- change:
			default:
			}
		}
	}
}

func (r *Registry) notifyAll(reservations []domain.Reservation, change domain.SlotChange) {
	if len(reservations) == 0 {
		return
	}
	events := make([]domain.SlotChanged, len(reservations))
	for i, res := range reservations {
		events[i] = domain.NewSlotChanged(res, change)
	}
	r.Notify(events...)
}

func alignUp(t time.Time, step time.Duration) time.Time {
	day := domain.DayOf(t)
	offset := t.Sub(day)
	if rem := offset % step; rem != 0 {
		offset += step - rem
	}
	return day.Add(offset)
}

func excluded(exclusions []domain.Exclusion, participantID uuid.UUID, window domain.TimeRange) bool {
	for _, e := range exclusions {
		if e.Matches(participantID, window) {
			return true
		}
	}
	return false
}

func dayLoad(active []domain.Reservation, day time.Time) int {
	n := 0
	for _, res := range active {
		if domain.SameDay(res.Window.Start, day) {
			n++
		}
	}
	return n
}

func priorReservation(active []domain.Reservation, window domain.TimeRange) *domain.Reservation {
	var prior *domain.Reservation
	for i := range active {
		res := active[i]
		if !domain.SameDay(res.Window.Start, window.Start) || res.Window.End.After(window.Start) {
			continue
		}
		if prior == nil || res.Window.End.After(prior.Window.End) {
			prior = &active[i]
		}
	}
	return prior
}

func nextReservation(active []domain.Reservation, window domain.TimeRange) *domain.Reservation {
	var next *domain.Reservation
	for i := range active {
		res := active[i]
		if !domain.SameDay(res.Window.Start, window.Start) || res.Window.Start.Before(window.End) {
			continue
		}
		if next == nil || res.Window.Start.Before(next.Window.Start) {
			next = &active[i]
		}
	}
	return next
}
