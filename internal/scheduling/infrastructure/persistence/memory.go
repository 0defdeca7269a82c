package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// NoopUnitOfWork satisfies application.UnitOfWork for the in-memory stores.
type NoopUnitOfWork struct{}

func (NoopUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (NoopUnitOfWork) Commit(context.Context) error                       { return nil }
func (NoopUnitOfWork) Rollback(context.Context) error                     { return nil }

// MemoryParticipantRepository is an in-memory domain.ParticipantRepository.
type MemoryParticipantRepository struct {
	mu           sync.RWMutex
	participants map[uuid.UUID]*domain.Participant
}

// NewMemoryParticipantRepository creates an empty repository.
func NewMemoryParticipantRepository() *MemoryParticipantRepository {
	return &MemoryParticipantRepository{participants: make(map[uuid.UUID]*domain.Participant)}
}

func (r *MemoryParticipantRepository) Save(_ context.Context, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID()] = copyParticipant(p)
	return nil
}

func (r *MemoryParticipantRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return copyParticipant(p), nil
}

func (r *MemoryParticipantRepository) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Participant
	for _, id := range ids {
		if p, ok := r.participants[id]; ok {
			out = append(out, copyParticipant(p))
		}
	}
	sortParticipants(out)
	return out, nil
}

func (r *MemoryParticipantRepository) FindActive(_ context.Context, skills []string) ([]*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Participant
	for _, p := range r.participants {
		if p.IsActive() && p.HasSkills(skills) {
			out = append(out, copyParticipant(p))
		}
	}
	sortParticipants(out)
	return out, nil
}

func copyParticipant(p *domain.Participant) *domain.Participant {
	return domain.RehydrateParticipant(p.ID(), p.Name(), p.Skills(), p.HomeLocation(), p.DailyCap(),
		p.TravelRadiusMiles(), p.IsActive(), p.CreatedAt(), p.UpdatedAt())
}

func sortParticipants(ps []*domain.Participant) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name() != ps[j].Name() {
			return ps[i].Name() < ps[j].Name()
		}
		return ps[i].ID().String() < ps[j].ID().String()
	})
}

// MemoryAvailabilityStore is an in-memory domain.AvailabilityStore.
// Reserve holds a per-participant lock across check and insert, so
// concurrent reservations for different participants do not contend.
type MemoryAvailabilityStore struct {
	mu           sync.RWMutex
	slots        map[uuid.UUID]*domain.AvailabilitySlot
	reservations map[uuid.UUID]domain.Reservation

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	now func() time.Time
}

// NewMemoryAvailabilityStore creates an empty store.
func NewMemoryAvailabilityStore() *MemoryAvailabilityStore {
	return &MemoryAvailabilityStore{
		slots:        make(map[uuid.UUID]*domain.AvailabilitySlot),
		reservations: make(map[uuid.UUID]domain.Reservation),
		locks:        make(map[uuid.UUID]*sync.Mutex),
		now:          time.Now,
	}
}

func (s *MemoryAvailabilityStore) participantLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryAvailabilityStore) SaveSlot(_ context.Context, slot *domain.AvailabilitySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID()] = copySlot(slot)
	return nil
}

func (s *MemoryAvailabilityStore) DeleteSlot(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[id]; !ok {
		return domain.ErrSlotNotFound
	}
	delete(s.slots, id)
	return nil
}

func (s *MemoryAvailabilityStore) FindSlot(_ context.Context, id uuid.UUID) (*domain.AvailabilitySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, domain.ErrSlotNotFound
	}
	return copySlot(slot), nil
}

func (s *MemoryAvailabilityStore) FindSlotByExternalRef(_ context.Context, participantID uuid.UUID, ref string) (*domain.AvailabilitySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.slots {
		if slot.ParticipantID() == participantID && slot.ExternalRef() == ref {
			return copySlot(slot), nil
		}
	}
	return nil, domain.ErrSlotNotFound
}

func (s *MemoryAvailabilityStore) SlotsInRange(_ context.Context, participantIDs []uuid.UUID, r domain.TimeRange) ([]*domain.AvailabilitySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := idSet(participantIDs)
	var out []*domain.AvailabilitySlot
	for _, slot := range s.slots {
		if want.has(slot.ParticipantID()) && slot.Window().Overlaps(r) {
			out = append(out, copySlot(slot))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Window().Start.Before(out[j].Window().Start) })
	return out, nil
}

func (s *MemoryAvailabilityStore) ReservationsInRange(_ context.Context, participantIDs []uuid.UUID, r domain.TimeRange) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsInRange(idSet(participantIDs), r), nil
}

func (s *MemoryAvailabilityStore) reservationsInRange(want ids, r domain.TimeRange) []domain.Reservation {
	var out []domain.Reservation
	for _, res := range s.reservations {
		if want.has(res.ParticipantID) && res.Window.Overlaps(r) {
			out = append(out, res)
		}
	}
	sortReservations(out)
	return out
}

func (s *MemoryAvailabilityStore) ReservationsForAppointment(_ context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matching(func(res domain.Reservation) bool { return res.AppointmentID == appointmentID }), nil
}

func (s *MemoryAvailabilityStore) Reserve(_ context.Context, req domain.ReserveRequest, rules domain.ReservationRules) (*domain.Reservation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	l := s.participantLock(req.ParticipantID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	var slot *domain.AvailabilitySlot
	if stored, ok := s.slots[req.SlotID]; ok {
		slot = copySlot(stored)
	}
	active := s.reservationsInRange(idSet([]uuid.UUID{req.ParticipantID}), rules.LookupRange(slot, req.Window))
	s.mu.RUnlock()

	existing, err := rules.Check(slot, req, active)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	res := domain.NewReservation(req, s.now())
	s.mu.Lock()
	s.reservations[res.ID] = res
	s.mu.Unlock()
	return &res, nil
}

func (s *MemoryAvailabilityStore) Release(_ context.Context, participantID uuid.UUID, window domain.TimeRange) ([]domain.Reservation, error) {
	return s.remove(func(res domain.Reservation) bool {
		return res.ParticipantID == participantID && window.Contains(res.Window)
	}), nil
}

func (s *MemoryAvailabilityStore) ReleaseAppointment(_ context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	return s.remove(func(res domain.Reservation) bool { return res.AppointmentID == appointmentID }), nil
}

func (s *MemoryAvailabilityStore) ConfirmAppointment(_ context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for id, res := range s.reservations {
		if res.AppointmentID != appointmentID {
			continue
		}
		res.State = domain.ReservationConfirmed
		s.reservations[id] = res
		out = append(out, res)
	}
	sortReservations(out)
	return out, nil
}

func (s *MemoryAvailabilityStore) remove(match func(domain.Reservation) bool) []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for id, res := range s.reservations {
		if match(res) {
			out = append(out, res)
			delete(s.reservations, id)
		}
	}
	sortReservations(out)
	return out
}

func (s *MemoryAvailabilityStore) matching(match func(domain.Reservation) bool) []domain.Reservation {
	var out []domain.Reservation
	for _, res := range s.reservations {
		if match(res) {
			out = append(out, res)
		}
	}
	sortReservations(out)
	return out
}

func copySlot(slot *domain.AvailabilitySlot) *domain.AvailabilitySlot {
	return domain.RehydrateAvailabilitySlot(slot.ID(), slot.ParticipantID(), slot.Window(), slot.Capacity(),
		slot.Blocked(), slot.Source(), slot.ExternalRef(), slot.CreatedAt(), slot.UpdatedAt())
}

func sortReservations(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Window.Start.Equal(rs[j].Window.Start) {
			return rs[i].Window.Start.Before(rs[j].Window.Start)
		}
		return rs[i].ParticipantID.String() < rs[j].ParticipantID.String()
	})
}

// ids is a participant filter; an empty filter matches everyone.
type ids map[uuid.UUID]struct{}

func idSet(list []uuid.UUID) ids {
	set := make(ids, len(list))
	for _, id := range list {
		set[id] = struct{}{}
	}
	return set
}

func (s ids) has(id uuid.UUID) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[id]
	return ok
}

// MemoryAppointmentRepository is an in-memory domain.AppointmentRepository
// with the same optimistic locking as the SQL repository.
type MemoryAppointmentRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]domain.AppointmentSnapshot
}

// NewMemoryAppointmentRepository creates an empty repository.
func NewMemoryAppointmentRepository() *MemoryAppointmentRepository {
	return &MemoryAppointmentRepository{appointments: make(map[uuid.UUID]domain.AppointmentSnapshot)}
}

func (r *MemoryAppointmentRepository) Save(_ context.Context, a *domain.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := a.Snapshot()
	if stored, ok := r.appointments[s.ID]; ok {
		if stored.Version != s.Version {
			return fmt.Errorf("%w: appointment %s", domain.ErrOptimisticLocking, s.ID)
		}
		s.Version++
	}
	r.appointments[s.ID] = s
	a.SetVersion(s.Version)
	return nil
}

func (r *MemoryAppointmentRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.appointments[id]
	if !ok {
		return nil, domain.ErrAppointmentNotFound
	}
	return domain.RehydrateAppointment(s), nil
}

func (r *MemoryAppointmentRepository) FindByStatusInRange(_ context.Context, statuses []domain.AppointmentStatus, rng domain.TimeRange) ([]*domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[domain.AppointmentStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*domain.Appointment
	for _, s := range r.appointments {
		if want[s.Status] && !s.Window.Start.Before(rng.Start) && s.Window.Start.Before(rng.End) {
			out = append(out, domain.RehydrateAppointment(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Window().Start.Equal(out[j].Window().Start) {
			return out[i].Window().Start.Before(out[j].Window().Start)
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	return out, nil
}

// MemoryConflictRepository is an in-memory domain.ConflictRepository.
type MemoryConflictRepository struct {
	mu        sync.RWMutex
	conflicts map[uuid.UUID]domain.ConflictSnapshot
}

// NewMemoryConflictRepository creates an empty repository.
func NewMemoryConflictRepository() *MemoryConflictRepository {
	return &MemoryConflictRepository{conflicts: make(map[uuid.UUID]domain.ConflictSnapshot)}
}

func (r *MemoryConflictRepository) Save(_ context.Context, c *domain.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts[c.ID()] = c.Snapshot()
	return nil
}

func (r *MemoryConflictRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Conflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.conflicts[id]
	if !ok {
		return nil, domain.ErrConflictNotFound
	}
	return domain.RehydrateConflict(s), nil
}

func (r *MemoryConflictRepository) FindByAppointment(_ context.Context, appointmentID uuid.UUID) ([]*domain.Conflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Conflict
	for _, s := range r.conflicts {
		c := domain.RehydrateConflict(s)
		if c.PrimaryAppointment() == appointmentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

// MemoryCoordinationRepository is an in-memory domain.CoordinationRepository.
type MemoryCoordinationRepository struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*domain.CoordinationGroup
}

// NewMemoryCoordinationRepository creates an empty repository.
func NewMemoryCoordinationRepository() *MemoryCoordinationRepository {
	return &MemoryCoordinationRepository{groups: make(map[uuid.UUID]*domain.CoordinationGroup)}
}

func (r *MemoryCoordinationRepository) Save(_ context.Context, g *domain.CoordinationGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.AppointmentID()] = copyGroup(g)
	return nil
}

func (r *MemoryCoordinationRepository) FindByAppointment(_ context.Context, appointmentID uuid.UUID) (*domain.CoordinationGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[appointmentID]
	if !ok {
		return nil, domain.ErrCoordinationNotFound
	}
	return copyGroup(g), nil
}

func (r *MemoryCoordinationRepository) FindExpiring(_ context.Context, now time.Time) ([]*domain.CoordinationGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.CoordinationGroup
	for _, g := range r.groups {
		if g.IsOpen() && !g.Deadline().After(now) {
			out = append(out, copyGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline().Before(out[j].Deadline()) })
	return out, nil
}

func copyGroup(g *domain.CoordinationGroup) *domain.CoordinationGroup {
	return domain.RehydrateCoordinationGroup(g.ID(), g.AppointmentID(), g.Lead(), g.Members(), g.MinQuorum(),
		g.Deadline(), g.Status(), g.CreatedAt(), g.UpdatedAt())
}

// MemoryAuditRepository is an in-memory domain.AuditRepository.
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewMemoryAuditRepository creates an empty repository.
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Append(_ context.Context, entries ...domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *MemoryAuditRepository) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryAuditRepository) ListSince(_ context.Context, since time.Time, limit int) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.RecordedAt.Before(since) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
