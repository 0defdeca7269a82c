package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/persistence"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	day  = time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)
	home = domain.Location{Latitude: 39.7392, Longitude: -104.9903, Address: "1 Depot Rd"}
	site = domain.Location{Latitude: 39.7500, Longitude: -104.9990, Address: "22 Elm St"}

	fair  = domain.Conditions{TemperatureF: 65, WindSpeedMPH: 5, Source: "test"}
	storm = domain.Conditions{TemperatureF: 50, WindSpeedMPH: 45, PrecipitationInH: 0.4, Source: "test"}

	errProviderDown = errors.New("provider down")
)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func window(fromH, toH int) domain.TimeRange {
	return domain.TimeRange{Start: at(fromH, 0), End: at(toH, 0)}
}

type stubForecast struct {
	mu         sync.Mutex
	conditions domain.Conditions
	err        error
}

func (f *stubForecast) Forecast(_ context.Context, _ domain.Location, ts time.Time) (domain.Conditions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Conditions{}, f.err
	}
	c := f.conditions
	c.ValidAt = ts
	return c, nil
}

func (f *stubForecast) set(c domain.Conditions, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conditions, f.err = c, err
}

type stubRouting struct{ minutes int }

func (r stubRouting) TravelTime(context.Context, domain.Location, domain.Location, time.Time) (time.Duration, error) {
	return time.Duration(r.minutes) * time.Minute, nil
}

// racingStore lets another appointment grab the requested window just before
// the first n reservations, as a concurrent writer would.
type racingStore struct {
	*persistence.MemoryAvailabilityStore
	mu    sync.Mutex
	races int
}

func (s *racingStore) Reserve(ctx context.Context, req domain.ReserveRequest, rules domain.ReservationRules) (*domain.Reservation, error) {
	s.mu.Lock()
	race := s.races > 0
	if race {
		s.races--
	}
	s.mu.Unlock()
	if race {
		rival := req
		rival.AppointmentID = uuid.New()
		if _, err := s.MemoryAvailabilityStore.Reserve(ctx, rival, rules); err != nil {
			return nil, err
		}
	}
	return s.MemoryAvailabilityStore.Reserve(ctx, req, rules)
}

type fixture struct {
	participants *persistence.MemoryParticipantRepository
	store        *racingStore
	appointments *persistence.MemoryAppointmentRepository
	conflicts    *persistence.MemoryConflictRepository
	coordination *persistence.MemoryCoordinationRepository
	audit        *persistence.MemoryAuditRepository
	outbox       *outbox.InMemoryRepository
	forecast     *stubForecast
	metrics      *observability.InMemoryMetrics
	registry     *services.Registry
	weather      *services.WeatherChecker
	planner      *services.Planner
	booker       *Booker
}

func newFixture(t *testing.T, coordination services.CoordinatorConfig) *fixture {
	t.Helper()
	f := &fixture{
		participants: persistence.NewMemoryParticipantRepository(),
		store:        &racingStore{MemoryAvailabilityStore: persistence.NewMemoryAvailabilityStore()},
		appointments: persistence.NewMemoryAppointmentRepository(),
		conflicts:    persistence.NewMemoryConflictRepository(),
		coordination: persistence.NewMemoryCoordinationRepository(),
		audit:        persistence.NewMemoryAuditRepository(),
		outbox:       outbox.NewInMemoryRepository(),
		forecast:     &stubForecast{conditions: fair},
		metrics:      observability.NewInMemoryMetrics(),
	}
	f.registry = services.NewRegistry(f.participants, f.store, services.DefaultRegistryConfig(), nil)
	f.weather = services.NewWeatherChecker(f.forecast, nil, services.DefaultWeatherConfig(), nil, nil)
	travel := services.NewTravelEstimator(stubRouting{minutes: 20}, services.DefaultTravelConfig(), nil, nil)
	enricher := services.NewEnricher(f.weather, travel, services.DefaultEnrichmentConfig(), nil)
	f.planner = services.NewPlanner(domain.DefaultCatalog(), f.registry, enricher, services.NewScoringEngine(services.DefaultWeights()), nil, nil)

	detector := services.NewConflictDetector(f.registry, f.weather, travel, nil, nil)
	f.booker = NewBooker(BookerDeps{
		Appointments: f.appointments,
		Conflicts:    f.conflicts,
		Coordination: f.coordination,
		Audit:        f.audit,
		Outbox:       f.outbox,
		UnitOfWork:   persistence.NoopUnitOfWork{},
		Planner:      f.planner,
		Detector:     detector,
		Advisor:      services.NewResolutionAdvisor(f.planner, nil),
		Coordinator:  services.NewCoordinator(f.registry, detector, coordination, nil, nil),
		Metrics:      f.metrics,
	})
	return f
}

func (f *fixture) addParticipant(t *testing.T, name string, skills ...string) *domain.Participant {
	t.Helper()
	p, err := domain.NewParticipant(name, skills, home, 0, 0)
	require.NoError(t, err)
	require.NoError(t, f.participants.Save(context.Background(), p))
	return p
}

func (f *fixture) addSlot(t *testing.T, p *domain.Participant, w domain.TimeRange, capacity int) *domain.AvailabilitySlot {
	t.Helper()
	s, err := domain.NewAvailabilitySlot(p.ID(), w, capacity, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.SaveSlot(context.Background(), s))
	return s
}

func (f *fixture) occupy(t *testing.T, p *domain.Participant, slot *domain.AvailabilitySlot, w domain.TimeRange) {
	t.Helper()
	_, err := f.registry.Reserve(context.Background(), domain.ReserveRequest{
		ParticipantID: p.ID(),
		SlotID:        slot.ID(),
		AppointmentID: uuid.New(),
		Window:        w,
		Location:      site,
	})
	require.NoError(t, err)
}

func (f *fixture) best(t *testing.T, req domain.SchedulingRequest) domain.CandidateSlot {
	t.Helper()
	plan, err := f.planner.FindSlots(context.Background(), req, services.SearchOptions{})
	require.NoError(t, err)
	best, ok := plan.Best()
	require.True(t, ok)
	return best
}

func (f *fixture) routingKeys(t *testing.T) []string {
	t.Helper()
	msgs, err := f.outbox.GetUnpublished(context.Background(), 1000)
	require.NoError(t, err)
	keys := make([]string, len(msgs))
	for i, m := range msgs {
		keys[i] = m.RoutingKey
	}
	return keys
}

func (f *fixture) auditActions(t *testing.T, appointmentID uuid.UUID) []domain.AuditAction {
	t.Helper()
	entries, err := f.audit.ListByAppointment(context.Background(), appointmentID)
	require.NoError(t, err)
	actions := make([]domain.AuditAction, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

func repairRequest() domain.SchedulingRequest {
	return domain.SchedulingRequest{
		Kind:        domain.KindRepair,
		SearchRange: window(8, 12),
		Location:    site,
		Duration:    time.Hour,
	}
}

func inspectionRequest() domain.SchedulingRequest {
	return domain.SchedulingRequest{
		Kind:        domain.KindInspection,
		SearchRange: window(8, 12),
		Location:    site,
	}
}
