package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	day  = time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)
	home = domain.Location{Latitude: 39.7392, Longitude: -104.9903, Address: "1 Depot Rd"}
	site = domain.Location{Latitude: 39.7500, Longitude: -104.9990, Address: "22 Elm St"}

	fair  = domain.Conditions{TemperatureF: 65, WindSpeedMPH: 5, PrecipitationInH: 0, Source: "test"}
	storm = domain.Conditions{TemperatureF: 50, WindSpeedMPH: 45, PrecipitationInH: 0.4, Source: "test"}
)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func window(fromH, toH int) domain.TimeRange {
	return domain.TimeRange{Start: at(fromH, 0), End: at(toH, 0)}
}

// fakeForecast returns fixed conditions, or per-day overrides.
type fakeForecast struct {
	mu         sync.Mutex
	conditions domain.Conditions
	byDay      map[time.Time]domain.Conditions
	err        error
	calls      int
}

func (f *fakeForecast) Forecast(_ context.Context, _ domain.Location, ts time.Time) (domain.Conditions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Conditions{}, f.err
	}
	c := f.conditions
	if override, ok := f.byDay[domain.DayOf(ts)]; ok {
		c = override
	}
	c.ValidAt = ts
	return c, nil
}

func (f *fakeForecast) set(c domain.Conditions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conditions = c
}

func (f *fakeForecast) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeRouting returns a fixed drive time.
type fakeRouting struct {
	minutes int
	err     error
}

func (f *fakeRouting) TravelTime(context.Context, domain.Location, domain.Location, time.Time) (time.Duration, error) {
	if f.err != nil {
		return 0, f.err
	}
	return time.Duration(f.minutes) * time.Minute, nil
}

type harness struct {
	participants *persistence.MemoryParticipantRepository
	store        *persistence.MemoryAvailabilityStore
	forecast     *fakeForecast
	routing      *fakeRouting
	registry     *Registry
	weather      *WeatherChecker
	travel       *TravelEstimator
	planner      *Planner
	detector     *ConflictDetector
	advisor      *ResolutionAdvisor
	coordinator  *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		participants: persistence.NewMemoryParticipantRepository(),
		store:        persistence.NewMemoryAvailabilityStore(),
		forecast:     &fakeForecast{conditions: fair},
		routing:      &fakeRouting{minutes: 20},
	}
	h.registry = NewRegistry(h.participants, h.store, DefaultRegistryConfig(), nil)
	h.weather = NewWeatherChecker(h.forecast, nil, DefaultWeatherConfig(), nil, nil)
	h.travel = NewTravelEstimator(h.routing, DefaultTravelConfig(), nil, nil)
	enricher := NewEnricher(h.weather, h.travel, DefaultEnrichmentConfig(), nil)
	scoring := NewScoringEngine(DefaultWeights())
	h.planner = NewPlanner(domain.DefaultCatalog(), h.registry, enricher, scoring, nil, nil)
	h.detector = NewConflictDetector(h.registry, h.weather, h.travel, nil, nil)
	h.advisor = NewResolutionAdvisor(h.planner, nil)
	h.coordinator = NewCoordinator(h.registry, h.detector, DefaultCoordinatorConfig(), nil, nil)
	return h
}

func (h *harness) addParticipant(t *testing.T, name string, dailyCap int, skills ...string) *domain.Participant {
	t.Helper()
	p, err := domain.NewParticipant(name, skills, home, dailyCap, 0)
	require.NoError(t, err)
	require.NoError(t, h.participants.Save(context.Background(), p))
	return p
}

func (h *harness) addSlot(t *testing.T, p *domain.Participant, w domain.TimeRange, capacity int) *domain.AvailabilitySlot {
	t.Helper()
	s, err := domain.NewAvailabilitySlot(p.ID(), w, capacity, nil)
	require.NoError(t, err)
	require.NoError(t, h.store.SaveSlot(context.Background(), s))
	return s
}

func (h *harness) reserve(t *testing.T, p *domain.Participant, slot *domain.AvailabilitySlot, w domain.TimeRange) *domain.Reservation {
	t.Helper()
	res, err := h.registry.Reserve(context.Background(), domain.ReserveRequest{
		ParticipantID: p.ID(),
		SlotID:        slot.ID(),
		AppointmentID: uuid.New(),
		Window:        w,
		Location:      site,
	})
	require.NoError(t, err)
	return res
}

func repairRequest(search domain.TimeRange) domain.SchedulingRequest {
	return domain.SchedulingRequest{
		Kind:        domain.KindRepair,
		Priority:    domain.PriorityNormal,
		SearchRange: search,
		Location:    site,
		Duration:    time.Hour,
	}
}

func inspectionRequest(search domain.TimeRange) domain.SchedulingRequest {
	return domain.SchedulingRequest{
		Kind:        domain.KindInspection,
		SearchRange: search,
		Location:    site,
	}
}

var errProviderDown = errors.New("provider down")
