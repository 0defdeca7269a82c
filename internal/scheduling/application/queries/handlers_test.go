package queries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/persistence"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	day  = time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)
	home = domain.Location{Latitude: 39.7392, Longitude: -104.9903}
)

func window(fromH, toH int) domain.TimeRange {
	return domain.TimeRange{Start: day.Add(time.Duration(fromH) * time.Hour), End: day.Add(time.Duration(toH) * time.Hour)}
}

// mockAuditRepo is a mock implementation of domain.AuditRepository.
type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Append(ctx context.Context, entries ...domain.AuditEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *mockAuditRepo) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, appointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

func (m *mockAuditRepo) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

// mockParticipantRepo is a mock implementation of domain.ParticipantRepository.
type mockParticipantRepo struct {
	mock.Mock
}

func (m *mockParticipantRepo) Save(ctx context.Context, p *domain.Participant) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockParticipantRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Participant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Participant), args.Error(1)
}

func (m *mockParticipantRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Participant, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Participant), args.Error(1)
}

func (m *mockParticipantRepo) FindActive(ctx context.Context, skills []string) ([]*domain.Participant, error) {
	args := m.Called(ctx, skills)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Participant), args.Error(1)
}

func TestListAuditHandler_Handle(t *testing.T) {
	apptID := uuid.New()
	entries := []domain.AuditEntry{
		domain.NewAuditEntry(apptID, domain.AuditConflictDetected, false, "time_overlap"),
		domain.NewAuditEntry(apptID, domain.AuditCommitted, true, ""),
		domain.NewAuditEntry(apptID, domain.AuditCancelled, true, "customer called"),
	}

	t.Run("by appointment keeps the latest entries", func(t *testing.T) {
		repo := new(mockAuditRepo)
		repo.On("ListByAppointment", mock.Anything, apptID).Return(entries, nil)

		result, err := NewListAuditHandler(repo).Handle(context.Background(), ListAuditQuery{AppointmentID: apptID, Limit: 2})

		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, domain.AuditCommitted, result[0].Action)
		assert.Equal(t, domain.AuditCancelled, result[1].Action)
		repo.AssertExpectations(t)
	})

	t.Run("since defaults to the last day", func(t *testing.T) {
		repo := new(mockAuditRepo)
		repo.On("ListSince", mock.Anything, mock.MatchedBy(func(since time.Time) bool {
			return time.Since(since) > 23*time.Hour && time.Since(since) < 25*time.Hour
		}), 50).Return(entries, nil)

		result, err := NewListAuditHandler(repo).Handle(context.Background(), ListAuditQuery{Limit: 50})

		require.NoError(t, err)
		assert.Len(t, result, 3)
		repo.AssertExpectations(t)
	})

	t.Run("propagates repository errors", func(t *testing.T) {
		repo := new(mockAuditRepo)
		repo.On("ListByAppointment", mock.Anything, apptID).Return(nil, errors.New("database error"))

		_, err := NewListAuditHandler(repo).Handle(context.Background(), ListAuditQuery{AppointmentID: apptID})

		assert.Error(t, err)
	})
}

func TestListParticipantsHandler_Handle(t *testing.T) {
	gale, err := domain.NewParticipant("Gale", []string{"repair"}, home, 0, 0)
	require.NoError(t, err)

	repo := new(mockParticipantRepo)
	repo.On("FindActive", mock.Anything, []string{"repair"}).Return([]*domain.Participant{gale}, nil)

	result, err := NewListParticipantsHandler(repo).Handle(context.Background(), ListParticipantsQuery{Skills: []string{"repair"}})

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "Gale", result[0].Name())
	repo.AssertExpectations(t)
}

func TestFindSlotsHandler_Handle(t *testing.T) {
	participants := persistence.NewMemoryParticipantRepository()
	store := persistence.NewMemoryAvailabilityStore()
	registry := services.NewRegistry(participants, store, services.DefaultRegistryConfig(), nil)
	weather := services.NewWeatherChecker(nil, nil, services.DefaultWeatherConfig(), nil, nil)
	travel := services.NewTravelEstimator(nil, services.DefaultTravelConfig(), nil, nil)
	planner := services.NewPlanner(domain.DefaultCatalog(), registry,
		services.NewEnricher(weather, travel, services.DefaultEnrichmentConfig(), nil),
		services.NewScoringEngine(services.DefaultWeights()), nil, nil)
	ctx := context.Background()

	gale, err := domain.NewParticipant("Gale", []string{"repair"}, home, 0, 0)
	require.NoError(t, err)
	require.NoError(t, participants.Save(ctx, gale))
	slot, err := domain.NewAvailabilitySlot(gale.ID(), window(8, 12), 2, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveSlot(ctx, slot))

	req := domain.SchedulingRequest{Kind: domain.KindRepair, SearchRange: window(8, 12), Location: home, Duration: time.Hour}

	t.Run("ranks, truncates and records the search", func(t *testing.T) {
		audit := new(mockAuditRepo)
		audit.On("Append", mock.Anything, mock.MatchedBy(func(entries []domain.AuditEntry) bool {
			return len(entries) == 1 && entries[0].Action == domain.AuditFound && entries[0].ParticipantID == gale.ID()
		})).Return(nil)

		result, err := NewFindSlotsHandler(planner, audit, nil).Handle(ctx, FindSlotsQuery{Request: req, Limit: 2})

		require.NoError(t, err)
		assert.Len(t, result.Candidates, 2)
		assert.Greater(t, result.Total, 2)
		assert.Equal(t, domain.KindRepair, result.Type.Kind)
		assert.GreaterOrEqual(t, result.Candidates[0].Score, result.Candidates[1].Score)
		audit.AssertExpectations(t)
	})

	t.Run("reserves nothing", func(t *testing.T) {
		_, err := NewFindSlotsHandler(planner, nil, nil).Handle(ctx, FindSlotsQuery{Request: req})
		require.NoError(t, err)

		held, err := store.ReservationsInRange(ctx, []uuid.UUID{gale.ID()}, window(0, 24))
		require.NoError(t, err)
		assert.Empty(t, held)
	})

	t.Run("no availability names the constraint", func(t *testing.T) {
		inspection := req
		inspection.Kind = domain.KindInspection
		inspection.Duration = 0

		_, err := NewFindSlotsHandler(planner, nil, nil).Handle(ctx, FindSlotsQuery{Request: inspection})

		var noAvail *domain.NoAvailabilityError
		require.ErrorAs(t, err, &noAvail)
		assert.Equal(t, domain.ConstraintSkills, noAvail.Constraint)
	})

	t.Run("times each search", func(t *testing.T) {
		metrics := observability.NewInMemoryMetrics()
		handler := NewFindSlotsHandler(planner, nil, nil).WithMetrics(metrics)

		_, err := handler.Handle(ctx, FindSlotsQuery{Request: req})
		require.NoError(t, err)
		inspection := req
		inspection.Kind = domain.KindInspection
		inspection.Duration = 0
		_, err = handler.Handle(ctx, FindSlotsQuery{Request: inspection})
		require.Error(t, err)

		op := observability.T("operation", "find_slots")
		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricOperationTotal, op, observability.T("outcome", observability.OutcomeOK)))
		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricOperationErrors, op))
	})
}

func TestGetAppointmentHandler_Handle(t *testing.T) {
	appointments := persistence.NewMemoryAppointmentRepository()
	handler := NewGetAppointmentHandler(appointments,
		persistence.NewMemoryCoordinationRepository(),
		persistence.NewMemoryConflictRepository(),
		persistence.NewMemoryAvailabilityStore())
	ctx := context.Background()

	t.Run("loads a single-participant appointment", func(t *testing.T) {
		req := domain.SchedulingRequest{Kind: domain.KindRepair, SearchRange: window(8, 12), Location: home}
		_, err := req.Normalize(domain.DefaultCatalog())
		require.NoError(t, err)
		appt, err := domain.NewAppointment(req, domain.CandidateSlot{ParticipantID: uuid.New(), SlotID: uuid.New(), Window: window(9, 10)})
		require.NoError(t, err)
		require.NoError(t, appointments.Save(ctx, appt))

		view, err := handler.Handle(ctx, GetAppointmentQuery{AppointmentID: appt.ID()})

		require.NoError(t, err)
		assert.Equal(t, appt.ID(), view.Appointment.ID())
		assert.Nil(t, view.Group)
		assert.Empty(t, view.Reservations)
		assert.Empty(t, view.PendingConflicts())
	})

	t.Run("unknown appointment", func(t *testing.T) {
		_, err := handler.Handle(ctx, GetAppointmentQuery{AppointmentID: uuid.New()})

		assert.ErrorIs(t, err, domain.ErrAppointmentNotFound)
	})
}
