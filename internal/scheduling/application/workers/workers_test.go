package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/persistence"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 12, 6, 0, 0, 0, time.UTC)

type mockExpirer struct{ mock.Mock }

func (m *mockExpirer) Handle(ctx context.Context, cmd commands.ExpireCoordinationCommand) (*commands.ExpireCoordinationResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commands.ExpireCoordinationResult), args.Error(1)
}

type mockRechecker struct{ mock.Mock }

func (m *mockRechecker) Handle(ctx context.Context, cmd commands.RecheckWeatherCommand) (*commands.RecheckWeatherResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commands.RecheckWeatherResult), args.Error(1)
}

type mockImporter struct{ mock.Mock }

func (m *mockImporter) Handle(ctx context.Context, cmd commands.ImportAvailabilityCommand) (*commands.ImportAvailabilityResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commands.ImportAvailabilityResult), args.Error(1)
}

func TestQuorumSweeper_Sweep(t *testing.T) {
	expirer := new(mockExpirer)
	metrics := observability.NewInMemoryMetrics()
	w := NewQuorumSweeper(expirer, time.Minute, nil, metrics)
	w.now = func() time.Time { return now }

	expirer.On("Handle", mock.Anything, commands.ExpireCoordinationCommand{Now: now}).
		Return(&commands.ExpireCoordinationResult{Expired: []commands.ExpiredGroup{
			{AppointmentID: uuid.New(), ConflictID: uuid.New(), Options: 2},
			{AppointmentID: uuid.New(), ConflictID: uuid.New()},
		}}, nil).Once()
	expirer.On("Handle", mock.Anything, mock.Anything).Return(nil, errors.New("database locked")).Once()

	w.sweep(context.Background())
	w.sweep(context.Background())

	assert.Equal(t, int64(2), metrics.GetCounter(observability.MetricQuorumTimeouts))
	expirer.AssertExpectations(t)
}

func TestQuorumSweeper_RunAndStop(t *testing.T) {
	var calls atomic.Int32
	expirer := new(mockExpirer)
	expirer.On("Handle", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(&commands.ExpireCoordinationResult{}, nil)
	w := NewQuorumSweeper(expirer, 10*time.Millisecond, nil, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.IsRunning())
	w.Stop()
	w.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.False(t, w.IsRunning())
}

func bookedAppointment(t *testing.T, kind domain.AppointmentKind, start time.Time) *domain.Appointment {
	t.Helper()
	req := domain.SchedulingRequest{
		Kind:        kind,
		SearchRange: domain.TimeRange{Start: start, End: start.Add(8 * time.Hour)},
		Location:    domain.Location{Latitude: 39.7392, Longitude: -104.9903},
	}
	_, err := req.Normalize(domain.DefaultCatalog())
	require.NoError(t, err)
	tech := uuid.New()
	appt, err := domain.NewAppointment(req, domain.CandidateSlot{
		ParticipantID: tech,
		SlotID:        uuid.New(),
		Window:        domain.WindowFrom(start, time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, appt.Confirm(domain.SkippedWeatherCheck(now), []uuid.UUID{tech}))
	return appt
}

func TestWeatherRecheckWorker_Cycle(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewMemoryAppointmentRepository()

	soon := bookedAppointment(t, domain.KindInstallation, now.Add(3*time.Hour))
	indoor := bookedAppointment(t, domain.KindRepair, now.Add(4*time.Hour))
	later := bookedAppointment(t, domain.KindInstallation, now.Add(72*time.Hour))
	for _, a := range []*domain.Appointment{soon, indoor, later} {
		require.NoError(t, repo.Save(ctx, a))
	}

	recheck := new(mockRechecker)
	recheck.On("Handle", mock.Anything, commands.RecheckWeatherCommand{AppointmentID: soon.ID()}).
		Return(&commands.RecheckWeatherResult{Changed: true}, nil).Once()

	w := NewWeatherRecheckWorker(repo, recheck, WeatherRecheckConfig{}, nil)
	w.now = func() time.Time { return now }
	w.cycle(ctx)

	recheck.AssertExpectations(t)
	recheck.AssertNumberOfCalls(t, "Handle", 1)
}

func TestAvailabilityImportWorker_BacksOffAfterRepeatedFailures(t *testing.T) {
	importer := new(mockImporter)
	importer.On("Handle", mock.Anything, mock.MatchedBy(func(cmd commands.ImportAvailabilityCommand) bool {
		return cmd.Range.Start.Equal(domain.DayOf(now)) && cmd.Range.Duration() == 2*24*time.Hour
	})).Return(nil, errors.New("401 unauthorized"))

	w := NewAvailabilityImportWorker(importer, AvailabilityImportConfig{Interval: time.Minute, LookAheadDays: 2, MaxErrors: 2}, nil)
	w.now = func() time.Time { return now }
	ctx := context.Background()

	w.cycle(ctx) // failure 1
	w.cycle(ctx) // failure 2, skip next tick
	w.cycle(ctx) // skipped
	w.cycle(ctx) // failure 3, skip two ticks

	importer.AssertNumberOfCalls(t, "Handle", 3)
	assert.Equal(t, 2, w.skipTicks)
}

func TestAvailabilityImportWorker_NoImporter(t *testing.T) {
	w := NewAvailabilityImportWorker(nil, AvailabilityImportConfig{}, nil)

	assert.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 15*time.Minute, w.config.Interval)
}
