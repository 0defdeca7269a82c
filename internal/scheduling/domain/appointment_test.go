package domain_test

import (
	"testing"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var site = domain.Location{Latitude: 39.7392, Longitude: -104.9903, Address: "1 Main St"}

func normalizedRequest(t *testing.T, kind domain.AppointmentKind, mutate ...func(*domain.SchedulingRequest)) domain.SchedulingRequest {
	t.Helper()
	req := domain.SchedulingRequest{
		Kind:             kind,
		PreferredWindows: []domain.TimeRange{rng(9, 11)},
		Location:         site,
	}
	for _, m := range mutate {
		m(&req)
	}
	_, err := req.Normalize(domain.DefaultCatalog())
	require.NoError(t, err)
	return req
}

func candidateFor(participantID uuid.UUID, window domain.TimeRange) domain.CandidateSlot {
	return domain.CandidateSlot{ParticipantID: participantID, SlotID: uuid.New(), Window: window, Score: 80}
}

func unsuitable() domain.WeatherCheck {
	return domain.WeatherCheck{Suitable: false, Reasons: []string{"wind 35 mph exceeds limit 25 mph"}, CheckedAt: at(8, 0)}
}

func TestNewAppointment_PoolRequest(t *testing.T) {
	req := normalizedRequest(t, domain.KindRepair)
	pid := uuid.New()

	appt, err := domain.NewAppointment(req, candidateFor(pid, rng(9, 10)))

	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposed, appt.Status())
	assert.Equal(t, pid, appt.Lead())
	assert.Equal(t, []uuid.UUID{pid}, appt.Participants())
	assert.Equal(t, 1, appt.MinQuorum())
	assert.False(t, appt.IsMultiParticipant())
	assert.False(t, appt.WeatherDependent())
}

func TestNewAppointment_WrongLead(t *testing.T) {
	lead, other := uuid.New(), uuid.New()
	req := normalizedRequest(t, domain.KindInstallation, func(r *domain.SchedulingRequest) {
		r.PreferredWindows = []domain.TimeRange{rng(8, 14)}
		r.RequiredParticipants = []uuid.UUID{lead, other}
	})

	_, err := domain.NewAppointment(req, candidateFor(other, rng(8, 12)))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAppointment_Confirm_WeatherInvariant(t *testing.T) {
	pid := uuid.New()

	t.Run("unsuitable without backup date", func(t *testing.T) {
		appt, err := domain.NewAppointment(normalizedRequest(t, domain.KindInspection), candidateFor(pid, rng(9, 10)))
		require.NoError(t, err)

		err = appt.Confirm(unsuitable(), []uuid.UUID{pid})

		assert.ErrorIs(t, err, domain.ErrWeatherUnsatisfied)
		assert.Equal(t, domain.StatusProposed, appt.Status())
		assert.Empty(t, appt.DomainEvents())
	})

	t.Run("unsuitable with backup date adds a note", func(t *testing.T) {
		backup := monday.AddDate(0, 0, 2)
		req := normalizedRequest(t, domain.KindInspection, func(r *domain.SchedulingRequest) { r.BackupDate = &backup })
		appt, err := domain.NewAppointment(req, candidateFor(pid, rng(9, 10)))
		require.NoError(t, err)

		require.NoError(t, appt.Confirm(unsuitable(), []uuid.UUID{pid}))

		assert.Equal(t, domain.StatusConfirmed, appt.Status())
		require.Len(t, appt.Notes(), 1)
		assert.Contains(t, appt.Notes()[0], "backup date 2026-03-04")
		require.Len(t, appt.DomainEvents(), 1)
		assert.Equal(t, domain.RoutingKeyAppointmentConfirmed, appt.DomainEvents()[0].RoutingKey())
	})

	t.Run("degraded pass confirms", func(t *testing.T) {
		appt, err := domain.NewAppointment(normalizedRequest(t, domain.KindInspection), candidateFor(pid, rng(9, 10)))
		require.NoError(t, err)

		check := domain.WeatherCheck{Suitable: true, Degraded: true, CheckedAt: at(8, 0)}
		require.NoError(t, appt.Confirm(check, []uuid.UUID{pid}))
		assert.Equal(t, "degraded", appt.LastWeatherCheck().Outcome())
	})
}

func TestAppointment_Confirm_Quorum(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	req := normalizedRequest(t, domain.KindRepair, func(r *domain.SchedulingRequest) {
		r.RequiredParticipants = []uuid.UUID{a, b}
		r.OptionalParticipants = []uuid.UUID{c}
	})
	require.Equal(t, 2, req.MinQuorum)

	appt, err := domain.NewAppointment(req, candidateFor(a, rng(9, 10)))
	require.NoError(t, err)

	err = appt.Confirm(domain.SkippedWeatherCheck(at(8, 0)), []uuid.UUID{a})
	assert.ErrorIs(t, err, domain.ErrQuorumNotMet)

	err = appt.Confirm(domain.SkippedWeatherCheck(at(8, 0)), []uuid.UUID{b, c})
	assert.ErrorIs(t, err, domain.ErrQuorumNotMet, "lead must be included")

	require.NoError(t, appt.Confirm(domain.SkippedWeatherCheck(at(8, 0)), []uuid.UUID{a, c}))
	assert.Equal(t, domain.StatusConfirmed, appt.Status())
}

func TestAppointment_Transitions(t *testing.T) {
	pid := uuid.New()
	appt, err := domain.NewAppointment(normalizedRequest(t, domain.KindInspection), candidateFor(pid, rng(9, 10)))
	require.NoError(t, err)

	assert.Error(t, appt.PlaceOnWeatherHold(unsuitable()), "proposed cannot go on hold")

	require.NoError(t, appt.Confirm(domain.WeatherCheck{Suitable: true, CheckedAt: at(8, 0)}, []uuid.UUID{pid}))
	require.NoError(t, appt.PlaceOnWeatherHold(unsuitable()))
	assert.Equal(t, domain.StatusWeatherHold, appt.Status())

	assert.ErrorIs(t, appt.ReleaseWeatherHold(unsuitable()), domain.ErrWeatherUnsatisfied)
	require.NoError(t, appt.ReleaseWeatherHold(domain.WeatherCheck{Suitable: true, CheckedAt: at(9, 0)}))
	assert.Equal(t, domain.StatusConfirmed, appt.Status())

	next := uuid.New()
	require.NoError(t, appt.MarkRescheduled(next))
	assert.Equal(t, domain.StatusRescheduled, appt.Status())
	assert.Equal(t, next, *appt.RescheduledTo())
	assert.True(t, appt.Status().IsTerminal())

	err = appt.Cancel("too late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestAppointment_CancelEmitsSlotFreed(t *testing.T) {
	pid := uuid.New()
	appt, err := domain.NewAppointment(normalizedRequest(t, domain.KindRepair), candidateFor(pid, rng(9, 10)))
	require.NoError(t, err)
	require.NoError(t, appt.Confirm(domain.SkippedWeatherCheck(at(8, 0)), []uuid.UUID{pid}))
	appt.ClearDomainEvents()

	require.NoError(t, appt.Cancel("customer request"))
	appt.RecordSlotsFreed([]domain.Reservation{existing(pid, uuid.New(), rng(9, 10))})

	events := appt.DomainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, domain.RoutingKeyAppointmentCancelled, events[0].RoutingKey())
	assert.Equal(t, domain.RoutingKeySlotFreed, events[1].RoutingKey())
	assert.Equal(t, "customer request", appt.CancelReason())
}

func TestAppointment_SnapshotRoundTrip(t *testing.T) {
	pid := uuid.New()
	appt, err := domain.NewAppointment(normalizedRequest(t, domain.KindSurvey), candidateFor(pid, rng(9, 11)))
	require.NoError(t, err)
	appt.AddNote("gate code 1234")

	restored := domain.RehydrateAppointment(appt.Snapshot())

	assert.Equal(t, appt.ID(), restored.ID())
	assert.Equal(t, appt.Window(), restored.Window())
	assert.Equal(t, appt.Notes(), restored.Notes())
	assert.True(t, restored.WeatherDependent())
	assert.Empty(t, restored.DomainEvents())
}

func TestAppointment_Retarget(t *testing.T) {
	pid, other := uuid.New(), uuid.New()
	appt, err := domain.NewAppointment(normalizedRequest(t, domain.KindRepair), candidateFor(pid, rng(9, 10)))
	require.NoError(t, err)

	require.NoError(t, appt.Retarget(candidateFor(other, rng(10, 11))))
	assert.Equal(t, other, appt.Lead())
	assert.True(t, appt.Window().Equal(rng(10, 11)))

	require.NoError(t, appt.Confirm(domain.SkippedWeatherCheck(at(8, 0)), []uuid.UUID{other}))
	assert.ErrorIs(t, appt.Retarget(candidateFor(pid, rng(9, 10))), domain.ErrInvalidTransition)
}
