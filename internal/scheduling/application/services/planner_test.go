package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanner_FindSlots_RanksBySpecialization(t *testing.T) {
	h := newHarness(t)
	generalist := h.addParticipant(t, "Gale", 0, "repair")
	electrician := h.addParticipant(t, "Ellis", 0, "repair", "electrical")
	h.addSlot(t, generalist, window(8, 12), 2)
	h.addSlot(t, electrician, window(8, 12), 2)

	result, err := h.planner.FindSlots(context.Background(), repairRequest(window(8, 12)), SearchOptions{})
	require.NoError(t, err)

	// 8:00 through 11:00 on a 30 minute grid, for both participants
	assert.Len(t, result.Candidates, 14)
	best, ok := result.Best()
	require.True(t, ok)
	assert.Equal(t, electrician.ID(), best.ParticipantID)
	assert.Equal(t, at(8, 0), best.Window.Start)
	assert.Equal(t, DefaultWeights().SpecializationPerSkill, best.Breakdown.Specialization)
	assert.True(t, best.TravelMeasured)
	assert.Equal(t, 20, best.TravelMinutes)
	assert.True(t, best.Weather.Skipped)

	for i := 1; i < len(result.Candidates); i++ {
		assert.GreaterOrEqual(t, result.Candidates[i-1].Score, result.Candidates[i].Score)
	}
}

func TestPlanner_FindSlots_PreferredWindowWins(t *testing.T) {
	h := newHarness(t)
	tech := h.addParticipant(t, "Gale", 0, "repair")
	h.addSlot(t, tech, window(8, 16), 4)

	req := repairRequest(window(8, 16))
	req.PreferredWindows = []domain.TimeRange{window(13, 15)}

	result, err := h.planner.FindSlots(context.Background(), req, SearchOptions{})
	require.NoError(t, err)

	best, ok := result.Best()
	require.True(t, ok)
	assert.Equal(t, at(13, 0), best.Window.Start)
	assert.Equal(t, DefaultWeights().PreferenceBonus, best.Breakdown.Preference)
}

func TestPlanner_FindSlots_RespectsBufferAroundReservations(t *testing.T) {
	h := newHarness(t)
	tech := h.addParticipant(t, "Gale", 0, "repair")
	slot := h.addSlot(t, tech, window(8, 12), 3)
	booked := h.reserve(t, tech, slot, window(9, 10))

	result, err := h.planner.FindSlots(context.Background(), repairRequest(window(8, 12)), SearchOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, result.Candidates)
	buffered := booked.Window.Expand(15*time.Minute, 15*time.Minute)
	for _, c := range result.Candidates {
		assert.False(t, c.Window.Overlaps(buffered), "candidate %s violates the buffer", c.Window)
	}
	best, _ := result.Best()
	assert.Equal(t, at(10, 30), best.Window.Start)
}

func TestPlanner_FindSlots_Exclusions(t *testing.T) {
	h := newHarness(t)
	tech := h.addParticipant(t, "Gale", 0, "repair")
	h.addSlot(t, tech, window(8, 10), 2)

	first, err := h.planner.FindSlots(context.Background(), repairRequest(window(8, 10)), SearchOptions{})
	require.NoError(t, err)
	best, _ := first.Best()

	second, err := h.planner.FindSlots(context.Background(), repairRequest(window(8, 10)), SearchOptions{
		Exclusions: []domain.Exclusion{best.Key()},
	})
	require.NoError(t, err)
	for _, c := range second.Candidates {
		assert.False(t, c.Window.Overlaps(best.Window))
	}
}

func TestPlanner_FindSlots_NoAvailabilityNamesConstraint(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, h *harness)
		constraint string
	}{
		{
			name:       "no participants",
			setup:      func(t *testing.T, h *harness) {},
			constraint: domain.ConstraintParticipants,
		},
		{
			name: "missing skills",
			setup: func(t *testing.T, h *harness) {
				p := h.addParticipant(t, "Sol", 0, "survey")
				h.addSlot(t, p, window(8, 12), 1)
			},
			constraint: domain.ConstraintSkills,
		},
		{
			name: "no slot",
			setup: func(t *testing.T, h *harness) {
				h.addParticipant(t, "Gale", 0, "repair")
			},
			constraint: domain.ConstraintOpenSlot,
		},
		{
			name: "daily cap",
			setup: func(t *testing.T, h *harness) {
				p := h.addParticipant(t, "Gale", 1, "repair")
				slot := h.addSlot(t, p, window(8, 17), 4)
				h.reserve(t, p, slot, window(8, 9))
			},
			constraint: domain.ConstraintDailyCap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(t, h)

			_, err := h.planner.FindSlots(context.Background(), repairRequest(window(8, 17)), SearchOptions{})

			var noAvail *domain.NoAvailabilityError
			require.True(t, errors.As(err, &noAvail), "got %v", err)
			assert.Equal(t, tt.constraint, noAvail.Constraint)
			assert.ErrorIs(t, err, domain.ErrNoAvailability)
		})
	}
}

func TestPlanner_FindSlots_InvalidRequest(t *testing.T) {
	h := newHarness(t)
	req := repairRequest(window(8, 12))
	req.Kind = "demolition"

	_, err := h.planner.FindSlots(context.Background(), req, SearchOptions{})

	var invalid *domain.ValidationError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "type", invalid.Field)
}

func TestPlanner_FindSlots_WeatherDependent(t *testing.T) {
	t.Run("one forecast per distinct hour", func(t *testing.T) {
		h := newHarness(t)
		inspector := h.addParticipant(t, "Ines", 0, "inspection")
		h.addSlot(t, inspector, window(8, 12), 4)

		result, err := h.planner.FindSlots(context.Background(), inspectionRequest(window(8, 12)), SearchOptions{})
		require.NoError(t, err)

		assert.Len(t, result.Candidates, 7)
		assert.Equal(t, 4, h.forecast.callCount())
		best, _ := result.Best()
		assert.True(t, best.Weather.Verified())
		assert.Equal(t, DefaultWeights().WeatherVerifiedBonus, best.Breakdown.Weather)
	})

	t.Run("unsuitable forecast is penalised, not filtered", func(t *testing.T) {
		h := newHarness(t)
		h.forecast.set(storm)
		inspector := h.addParticipant(t, "Ines", 0, "inspection")
		h.addSlot(t, inspector, window(8, 10), 4)

		result, err := h.planner.FindSlots(context.Background(), inspectionRequest(window(8, 10)), SearchOptions{})
		require.NoError(t, err)

		require.NotEmpty(t, result.Candidates)
		for _, c := range result.Candidates {
			assert.False(t, c.WeatherSuitable())
			assert.NotEmpty(t, c.Weather.Reasons)
			assert.Equal(t, -DefaultWeights().WeatherUnsuitablePenalty, c.Breakdown.Weather)
		}
	})

	t.Run("provider outage degrades to a pass", func(t *testing.T) {
		h := newHarness(t)
		h.forecast.err = errProviderDown
		inspector := h.addParticipant(t, "Ines", 0, "inspection")
		h.addSlot(t, inspector, window(8, 10), 4)

		result, err := h.planner.FindSlots(context.Background(), inspectionRequest(window(8, 10)), SearchOptions{})
		require.NoError(t, err)

		best, _ := result.Best()
		assert.True(t, best.Weather.Suitable)
		assert.True(t, best.Weather.Degraded)
		assert.Zero(t, best.Breakdown.Weather)
	})
}

func TestPlanner_FindSlots_Team(t *testing.T) {
	h := newHarness(t)
	lead := h.addParticipant(t, "Lee", 0, "installation")
	helper := h.addParticipant(t, "Hal", 0)
	busy := h.addParticipant(t, "Bea", 0)
	h.addSlot(t, lead, window(8, 17), 2)
	h.addSlot(t, helper, window(8, 17), 2)
	busySlot := h.addSlot(t, busy, window(8, 17), 2)
	h.reserve(t, busy, busySlot, window(8, 12))

	req := domain.SchedulingRequest{
		Kind:                 domain.KindInstallation,
		SearchRange:          window(8, 17),
		Location:             site,
		RequiredParticipants: []uuid.UUID{lead.ID(), helper.ID(), busy.ID()},
	}

	result, err := h.planner.FindSlots(context.Background(), req, SearchOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, result.Candidates)
	for _, c := range result.Candidates {
		assert.Equal(t, lead.ID(), c.ParticipantID)
		assert.Len(t, c.Team, 2, "window %s", c.Window)
		assert.Len(t, c.TeamSlots, 2)
		assert.False(t, c.Window.Start.Before(at(12, 15)))
	}

	t.Run("quorum allows partial teams", func(t *testing.T) {
		req := req
		req.MinQuorum = 2
		result, err := h.planner.FindSlots(context.Background(), req, SearchOptions{})
		require.NoError(t, err)

		best, _ := result.Best()
		assert.Equal(t, at(8, 0), best.Window.Start)
		assert.Equal(t, []uuid.UUID{helper.ID()}, best.Team)
	})
}

func TestPlanner_FindSlots_MultiDayKeepsLaterPreferredWindows(t *testing.T) {
	h := newHarness(t)
	tech := h.addParticipant(t, "Gale", 0, "repair")
	tuesday := func(hour int) time.Time { return at(hour, 0).AddDate(0, 0, 1) }
	h.addSlot(t, tech, window(8, 17), 2)
	h.addSlot(t, tech, domain.TimeRange{Start: tuesday(8), End: tuesday(17)}, 2)

	req := repairRequest(domain.TimeRange{Start: at(8, 0), End: tuesday(17)})
	req.PreferredWindows = []domain.TimeRange{
		window(8, 9),
		{Start: tuesday(14), End: tuesday(16)},
	}

	result, err := h.planner.FindSlots(context.Background(), req, SearchOptions{})
	require.NoError(t, err)

	starts := make(map[time.Time]domain.CandidateSlot, len(result.Candidates))
	latest := result.Candidates[0].Window.Start
	for _, c := range result.Candidates {
		starts[c.Window.Start] = c
		if c.Window.Start.After(latest) {
			latest = c.Window.Start
		}
	}
	for _, want := range []time.Time{at(8, 0), tuesday(14), tuesday(14).Add(30 * time.Minute), tuesday(15)} {
		c, ok := starts[want]
		require.True(t, ok, "missing preferred start %s", want)
		assert.Equal(t, DefaultWeights().PreferenceBonus, c.Breakdown.Preference)
	}
	assert.Equal(t, tuesday(16), latest)
	assert.LessOrEqual(t, len(result.Candidates), DefaultRegistryConfig().MaxOptionsPerParticipant)
}
