package services

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detectionInput(t *testing.T, h *harness, req domain.SchedulingRequest, c domain.CandidateSlot) DetectionInput {
	t.Helper()
	apptType, err := h.planner.Normalize(&req)
	require.NoError(t, err)
	return DetectionInput{Request: req, Profile: apptType.WeatherProfile, Candidate: c}
}

func TestConflictDetector_Detect(t *testing.T) {
	t.Run("clear candidate", func(t *testing.T) {
		h := newHarness(t)
		tech := h.addParticipant(t, "Gale", 0, "repair")
		h.addSlot(t, tech, window(8, 12), 2)
		plan, err := h.planner.FindSlots(context.Background(), repairRequest(window(8, 12)), SearchOptions{})
		require.NoError(t, err)
		best, _ := plan.Best()

		result, err := h.detector.Detect(context.Background(), detectionInput(t, h, plan.Request, best))

		require.NoError(t, err)
		assert.True(t, result.Clear())
		assert.True(t, result.Weather.Skipped)
		assert.True(t, result.Travel.Measured)
	})

	t.Run("window taken since planning", func(t *testing.T) {
		h := newHarness(t)
		tech := h.addParticipant(t, "Gale", 0, "repair")
		slot := h.addSlot(t, tech, window(8, 12), 2)
		plan, err := h.planner.FindSlots(context.Background(), repairRequest(window(8, 12)), SearchOptions{})
		require.NoError(t, err)
		best, _ := plan.Best()
		h.reserve(t, tech, slot, best.Window)

		result, err := h.detector.Detect(context.Background(), detectionInput(t, h, plan.Request, best))

		require.NoError(t, err)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, domain.ConflictTimeOverlap, result.Conflicts[0].Type())
		assert.Equal(t, domain.SeverityHard, result.Conflicts[0].Severity())
	})

	t.Run("own reservations are ignored", func(t *testing.T) {
		h := newHarness(t)
		tech := h.addParticipant(t, "Gale", 0, "repair")
		slot := h.addSlot(t, tech, window(8, 12), 2)
		res := h.reserve(t, tech, slot, window(9, 10))
		c := domain.CandidateSlot{ParticipantID: tech.ID(), SlotID: slot.ID(), Window: window(9, 10)}

		in := detectionInput(t, h, repairRequest(window(8, 12)), c)
		in.AppointmentID = res.AppointmentID
		result, err := h.detector.Detect(context.Background(), in)

		require.NoError(t, err)
		assert.True(t, result.Clear())
	})

	t.Run("tight travel gap is soft", func(t *testing.T) {
		h := newHarness(t)
		tech := h.addParticipant(t, "Gale", 0, "repair")
		slot := h.addSlot(t, tech, window(8, 12), 2)
		h.reserve(t, tech, slot, window(8, 9))
		c := domain.CandidateSlot{
			ParticipantID: tech.ID(),
			SlotID:        slot.ID(),
			Window:        domain.WindowFrom(at(9, 15), time.Hour),
		}

		result, err := h.detector.Detect(context.Background(), detectionInput(t, h, repairRequest(window(8, 12)), c))

		require.NoError(t, err)
		require.Len(t, result.Conflicts, 1)
		conflict := result.Conflicts[0]
		assert.Equal(t, domain.ConflictTravelInfeasible, conflict.Type())
		assert.Equal(t, domain.SeveritySoft, conflict.Severity())
		assert.Contains(t, conflict.Message(), "15 min gap")
		assert.Empty(t, domain.Blocking(result.Conflicts, true))
	})

	t.Run("team member booked elsewhere", func(t *testing.T) {
		h := newHarness(t)
		lead := h.addParticipant(t, "Lee", 0, "installation")
		helper := h.addParticipant(t, "Hal", 0)
		leadSlot := h.addSlot(t, lead, window(8, 17), 2)
		helperSlot := h.addSlot(t, helper, window(8, 17), 2)
		h.reserve(t, helper, helperSlot, window(10, 11))

		req := domain.SchedulingRequest{
			Kind:                 domain.KindInstallation,
			SearchRange:          window(8, 17),
			Location:             site,
			RequiredParticipants: []uuid.UUID{lead.ID(), helper.ID()},
		}
		c := domain.CandidateSlot{
			ParticipantID: lead.ID(),
			SlotID:        leadSlot.ID(),
			Team:          []uuid.UUID{helper.ID()},
			TeamSlots:     []uuid.UUID{helperSlot.ID()},
			Window:        window(8, 12),
		}

		result, err := h.detector.Detect(context.Background(), detectionInput(t, h, req, c))

		require.NoError(t, err)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, domain.ConflictTeamUnavailable, result.Conflicts[0].Type())
		assert.Equal(t, helper.ID(), result.Conflicts[0].ParticipantID())
	})
}

func TestConflictDetector_Weather(t *testing.T) {
	setup := func(t *testing.T) (*harness, domain.CandidateSlot) {
		h := newHarness(t)
		h.forecast.set(storm)
		inspector := h.addParticipant(t, "Ines", 0, "inspection")
		slot := h.addSlot(t, inspector, window(8, 12), 2)
		return h, domain.CandidateSlot{ParticipantID: inspector.ID(), SlotID: slot.ID(), Window: window(9, 10)}
	}

	t.Run("hard without backup date", func(t *testing.T) {
		h, c := setup(t)

		result, err := h.detector.Detect(context.Background(), detectionInput(t, h, inspectionRequest(window(8, 12)), c))

		require.NoError(t, err)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, domain.ConflictWeatherGated, result.Conflicts[0].Type())
		assert.Equal(t, domain.SeverityHard, result.Conflicts[0].Severity())
		assert.False(t, result.Weather.Suitable)
	})

	t.Run("informational with backup date", func(t *testing.T) {
		h, c := setup(t)
		req := inspectionRequest(window(8, 12))
		backup := day.AddDate(0, 0, 2)
		req.BackupDate = &backup

		result, err := h.detector.Detect(context.Background(), detectionInput(t, h, req, c))

		require.NoError(t, err)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, domain.SeverityInformational, result.Conflicts[0].Severity())
		assert.Empty(t, domain.Blocking(result.Conflicts, false))
	})

	t.Run("fresh planning check is reused", func(t *testing.T) {
		h, c := setup(t)
		c.Weather = domain.WeatherCheck{Suitable: true, CheckedAt: time.Now().UTC()}

		result, err := h.detector.Detect(context.Background(), detectionInput(t, h, inspectionRequest(window(8, 12)), c))

		require.NoError(t, err)
		assert.True(t, result.Clear())
		assert.Zero(t, h.forecast.callCount())
	})

	t.Run("stale planning check is re-run", func(t *testing.T) {
		h, c := setup(t)
		c.Weather = domain.WeatherCheck{Suitable: true, CheckedAt: time.Now().Add(-12 * time.Hour)}

		result, err := h.detector.Detect(context.Background(), detectionInput(t, h, inspectionRequest(window(8, 12)), c))

		require.NoError(t, err)
		assert.Len(t, result.Conflicts, 1)
		assert.Equal(t, 1, h.forecast.callCount())
	})
}
