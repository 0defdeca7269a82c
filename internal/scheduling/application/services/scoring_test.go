package services

import (
	"testing"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseCandidate() domain.CandidateSlot {
	return domain.CandidateSlot{
		ParticipantID:  uuid.New(),
		Window:         window(9, 10),
		TravelMinutes:  20,
		TravelMeasured: true,
		Weather:        domain.WeatherCheck{Suitable: true, CheckedAt: at(7, 0)},
	}
}

func TestScore(t *testing.T) {
	w := DefaultWeights()

	tests := []struct {
		name   string
		mutate func(c *domain.CandidateSlot, sc *ScoringContext)
		check  func(t *testing.T, b domain.ScoreBreakdown)
	}{
		{
			name:   "baseline",
			mutate: func(*domain.CandidateSlot, *ScoringContext) {},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				// base + normal priority - 20 min travel + verified weather + light load
				assert.Equal(t, 100+5-10+10+6.0, b.Total)
			},
		},
		{
			name: "priority scales with rank",
			mutate: func(_ *domain.CandidateSlot, sc *ScoringContext) {
				sc.Priority = domain.PriorityEmergency
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Equal(t, 20.0, b.Priority)
			},
		},
		{
			name: "estimated travel is penalised",
			mutate: func(c *domain.CandidateSlot, _ *ScoringContext) {
				c.TravelMeasured = false
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Equal(t, -15.0, b.Travel)
			},
		},
		{
			name: "unsuitable weather",
			mutate: func(c *domain.CandidateSlot, _ *ScoringContext) {
				c.Weather.Suitable = false
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Equal(t, -40.0, b.Weather)
			},
		},
		{
			name: "degraded weather is neutral",
			mutate: func(c *domain.CandidateSlot, _ *ScoringContext) {
				c.Weather.Degraded = true
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Zero(t, b.Weather)
			},
		},
		{
			name: "weather ignored when not dependent",
			mutate: func(c *domain.CandidateSlot, sc *ScoringContext) {
				c.Weather.Suitable = false
				sc.WeatherDependent = false
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Zero(t, b.Weather)
			},
		},
		{
			name: "preferred skills",
			mutate: func(c *domain.CandidateSlot, sc *ScoringContext) {
				c.ParticipantSkills = []string{"electrical", "roofing", "repair"}
				sc.PreferredSkills = []string{"electrical", "roofing"}
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Equal(t, 16.0, b.Specialization)
			},
		},
		{
			name: "preferred window",
			mutate: func(_ *domain.CandidateSlot, sc *ScoringContext) {
				sc.PreferredWindows = []domain.TimeRange{window(8, 11)}
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Equal(t, 15.0, b.Preference)
			},
		},
		{
			name: "heavy workload",
			mutate: func(c *domain.CandidateSlot, _ *ScoringContext) {
				c.DayLoad = 4
				c.DailyCap = 5
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Equal(t, -10.0, b.Workload)
			},
		},
		{
			name: "moderate workload",
			mutate: func(c *domain.CandidateSlot, _ *ScoringContext) {
				c.DayLoad = 3
				c.DailyCap = 5
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Zero(t, b.Workload)
			},
		},
		{
			name: "total never negative",
			mutate: func(c *domain.CandidateSlot, _ *ScoringContext) {
				c.TravelMinutes = 600
			},
			check: func(t *testing.T, b domain.ScoreBreakdown) {
				assert.Zero(t, b.Total)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseCandidate()
			sc := ScoringContext{Priority: domain.PriorityNormal, WeatherDependent: true}
			tt.mutate(&c, &sc)

			b := Score(c, sc, w)

			tt.check(t, b)
			assert.Equal(t, b, Score(c, sc, w), "scoring must be deterministic")
		})
	}
}

func TestScoringEngine_Rank(t *testing.T) {
	engine := NewScoringEngine(DefaultWeights())
	sc := ScoringContext{Priority: domain.PriorityNormal}

	near := baseCandidate()
	near.TravelMinutes = 10
	far := baseCandidate()
	far.TravelMinutes = 40
	late := baseCandidate()
	late.TravelMinutes = 10
	late.Window = window(14, 15)

	ranked := engine.Rank([]domain.CandidateSlot{far, late, near}, sc)

	require.Len(t, ranked, 3)
	assert.Equal(t, near.ParticipantID, ranked[0].ParticipantID)
	assert.Equal(t, late.ParticipantID, ranked[1].ParticipantID)
	assert.Equal(t, far.ParticipantID, ranked[2].ParticipantID)
	assert.Equal(t, ranked[0].Breakdown.Total, ranked[0].Score)
}

func TestScoringEngine_SetWeights(t *testing.T) {
	engine := NewScoringEngine(DefaultWeights())

	invalid := DefaultWeights()
	invalid.TravelPerMinute = -1
	assert.Error(t, engine.SetWeights(invalid))
	assert.Equal(t, DefaultWeights(), engine.Weights())

	inverted := DefaultWeights()
	inverted.LightLoadRatio = 0.9
	assert.Error(t, engine.SetWeights(inverted))

	travelHeavy := DefaultWeights()
	travelHeavy.TravelPerMinute = 2
	require.NoError(t, engine.SetWeights(travelHeavy))
	assert.Equal(t, 2.0, engine.Weights().TravelPerMinute)
}
