package services

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const providerTimeout = 50 * time.Millisecond

// hangingForecast and hangingRouting block until the call context ends.
type hangingForecast struct{}

func (hangingForecast) Forecast(ctx context.Context, _ domain.Location, _ time.Time) (domain.Conditions, error) {
	<-ctx.Done()
	return domain.Conditions{}, ctx.Err()
}

type hangingRouting struct{}

func (hangingRouting) TravelTime(ctx context.Context, _, _ domain.Location, _ time.Time) (time.Duration, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestWeatherChecker_TimeoutFailsOpen(t *testing.T) {
	checker := NewWeatherChecker(hangingForecast{}, nil, WeatherConfig{Timeout: providerTimeout}, nil, nil)

	start := time.Now()
	check := checker.Check(context.Background(), site, at(9, 0), domain.DefaultWeatherProfile())

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, check.Suitable)
	assert.True(t, check.Degraded)
	assert.False(t, check.Verified())
	require.NotEmpty(t, check.Reasons)
}

func TestTravelEstimator_TimeoutFallsBackToDefault(t *testing.T) {
	est := NewTravelEstimator(hangingRouting{}, TravelConfig{DefaultMinutes: 35, Timeout: providerTimeout}, nil, nil)

	start := time.Now()
	got := est.Estimate(context.Background(), home, site, at(8, 0))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, TravelEstimate{Minutes: 35}, got)
}

func TestEnricher_TimeoutsDegradeEveryCandidate(t *testing.T) {
	weather := NewWeatherChecker(hangingForecast{}, nil, WeatherConfig{Timeout: providerTimeout}, nil, nil)
	travel := NewTravelEstimator(hangingRouting{}, TravelConfig{DefaultMinutes: 35, Timeout: providerTimeout}, nil, nil)
	enricher := NewEnricher(weather, travel, EnrichmentConfig{Concurrency: 4}, nil)

	req := inspectionRequest(window(8, 12))
	apptType, err := req.Normalize(domain.DefaultCatalog())
	require.NoError(t, err)
	require.True(t, req.IsWeatherDependent())

	var drafts []Draft
	for hour := 8; hour < 11; hour++ {
		drafts = append(drafts, Draft{
			Candidate: domain.CandidateSlot{Window: window(hour, hour+1)},
			Origin:    home,
			Departure: at(hour, 0),
		})
	}

	start := time.Now()
	candidates, err := enricher.Enrich(context.Background(), req, apptType.WeatherProfile, drafts)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, candidates, len(drafts))
	for i, c := range candidates {
		assert.Equal(t, drafts[i].Candidate.Window, c.Window)
		assert.Equal(t, 35, c.TravelMinutes)
		assert.False(t, c.TravelMeasured)
		assert.True(t, c.Weather.Degraded)
		assert.True(t, c.Weather.Suitable)
	}
}
