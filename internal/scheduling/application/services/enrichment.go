package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"golang.org/x/sync/errgroup"
)

// EnrichmentConfig bounds the parallel enrichment fan-out.
type EnrichmentConfig struct {
	// Concurrency caps in-flight provider calls per request.
	Concurrency int
}

// DefaultEnrichmentConfig returns the default fan-out settings.
func DefaultEnrichmentConfig() EnrichmentConfig {
	return EnrichmentConfig{Concurrency: 8}
}

// Draft is an unscored candidate with the inputs its travel estimate needs.
type Draft struct {
	Candidate domain.CandidateSlot
	Origin    domain.Location
	Departure time.Time
}

// DraftFromOption builds a draft from a registry option. The origin is the
// site of the prior reservation that day, or the participant's home.
func DraftFromOption(opt AvailableOption) Draft {
	p := opt.Participant
	d := Draft{
		Candidate: domain.CandidateSlot{
			ParticipantID:     p.ID(),
			ParticipantName:   p.Name(),
			SlotID:            opt.Slot.ID(),
			Window:            opt.Window,
			ParticipantSkills: p.Skills(),
			DayLoad:           opt.DayLoad,
			DailyCap:          p.DailyCap(),
		},
		Origin:    p.HomeLocation(),
		Departure: opt.Window.Start,
	}
	if opt.Prior != nil {
		if !opt.Prior.Location.IsZero() {
			d.Origin = opt.Prior.Location
		}
		d.Departure = opt.Prior.Window.End
	}
	return d
}

// Enricher attaches weather and travel data to drafts. Calls run in parallel
// with bounded concurrency; each provider call has its own timeout and fallback.
type Enricher struct {
	weather *WeatherChecker
	travel  *TravelEstimator
	config  EnrichmentConfig
	logger  *slog.Logger
}

// NewEnricher creates an enrichment stage.
func NewEnricher(weather *WeatherChecker, travel *TravelEstimator, config EnrichmentConfig, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultEnrichmentConfig().Concurrency
	}
	return &Enricher{weather: weather, travel: travel, config: config, logger: logger}
}

// Enrich returns one candidate per draft, in draft order. It only fails when
// ctx is cancelled; provider failures degrade to fallbacks.
func (e *Enricher) Enrich(ctx context.Context, req domain.SchedulingRequest, profile domain.WeatherRequirementProfile, drafts []Draft) ([]domain.CandidateSlot, error) {
	out := make([]domain.CandidateSlot, len(drafts))
	session := e.weather.NewSession()
	weatherDependent := req.IsWeatherDependent()
	now := time.Now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)

	for i := range drafts {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d := drafts[i]
			c := d.Candidate

			est := e.travel.Estimate(gctx, d.Origin, req.Location, d.Departure)
			c.TravelMinutes = est.Minutes
			c.TravelMeasured = est.Measured

			if weatherDependent {
				c.Weather = session.Check(gctx, req.Location, c.Window.Start, profile)
			} else {
				c.Weather = domain.SkippedWeatherCheck(now)
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "candidates enriched",
		"request_id", req.RequestID,
		"candidates", len(out),
		"weather_dependent", weatherDependent,
	)
	return out, nil
}
