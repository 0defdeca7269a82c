package services

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
)

// Weights are the additive scoring coefficients.
type Weights struct {
	Base                     float64 `yaml:"base" json:"base"`
	PriorityStep             float64 `yaml:"priority_step" json:"priority_step"`
	TravelPerMinute          float64 `yaml:"travel_per_minute" json:"travel_per_minute"`
	EstimatedTravelPenalty   float64 `yaml:"estimated_travel_penalty" json:"estimated_travel_penalty"`
	WeatherVerifiedBonus     float64 `yaml:"weather_verified_bonus" json:"weather_verified_bonus"`
	WeatherUnsuitablePenalty float64 `yaml:"weather_unsuitable_penalty" json:"weather_unsuitable_penalty"`
	SpecializationPerSkill   float64 `yaml:"specialization_per_skill" json:"specialization_per_skill"`
	PreferenceBonus          float64 `yaml:"preference_bonus" json:"preference_bonus"`
	LightLoadBonus           float64 `yaml:"light_load_bonus" json:"light_load_bonus"`
	HeavyLoadPenalty         float64 `yaml:"heavy_load_penalty" json:"heavy_load_penalty"`
	LightLoadRatio           float64 `yaml:"light_load_ratio" json:"light_load_ratio"`
	HeavyLoadRatio           float64 `yaml:"heavy_load_ratio" json:"heavy_load_ratio"`
}

// DefaultWeights returns the built-in coefficients.
func DefaultWeights() Weights {
	return Weights{
		Base:                     100,
		PriorityStep:             5,
		TravelPerMinute:          0.5,
		EstimatedTravelPenalty:   5,
		WeatherVerifiedBonus:     10,
		WeatherUnsuitablePenalty: 40,
		SpecializationPerSkill:   8,
		PreferenceBonus:          15,
		LightLoadBonus:           6,
		HeavyLoadPenalty:         10,
		LightLoadRatio:           0.5,
		HeavyLoadRatio:           0.8,
	}
}

// Validate rejects negative coefficients and inverted load ratios.
func (w Weights) Validate() error {
	values := map[string]float64{
		"base":                       w.Base,
		"priority_step":              w.PriorityStep,
		"travel_per_minute":          w.TravelPerMinute,
		"estimated_travel_penalty":   w.EstimatedTravelPenalty,
		"weather_verified_bonus":     w.WeatherVerifiedBonus,
		"weather_unsuitable_penalty": w.WeatherUnsuitablePenalty,
		"specialization_per_skill":   w.SpecializationPerSkill,
		"preference_bonus":           w.PreferenceBonus,
		"light_load_bonus":           w.LightLoadBonus,
		"heavy_load_penalty":         w.HeavyLoadPenalty,
	}
	for name, v := range values {
		if v < 0 {
			return domain.NewValidationError("weights."+name, "must not be negative")
		}
	}
	if w.LightLoadRatio < 0 || w.HeavyLoadRatio > 1 || w.LightLoadRatio > w.HeavyLoadRatio {
		return domain.NewValidationError("weights", fmt.Sprintf("load ratios must satisfy 0 <= light (%.2f) <= heavy (%.2f) <= 1", w.LightLoadRatio, w.HeavyLoadRatio))
	}
	return nil
}

// ScoringContext is the request-level input to scoring.
type ScoringContext struct {
	Priority         domain.Priority
	PreferredWindows []domain.TimeRange
	PreferredSkills  []string
	WeatherDependent bool
}

// ContextFor derives the scoring context of a normalized request.
func ContextFor(req domain.SchedulingRequest, apptType domain.AppointmentType) ScoringContext {
	return ScoringContext{
		Priority:         req.Priority,
		PreferredWindows: req.PreferredWindows,
		PreferredSkills:  apptType.PreferredSkills,
		WeatherDependent: req.IsWeatherDependent(),
	}
}

// Score is a pure function of its inputs.
func Score(c domain.CandidateSlot, sc ScoringContext, w Weights) domain.ScoreBreakdown {
	b := domain.ScoreBreakdown{Base: w.Base}

	if rank := sc.Priority.Rank(); rank > 0 {
		b.Priority = w.PriorityStep * float64(rank)
	}

	b.Travel = -w.TravelPerMinute * float64(c.TravelMinutes)
	if !c.TravelMeasured {
		b.Travel -= w.EstimatedTravelPenalty
	}

	switch {
	case !sc.WeatherDependent, c.Weather.Skipped, c.Weather.Degraded:
	case c.Weather.Suitable:
		b.Weather = w.WeatherVerifiedBonus
	default:
		b.Weather = -w.WeatherUnsuitablePenalty
	}

	b.Specialization = w.SpecializationPerSkill * float64(countHeld(c.ParticipantSkills, sc.PreferredSkills))

	for _, p := range sc.PreferredWindows {
		if p.Contains(c.Window) {
			b.Preference = w.PreferenceBonus
			break
		}
	}

	b.Workload = workloadAdjustment(c.DayLoad, c.DailyCap, w)

	b.Total = b.Base + b.Priority + b.Travel + b.Weather + b.Specialization + b.Preference + b.Workload
	if b.Total < 0 {
		b.Total = 0
	}
	return b
}

func workloadAdjustment(load, dailyCap int, w Weights) float64 {
	if dailyCap <= 0 {
		if load == 0 {
			return w.LightLoadBonus
		}
		return 0
	}
	ratio := float64(load) / float64(dailyCap)
	switch {
	case ratio < w.LightLoadRatio:
		return w.LightLoadBonus
	case ratio >= w.HeavyLoadRatio:
		return -w.HeavyLoadPenalty
	default:
		return 0
	}
}

func countHeld(held, wanted []string) int {
	set := make(map[string]struct{}, len(held))
	for _, s := range held {
		set[s] = struct{}{}
	}
	n := 0
	for _, s := range wanted {
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}

// ScoringEngine ranks candidates with hot-swappable weights.
type ScoringEngine struct {
	weights atomic.Pointer[Weights]
}

// NewScoringEngine creates a scoring engine.
func NewScoringEngine(w Weights) *ScoringEngine {
	e := &ScoringEngine{}
	e.weights.Store(&w)
	return e
}

// Weights returns the active coefficients.
func (e *ScoringEngine) Weights() Weights {
	return *e.weights.Load()
}

// SetWeights swaps the coefficients for subsequent requests.
func (e *ScoringEngine) SetWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	e.weights.Store(&w)
	return nil
}

// Rank scores every candidate and returns the full list ordered by score,
// then travel time, then start time.
func (e *ScoringEngine) Rank(candidates []domain.CandidateSlot, sc ScoringContext) []domain.CandidateSlot {
	w := e.Weights()
	ranked := make([]domain.CandidateSlot, len(candidates))
	for i, c := range candidates {
		c.Breakdown = Score(c, sc, w)
		c.Score = c.Breakdown.Total
		ranked[i] = c
	}
	SortCandidates(ranked)
	return ranked
}

// SortCandidates orders scored candidates in place.
func SortCandidates(candidates []domain.CandidateSlot) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TravelMinutes != b.TravelMinutes {
			return a.TravelMinutes < b.TravelMinutes
		}
		if !a.Window.Start.Equal(b.Window.Start) {
			return a.Window.Start.Before(b.Window.Start)
		}
		return a.ParticipantID.String() < b.ParticipantID.String()
	})
}
