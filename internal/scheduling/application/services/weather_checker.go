package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// ForecastProvider is the external forecast collaborator.
type ForecastProvider interface {
	Forecast(ctx context.Context, loc domain.Location, at time.Time) (domain.Conditions, error)
}

// ForecastCache is an optional shared cache in front of the provider.
// Get returns nil without error on a miss.
type ForecastCache interface {
	Get(ctx context.Context, key string) (*domain.Conditions, error)
	Set(ctx context.Context, key string, conditions domain.Conditions, ttl time.Duration) error
}

// WeatherConfig configures the weather suitability checker.
type WeatherConfig struct {
	// Timeout bounds a single provider call.
	Timeout time.Duration
	// Validity is how long a check stays trustworthy; also the cache TTL.
	Validity time.Duration
	Breaker  BreakerConfig
}

// DefaultWeatherConfig returns the default checker settings.
func DefaultWeatherConfig() WeatherConfig {
	return WeatherConfig{
		Timeout:  2 * time.Second,
		Validity: 6 * time.Hour,
		Breaker:  DefaultBreakerConfig(),
	}
}

// WeatherChecker evaluates forecasts against requirement profiles. It fails
// open: a provider error yields a degraded pass.
type WeatherChecker struct {
	provider ForecastProvider
	cache    ForecastCache
	breaker  *gobreaker.CircuitBreaker[domain.Conditions]
	config   WeatherConfig
	logger   *slog.Logger
	metrics  observability.Metrics
	now      func() time.Time
}

// NewWeatherChecker creates a checker. cache may be nil.
func NewWeatherChecker(provider ForecastProvider, cache ForecastCache, config WeatherConfig, logger *slog.Logger, metrics observability.Metrics) *WeatherChecker {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultWeatherConfig().Timeout
	}
	if config.Validity <= 0 {
		config.Validity = DefaultWeatherConfig().Validity
	}
	return &WeatherChecker{
		provider: provider,
		cache:    cache,
		breaker:  newBreaker[domain.Conditions]("forecast", config.Breaker, logger, metrics),
		config:   config,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Validity returns how long a check stays trustworthy.
func (w *WeatherChecker) Validity() time.Duration {
	return w.config.Validity
}

// Check evaluates the forecast for loc at ts without request-scoped memoization.
func (w *WeatherChecker) Check(ctx context.Context, loc domain.Location, ts time.Time, profile domain.WeatherRequirementProfile) domain.WeatherCheck {
	conditions, err := w.fetch(ctx, loc, forecastHour(ts))
	return w.evaluate(ctx, conditions, err, profile)
}

// IsStale reports whether a previous check must be re-run before commit.
func (w *WeatherChecker) IsStale(check *domain.WeatherCheck) bool {
	if check == nil || check.CheckedAt.IsZero() || check.Degraded {
		return true
	}
	return w.now().Sub(check.CheckedAt) > w.config.Validity
}

// NewSession returns a request-scoped checker that calls the provider once
// per distinct location and hour.
func (w *WeatherChecker) NewSession() *WeatherSession {
	return &WeatherSession{checker: w, results: make(map[string]forecastResult)}
}

func (w *WeatherChecker) evaluate(ctx context.Context, conditions domain.Conditions, err error, profile domain.WeatherRequirementProfile) domain.WeatherCheck {
	now := w.now().UTC()
	if err != nil {
		w.logger.WarnContext(ctx, "forecast unavailable, failing open",
			"error", err,
		)
		return domain.WeatherCheck{
			Suitable:  true,
			Degraded:  true,
			Reasons:   []string{fmt.Sprintf("%v: %v", domain.ErrExternalServiceDegraded, err)},
			CheckedAt: now,
		}
	}
	suitable, reasons := profile.Evaluate(conditions)
	c := conditions
	return domain.WeatherCheck{
		Suitable:   suitable,
		Conditions: &c,
		Reasons:    reasons,
		CheckedAt:  now,
	}
}

func (w *WeatherChecker) fetch(ctx context.Context, loc domain.Location, hour time.Time) (domain.Conditions, error) {
	if w.provider == nil {
		return domain.Conditions{}, errors.New("no forecast provider configured")
	}
	key := forecastKey(loc, hour)

	if w.cache != nil {
		cached, err := w.cache.Get(ctx, key)
		if err != nil {
			w.logger.DebugContext(ctx, "forecast cache read failed", "key", key, "error", err)
		} else if cached != nil {
			return *cached, nil
		}
	}

	start := time.Now()
	conditions, err := w.breaker.Execute(func() (domain.Conditions, error) {
		callCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
		return w.provider.Forecast(callCtx, loc, hour)
	})
	w.metrics.Timing(observability.MetricProviderDuration, time.Since(start), observability.T("provider", "forecast"))
	w.metrics.Counter(observability.MetricProviderCalls, 1, observability.T("provider", "forecast"))
	if err != nil {
		w.metrics.Counter(observability.MetricProviderDegraded, 1, observability.T("provider", "forecast"))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Conditions{}, fmt.Errorf("forecast circuit open: %w", err)
		}
		return domain.Conditions{}, err
	}

	if w.cache != nil {
		if err := w.cache.Set(ctx, key, conditions, w.config.Validity); err != nil {
			w.logger.DebugContext(ctx, "forecast cache write failed", "key", key, "error", err)
		}
	}
	return conditions, nil
}

type forecastResult struct {
	conditions domain.Conditions
	err        error
}

// WeatherSession memoizes forecasts for one scheduling request. It is safe
// for concurrent use by the enrichment fan-out.
type WeatherSession struct {
	checker *WeatherChecker
	group   singleflight.Group

	mu      sync.Mutex
	results map[string]forecastResult
}

// Check evaluates the forecast for loc at ts, reusing earlier answers of the session.
func (s *WeatherSession) Check(ctx context.Context, loc domain.Location, ts time.Time, profile domain.WeatherRequirementProfile) domain.WeatherCheck {
	hour := forecastHour(ts)
	key := forecastKey(loc, hour)

	s.mu.Lock()
	res, ok := s.results[key]
	s.mu.Unlock()

	if !ok {
		v, _, _ := s.group.Do(key, func() (any, error) {
			s.mu.Lock()
			done, ok := s.results[key]
			s.mu.Unlock()
			if ok {
				return done, nil
			}
			conditions, err := s.checker.fetch(ctx, loc, hour)
			r := forecastResult{conditions: conditions, err: err}
			s.mu.Lock()
			s.results[key] = r
			s.mu.Unlock()
			return r, nil
		})
		res = v.(forecastResult)
	}
	return s.checker.evaluate(ctx, res.conditions, res.err, profile)
}

func forecastHour(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Hour)
}

func forecastKey(loc domain.Location, hour time.Time) string {
	return loc.Key() + "@" + hour.Format(time.RFC3339)
}
