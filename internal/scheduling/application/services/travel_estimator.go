package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// RoutingProvider is the external travel-time collaborator.
type RoutingProvider interface {
	TravelTime(ctx context.Context, origin, destination domain.Location, departure time.Time) (time.Duration, error)
}

// TravelEstimate is a travel duration, tagged measured when a provider supplied it.
type TravelEstimate struct {
	Minutes  int
	Measured bool
}

// TravelConfig configures the travel time estimator.
type TravelConfig struct {
	// DefaultMinutes is used when the provider fails.
	DefaultMinutes int
	Timeout        time.Duration
	Breaker        BreakerConfig
}

// DefaultTravelConfig returns the default estimator settings.
func DefaultTravelConfig() TravelConfig {
	return TravelConfig{
		DefaultMinutes: 30,
		Timeout:        2 * time.Second,
		Breaker:        DefaultBreakerConfig(),
	}
}

// TravelEstimator computes travel time between a participant's prior location and a site.
type TravelEstimator struct {
	provider RoutingProvider
	breaker  *gobreaker.CircuitBreaker[time.Duration]
	config   TravelConfig
	logger   *slog.Logger
	metrics  observability.Metrics
}

// NewTravelEstimator creates an estimator. provider may be nil, in which case
// every estimate is the configured default.
func NewTravelEstimator(provider RoutingProvider, config TravelConfig, logger *slog.Logger, metrics observability.Metrics) *TravelEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if config.DefaultMinutes <= 0 {
		config.DefaultMinutes = DefaultTravelConfig().DefaultMinutes
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTravelConfig().Timeout
	}
	return &TravelEstimator{
		provider: provider,
		breaker:  newBreaker[time.Duration]("routing", config.Breaker, logger, metrics),
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// Estimate returns the expected travel minutes. Failures fall back to the
// default estimate with Measured=false.
func (t *TravelEstimator) Estimate(ctx context.Context, origin, destination domain.Location, departure time.Time) TravelEstimate {
	fallback := TravelEstimate{Minutes: t.config.DefaultMinutes}
	if t.provider == nil {
		return fallback
	}

	start := time.Now()
	d, err := t.breaker.Execute(func() (time.Duration, error) {
		callCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
		return t.provider.TravelTime(callCtx, origin, destination, departure)
	})
	t.metrics.Timing(observability.MetricProviderDuration, time.Since(start), observability.T("provider", "routing"))
	t.metrics.Counter(observability.MetricProviderCalls, 1, observability.T("provider", "routing"))
	if err != nil {
		t.metrics.Counter(observability.MetricProviderDegraded, 1, observability.T("provider", "routing"))
		t.logger.WarnContext(ctx, "routing unavailable, using default estimate",
			"default_minutes", t.config.DefaultMinutes,
			"error", err,
		)
		return fallback
	}
	return TravelEstimate{Minutes: int(math.Ceil(d.Minutes())), Measured: true}
}
