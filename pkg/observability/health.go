package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is the result of a health check.
type HealthCheckResult struct {
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// HealthChecker performs one health check.
type HealthChecker func(ctx context.Context) HealthCheckResult

// DefaultCheckTimeout bounds each check when the registry has no timeout.
const DefaultCheckTimeout = 2 * time.Second

// HealthRegistry runs the worker's dependency checks. An unhealthy check
// makes the worker not ready; a degraded one only reports.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// NewHealthRegistry creates a registry whose checks each run under timeout.
func NewHealthRegistry(timeout time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &HealthRegistry{checkers: make(map[string]HealthChecker), timeout: timeout}
}

// Register adds or replaces the checker for a component.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Check runs every checker concurrently.
func (r *HealthRegistry) Check(ctx context.Context) map[string]HealthCheckResult {
	r.mu.RLock()
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for name, checker := range r.checkers {
		checkers[name] = checker
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]HealthCheckResult, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			start := time.Now()
			result := checker(checkCtx)
			result.Duration = time.Since(start)

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()
	return results
}

// OverallHealth is the readiness report.
type OverallHealth struct {
	Status    HealthStatus                 `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// Ready reports whether nothing is unhealthy.
func (h OverallHealth) Ready() bool {
	return h.Status != HealthStatusUnhealthy
}

// Overall runs every check and folds the results into one status.
func (r *HealthRegistry) Overall(ctx context.Context) OverallHealth {
	checks := r.Check(ctx)
	return OverallHealth{
		Status:    worstStatus(checks),
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}

func worstStatus(checks map[string]HealthCheckResult) HealthStatus {
	status := HealthStatusHealthy
	for _, result := range checks {
		switch result.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// DependencyChecker reports failure of ping with the given status.
func DependencyChecker(component string, onFailure HealthStatus, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{
				Status:  onFailure,
				Message: fmt.Sprintf("%s unreachable: %v", component, err),
			}
		}
		return HealthCheckResult{Status: HealthStatusHealthy, Message: component + " reachable"}
	}
}

// DatabaseHealthChecker fails readiness: reservations cannot be held
// without the store.
func DatabaseHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return DependencyChecker("database", HealthStatusUnhealthy, ping)
}

// ForecastCacheHealthChecker degrades only; forecasts are fetched uncached.
func ForecastCacheHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return DependencyChecker("forecast cache", HealthStatusDegraded, ping)
}

// BrokerHealthChecker degrades only; events wait in the outbox.
func BrokerHealthChecker(broker string, ping func(ctx context.Context) error) HealthChecker {
	return DependencyChecker(broker+" broker", HealthStatusDegraded, ping)
}

// OutboxLagChecker degrades when the oldest unpublished event is older than limit.
func OutboxLagChecker(lag func() time.Duration, limit time.Duration) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		current := lag()
		if limit > 0 && current > limit {
			return HealthCheckResult{
				Status:  HealthStatusDegraded,
				Message: fmt.Sprintf("outbox lag %s exceeds %s", current.Round(time.Second), limit),
			}
		}
		return HealthCheckResult{Status: HealthStatusHealthy, Message: "outbox draining"}
	}
}
