package app

import (
	"context"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
)

// HealthChecks registers a readiness check for each dependency the
// container holds. In-memory containers check only the outbox.
func (c *Container) HealthChecks() *observability.HealthRegistry {
	var timeout, maxLag time.Duration
	broker := BrokerInProcess
	if c.Config != nil {
		timeout, maxLag = c.Config.HealthCheckTimeout, c.Config.OutboxMaxLag
		if c.Config.EventBroker != "" {
			broker = c.Config.EventBroker
		}
	}
	checks := observability.NewHealthRegistry(timeout)

	if c.DBConn != nil {
		checks.Register("database", observability.DatabaseHealthChecker(c.DBConn.Ping))
	}
	if c.RedisClient != nil {
		checks.Register("forecast_cache", observability.ForecastCacheHealthChecker(func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}))
	}
	if pinger, ok := c.EventPublisher.(eventbus.Pinger); ok && broker != BrokerInProcess {
		checks.Register("broker", observability.BrokerHealthChecker(broker, pinger.Ping))
	}
	if c.OutboxProcessor != nil {
		processor := c.OutboxProcessor
		checks.Register("outbox", observability.OutboxLagChecker(func() time.Duration {
			return time.Duration(processor.GetStats().LagSeconds * float64(time.Second))
		}, maxLag))
	}
	return checks
}
