package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "crewplan:forecast:"

// RedisCache shares forecasts between processes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a forecast cache on client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns nil on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.Conditions, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get forecast %s: %w", key, err)
	}

	var conditions domain.Conditions
	if err := json.Unmarshal(data, &conditions); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		return nil, nil
	}
	return &conditions, nil
}

// Set stores conditions for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, conditions domain.Conditions, ttl time.Duration) error {
	data, err := json.Marshal(conditions)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set forecast %s: %w", key, err)
	}
	return nil
}
