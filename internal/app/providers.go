package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/routing"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/weather"
	"github.com/felixgeelhaar/crewplan/pkg/config"
	"github.com/redis/go-redis/v9"
)

// forecastProvider picks the plugin, then the HTTP API. With neither
// configured it returns nil and every weather check is degraded.
func forecastProvider(cfg *config.Config, loader *weather.PluginLoader, logger *slog.Logger) (services.ForecastProvider, error) {
	switch {
	case cfg.WeatherPluginPath != "":
		provider, err := loader.Load(cfg.WeatherPluginPath, cfg.WeatherPluginChecksum)
		if err != nil {
			return nil, fmt.Errorf("failed to load forecast plugin: %w", err)
		}
		logger.Info("forecast provider: plugin", "path", cfg.WeatherPluginPath)
		return provider, nil
	case cfg.WeatherProviderURL != "":
		logger.Info("forecast provider: http", "url", cfg.WeatherProviderURL)
		return weather.NewHTTPProvider(cfg.WeatherProviderURL, &http.Client{Timeout: cfg.ProviderTimeout}), nil
	default:
		logger.Warn("no forecast provider configured, weather checks will be degraded")
		return nil, nil
	}
}

// routingProvider returns nil when no routing API is configured, in which
// case travel falls back to the default estimate.
func routingProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) services.RoutingProvider {
	if cfg.RoutingProviderURL == "" {
		logger.Warn("no routing provider configured, using default travel time",
			"default_minutes", cfg.DefaultTravelMinutes,
		)
		return nil
	}

	client := &http.Client{}
	if cfg.RoutingUsesOAuth() {
		client = routing.NewOAuthClient(ctx, routing.Credentials{
			ClientID:     cfg.RoutingClientID,
			ClientSecret: cfg.RoutingClientSecret,
			TokenURL:     cfg.RoutingTokenURL,
		})
	}
	client.Timeout = cfg.ProviderTimeout

	logger.Info("routing provider: http", "url", cfg.RoutingProviderURL, "oauth", cfg.RoutingUsesOAuth())
	return routing.NewHTTPProvider(cfg.RoutingProviderURL, client)
}

// connectRedis returns nil when Redis is not configured. Outside development
// an unreachable Redis is an error; in development forecasts go uncached.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		logger.Warn("invalid Redis URL, forecast cache disabled", "error", err)
		return nil, nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Warn("Redis not available, forecast cache disabled", "error", err)
		return nil, nil
	}

	logger.Info("connected to Redis")
	return client, nil
}
