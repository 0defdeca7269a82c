package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/app"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/workers"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/persistence"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/tuning"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/crewplan/pkg/config"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("starting crewplan worker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.IsDevelopment() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.OutboxProcessorEnabled {
		processor := container.OutboxProcessor
		if err := processor.Start(gctx); err != nil {
			logger.Error("failed to start outbox processor", "error", err)
			os.Exit(1)
		}
		defer processor.Stop()
		logger.Info("outbox processor started")

		g.Go(func() error {
			every(gctx, cfg.OutboxCleanupInterval, func() {
				deleted, err := container.Outbox.DeleteOld(gctx, cfg.OutboxRetentionDays)
				if err != nil {
					logger.Error("outbox cleanup failed", "error", err)
					return
				}
				if deleted > 0 {
					logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
				}
			})
			return nil
		})

		g.Go(func() error {
			every(gctx, cfg.OutboxStatsInterval, func() {
				stats := processor.GetStats()
				logger.Info("outbox stats",
					"running", stats.IsRunning,
					"published", stats.PublishedCount,
					"failed", stats.FailedCount,
					"dead", stats.DeadCount,
					"lag_seconds", stats.LagSeconds,
					"last_error", stats.LastError,
				)
			})
			return nil
		})
	} else {
		logger.Info("outbox processor disabled")
	}

	// The in-process bus already delivers to the subscribers on flush.
	if cfg.EventBroker != app.BrokerInProcess && cfg.EventBroker != "" {
		consumer, err := app.NewConsumer(cfg, container.Bus, logger)
		if err != nil {
			logger.Error("failed to create event consumer", "error", err)
			os.Exit(1)
		}
		defer func() { _ = consumer.Close() }()
		container.RegisterSubscribers(consumer)
		g.Go(func() error { return ignoreCanceled(consumer.Start(gctx)) })
	}

	sweeper := workers.NewQuorumSweeper(container.ExpireCoordinationHandler, cfg.QuorumSweepInterval, logger, container.Metrics)
	g.Go(func() error { return ignoreCanceled(sweeper.Run(gctx)) })

	rechecker := workers.NewWeatherRecheckWorker(container.Appointments, container.RecheckWeatherHandler, workers.WeatherRecheckConfig{
		Interval: cfg.WeatherRecheckInterval,
		Horizon:  cfg.WeatherRecheckHorizon,
	}, logger)
	g.Go(func() error { return ignoreCanceled(rechecker.Run(gctx)) })

	if container.ImportAvailabilityHandler != nil {
		importer := workers.NewAvailabilityImportWorker(container.ImportAvailabilityHandler, workers.AvailabilityImportConfig{
			Interval:      cfg.CalDAVImportInterval,
			LookAheadDays: cfg.CalDAVLookAheadDays,
		}, logger)
		g.Go(func() error { return ignoreCanceled(importer.Run(gctx)) })
	}

	if cfg.SlotListenerEnabled && container.DBDriver == database.DriverPostgres {
		listener := persistence.NewSlotListener(cfg.DatabaseURL, container.Origin, container.Registry, logger)
		g.Go(func() error { return ignoreCanceled(listener.Run(gctx)) })
	}

	if cfg.TuningFile != "" {
		watcher, err := tuning.NewWatcher(cfg.TuningFile, container.Scoring, logger)
		if err != nil {
			logger.Warn("tuning file will not be reloaded", "path", cfg.TuningFile, "error", err)
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	if cfg.WorkerHealthAddr != "" {
		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           healthMux(container),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func healthMux(container *app.Container) *http.ServeMux {
	checks := container.HealthChecks()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := container.OutboxProcessor.GetStats()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "ok",
			"outbox_running":    stats.IsRunning,
			"published":         stats.PublishedCount,
			"failed":            stats.FailedCount,
			"dead":              stats.DeadCount,
			"last_processed_at": stats.LastProcessedAt,
			"last_error":        stats.LastError,
		})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		health := checks.Overall(r.Context())
		status := http.StatusOK
		if !health.Ready() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	})

	mux.Handle("/metrics", container.Prometheus.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// every runs fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
