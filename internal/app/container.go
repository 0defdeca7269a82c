package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/subscribers"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/caldav"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/tuning"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/weather"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/crewplan/pkg/config"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Metrics records through Prometheus when available.
	Metrics    observability.Metrics
	Prometheus *observability.PrometheusMetrics

	// Database; nil for in-memory containers.
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Origin identifies this process in cross-instance slot notifications.
	Origin string

	Repositories

	// Events
	Bus             *eventbus.InProcessEventBus
	EventPublisher  eventbus.Publisher
	OutboxProcessor *outbox.Processor

	// Engine
	Catalog  *domain.Catalog
	Scoring  *services.ScoringEngine
	Registry *services.Registry
	Weather  *services.WeatherChecker
	Travel   *services.TravelEstimator
	Planner  *services.Planner
	Booker   *commands.Booker

	// Command handlers
	RegisterParticipantHandler *commands.RegisterParticipantHandler
	UpsertSlotHandler          *commands.UpsertSlotHandler
	ImportAvailabilityHandler  *commands.ImportAvailabilityHandler
	CommitAppointmentHandler   *commands.CommitAppointmentHandler
	AutoScheduleHandler        *commands.AutoScheduleHandler
	ResolveConflictHandler     *commands.ResolveConflictHandler
	CancelAppointmentHandler   *commands.CancelAppointmentHandler
	RecheckWeatherHandler      *commands.RecheckWeatherHandler
	RespondParticipantHandler  *commands.RespondParticipantHandler
	ExpireCoordinationHandler  *commands.ExpireCoordinationHandler

	// Query handlers
	FindSlotsHandler        *queries.FindSlotsHandler
	GetAppointmentHandler   *queries.GetAppointmentHandler
	ListAuditHandler        *queries.ListAuditHandler
	ListParticipantsHandler *queries.ListParticipantsHandler

	plugins *weather.PluginLoader
}

// NewContainer connects to the configured database (PostgreSQL, or SQLite
// when DATABASE_URL is empty), applies migrations and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dbCfg := database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
	}
	if dbCfg.Driver == "" {
		dbCfg.Driver = database.DetectDriver(cfg.DatabaseURL)
	}
	if dbCfg.Driver == database.DriverSQLite {
		if err := database.EnsureDirectory(cfg.SQLitePath); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
	}

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Run(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("connected to database", "driver", conn.Driver())

	origin := uuid.NewString()
	repos, err := NewRepositoryFactory(conn).Build(origin)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Container{
		Config:       cfg,
		Logger:       logger,
		DBConn:       conn,
		DBDriver:     conn.Driver(),
		Origin:       origin,
		Repositories: repos,
	}
	if err := c.wire(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// NewLocalContainer creates a container for local mode with SQLite.
// This provides zero-config operation without requiring PostgreSQL, Redis, or a broker.
func NewLocalContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	local := *cfg
	local.LocalMode = true
	local.DatabaseDriver = string(database.DriverSQLite)
	local.DatabaseURL = ""
	local.RedisURL = ""
	local.EventBroker = BrokerInProcess
	return NewContainer(ctx, &local, logger)
}

// NewInMemoryContainer wires the engine over process-local stores. Nothing
// survives the process; used by tests and throwaway runs.
func NewInMemoryContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mem := *cfg
	mem.RedisURL = ""
	mem.EventBroker = BrokerInProcess
	c := &Container{
		Config:       &mem,
		Logger:       logger,
		Origin:       uuid.NewString(),
		Repositories: NewMemoryRepositories(),
	}
	if err := c.wire(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) wire(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger

	c.Prometheus = observability.NewPrometheusMetrics()
	c.Metrics = c.Prometheus

	redisClient, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	c.RedisClient = redisClient

	// Events
	c.Bus = eventbus.NewInProcessEventBus(logger)
	c.EventPublisher, err = NewPublisher(cfg, c.Bus, logger)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	c.OutboxProcessor = outbox.NewProcessor(c.Outbox, c.EventPublisher, outboxConfig(cfg), logger)

	// Tuning
	c.Catalog = domain.DefaultCatalog()
	c.Scoring = services.NewScoringEngine(services.DefaultWeights())
	if cfg.TuningFile != "" {
		if err := c.applyTuning(cfg.TuningFile); err != nil {
			return err
		}
	}

	// Providers
	c.plugins = weather.NewPluginLoader(logger)
	forecast, err := forecastProvider(cfg, c.plugins, logger)
	if err != nil {
		return err
	}
	var cache services.ForecastCache
	if c.RedisClient != nil {
		cache = weather.NewRedisCache(c.RedisClient)
	}

	// Engine
	c.Registry = services.NewRegistry(c.Participants, c.Availability, services.RegistryConfig{
		Buffer:                   cfg.SchedulingBuffer,
		Granularity:              cfg.SchedulingGranularity,
		MaxOptionsPerParticipant: services.DefaultRegistryConfig().MaxOptionsPerParticipant,
	}, logger)
	c.Weather = services.NewWeatherChecker(forecast, cache, services.WeatherConfig{
		Timeout:  cfg.EnrichmentTimeout,
		Validity: cfg.WeatherCheckValidity,
	}, logger, c.Metrics)
	c.Travel = services.NewTravelEstimator(routingProvider(ctx, cfg, logger), services.TravelConfig{
		DefaultMinutes: cfg.DefaultTravelMinutes,
		Timeout:        cfg.EnrichmentTimeout,
	}, logger, c.Metrics)
	enricher := services.NewEnricher(c.Weather, c.Travel, services.EnrichmentConfig{
		Concurrency: cfg.EnrichmentConcurrency,
	}, logger)
	c.Planner = services.NewPlanner(c.Catalog, c.Registry, enricher, c.Scoring, logger, c.Metrics)

	detector := services.NewConflictDetector(c.Registry, c.Weather, c.Travel, logger, c.Metrics)
	c.Booker = commands.NewBooker(commands.BookerDeps{
		Appointments: c.Appointments,
		Conflicts:    c.Conflicts,
		Coordination: c.Coordination,
		Audit:        c.Audit,
		Outbox:       c.Outbox,
		UnitOfWork:   c.UnitOfWork,
		Planner:      c.Planner,
		Detector:     detector,
		Advisor:      services.NewResolutionAdvisor(c.Planner, logger),
		Coordinator:  services.NewCoordinator(c.Registry, detector, services.CoordinatorConfig{Window: cfg.CoordinationWindow}, logger, c.Metrics),
		Logger:       logger,
		Metrics:      c.Metrics,
	})

	// Command handlers
	c.RegisterParticipantHandler = commands.NewRegisterParticipantHandler(c.Participants, logger)
	c.UpsertSlotHandler = commands.NewUpsertSlotHandler(c.Participants, c.Availability, c.Registry, c.Outbox, c.UnitOfWork, logger)
	c.CommitAppointmentHandler = commands.NewCommitAppointmentHandler(c.Booker)
	c.AutoScheduleHandler = commands.NewAutoScheduleHandler(c.Booker, cfg.CommitMaxAttempts)
	c.ResolveConflictHandler = commands.NewResolveConflictHandler(c.Booker)
	c.CancelAppointmentHandler = commands.NewCancelAppointmentHandler(c.Booker)
	c.RecheckWeatherHandler = commands.NewRecheckWeatherHandler(c.Booker, c.Weather)
	c.RespondParticipantHandler = commands.NewRespondParticipantHandler(c.Booker, c.Weather)
	c.ExpireCoordinationHandler = commands.NewExpireCoordinationHandler(c.Booker)
	if cfg.CalDAVEnabled() {
		source := caldav.NewSource(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, logger)
		c.ImportAvailabilityHandler = commands.NewImportAvailabilityHandler(source, c.UpsertSlotHandler, logger)
	}

	// Query handlers
	c.FindSlotsHandler = queries.NewFindSlotsHandler(c.Planner, c.Audit, logger).WithMetrics(c.Metrics)
	c.GetAppointmentHandler = queries.NewGetAppointmentHandler(c.Appointments, c.Coordination, c.Conflicts, c.Availability)
	c.ListAuditHandler = queries.NewListAuditHandler(c.Audit)
	c.ListParticipantsHandler = queries.NewListParticipantsHandler(c.Participants)

	// The in-process bus delivers as soon as the outbox is flushed.
	c.RegisterSubscribers(c.Bus)

	return nil
}

func outboxConfig(cfg *config.Config) outbox.ProcessorConfig {
	pc := outbox.DefaultProcessorConfig()
	if cfg.OutboxPollInterval > 0 {
		pc.PollInterval = cfg.OutboxPollInterval
	}
	if cfg.OutboxBatchSize > 0 {
		pc.BatchSize = cfg.OutboxBatchSize
	}
	if cfg.OutboxMaxRetries > 0 {
		pc.MaxRetries = cfg.OutboxMaxRetries
	}
	return pc
}

// applyTuning installs the tuning file's weights and duration overrides.
func (c *Container) applyTuning(path string) error {
	file, err := tuning.Load(path)
	if err != nil {
		return err
	}
	overrides, err := file.DurationOverrides(c.Catalog)
	if err != nil {
		return err
	}
	c.Catalog = c.Catalog.WithDurationOverrides(overrides)
	if err := c.Scoring.SetWeights(file.Weights); err != nil {
		return err
	}
	c.Logger.Info("tuning file applied", "path", path, "duration_overrides", len(overrides))
	return nil
}

// RegisterSubscribers attaches the scheduling subscribers to a consumer.
func (c *Container) RegisterSubscribers(consumer eventbus.Consumer) {
	consumer.RegisterConsumer(subscribers.NewSlotFreedSubscriber(c.Registry, c.Logger))
	consumer.RegisterConsumer(subscribers.NewOutcomeMetricsSubscriber(c.Metrics, c.Logger))
}

// FlushOutbox publishes pending outbox messages now. Short-lived processes
// such as the CLI call it so events reach the bus without a worker.
func (c *Container) FlushOutbox(ctx context.Context) error {
	return c.OutboxProcessor.ProcessOnce(ctx)
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.plugins != nil {
		c.plugins.Close()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Error("failed to close event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Error("failed to close Redis client", "error", err)
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Error("failed to close database connection", "error", err)
		}
	}
}
