package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
)

// AvailabilityImportConfig configures the calendar availability import.
type AvailabilityImportConfig struct {
	Interval      time.Duration
	LookAheadDays int
	// MaxErrors consecutive failures pause the import for one extra interval each.
	MaxErrors int
}

// DefaultAvailabilityImportConfig returns the default configuration.
func DefaultAvailabilityImportConfig() AvailabilityImportConfig {
	return AvailabilityImportConfig{Interval: 15 * time.Minute, LookAheadDays: 14, MaxErrors: 5}
}

// AvailabilityImporter pulls availability for a range.
type AvailabilityImporter interface {
	Handle(ctx context.Context, cmd commands.ImportAvailabilityCommand) (*commands.ImportAvailabilityResult, error)
}

// AvailabilityImportWorker periodically imports availability from an upstream calendar.
type AvailabilityImportWorker struct {
	loop
	importer  AvailabilityImporter
	config    AvailabilityImportConfig
	failures  int
	skipTicks int
	now       func() time.Time
}

// NewAvailabilityImportWorker creates an import worker.
func NewAvailabilityImportWorker(importer AvailabilityImporter, config AvailabilityImportConfig, logger *slog.Logger) *AvailabilityImportWorker {
	defaults := DefaultAvailabilityImportConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.LookAheadDays <= 0 {
		config.LookAheadDays = defaults.LookAheadDays
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = defaults.MaxErrors
	}
	return &AvailabilityImportWorker{
		loop:     newLoop("availability-import", config.Interval, logger),
		importer: importer,
		config:   config,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled or Stop is called.
func (w *AvailabilityImportWorker) Run(ctx context.Context) error {
	if w.importer == nil {
		w.logger.Warn("availability importer not configured, worker will not start")
		return nil
	}
	return w.run(ctx, w.cycle)
}

func (w *AvailabilityImportWorker) cycle(ctx context.Context) {
	if w.skipTicks > 0 {
		w.skipTicks--
		return
	}

	start := domain.DayOf(w.now().UTC())
	rng := domain.TimeRange{Start: start, End: start.AddDate(0, 0, w.config.LookAheadDays)}

	result, err := w.importer.Handle(ctx, commands.ImportAvailabilityCommand{Range: rng})
	if err != nil {
		w.failures++
		w.logger.ErrorContext(ctx, "availability import failed", "error", err, "consecutive_failures", w.failures)
		if w.failures >= w.config.MaxErrors {
			w.skipTicks = w.failures - w.config.MaxErrors + 1
		}
		return
	}
	w.failures = 0
	w.logger.DebugContext(ctx, "availability import cycle finished",
		"created", result.Created,
		"updated", result.Updated,
		"failed", result.Failed,
	)
}
