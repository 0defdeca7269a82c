package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
)

// WeatherRecheckConfig configures the pre-appointment weather rechecker.
type WeatherRecheckConfig struct {
	Interval time.Duration
	// Horizon is how far ahead booked appointments are rechecked.
	Horizon time.Duration
}

// DefaultWeatherRecheckConfig returns hourly rechecks over the next day.
func DefaultWeatherRecheckConfig() WeatherRecheckConfig {
	return WeatherRecheckConfig{Interval: time.Hour, Horizon: 24 * time.Hour}
}

// WeatherRechecker re-runs the weather check of an appointment.
type WeatherRechecker interface {
	Handle(ctx context.Context, cmd commands.RecheckWeatherCommand) (*commands.RecheckWeatherResult, error)
}

// WeatherRecheckWorker rechecks upcoming weather-dependent appointments, so
// forecasts that turn bad put the booking on hold and recoveries lift it.
type WeatherRecheckWorker struct {
	loop
	appointments domain.AppointmentRepository
	recheck      WeatherRechecker
	horizon      time.Duration
	now          func() time.Time
}

// NewWeatherRecheckWorker creates a rechecker.
func NewWeatherRecheckWorker(appointments domain.AppointmentRepository, recheck WeatherRechecker, config WeatherRecheckConfig, logger *slog.Logger) *WeatherRecheckWorker {
	defaults := DefaultWeatherRecheckConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Horizon <= 0 {
		config.Horizon = defaults.Horizon
	}
	return &WeatherRecheckWorker{
		loop:         newLoop("weather-rechecker", config.Interval, logger),
		appointments: appointments,
		recheck:      recheck,
		horizon:      config.Horizon,
		now:          time.Now,
	}
}

// Run blocks until ctx is cancelled or Stop is called.
func (w *WeatherRecheckWorker) Run(ctx context.Context) error {
	return w.run(ctx, w.cycle)
}

func (w *WeatherRecheckWorker) cycle(ctx context.Context) {
	now := w.now().UTC()
	upcoming, err := w.appointments.FindByStatusInRange(ctx,
		[]domain.AppointmentStatus{domain.StatusConfirmed, domain.StatusWeatherHold},
		domain.TimeRange{Start: now, End: now.Add(w.horizon)},
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to list upcoming appointments", "error", err)
		return
	}

	changed := 0
	for _, appt := range upcoming {
		if ctx.Err() != nil {
			return
		}
		if !appt.WeatherDependent() {
			continue
		}
		result, err := w.recheck.Handle(ctx, commands.RecheckWeatherCommand{AppointmentID: appt.ID()})
		if err != nil {
			w.logger.WarnContext(ctx, "weather recheck failed", "appointment_id", appt.ID(), "error", err)
			continue
		}
		if result.Changed {
			changed++
		}
	}
	w.logger.DebugContext(ctx, "weather recheck cycle finished", "appointments", len(upcoming), "changed", changed)
}
