package commands

import (
	"context"
	"strings"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/crewplan/internal/shared/application"
	"github.com/google/uuid"
)

// RecheckWeatherCommand re-runs the forecast check of a booked appointment.
type RecheckWeatherCommand struct {
	AppointmentID uuid.UUID
	RequestedBy   uuid.UUID
}

// RecheckWeatherResult reports the new check and any status change.
type RecheckWeatherResult struct {
	Appointment *domain.Appointment
	Check       domain.WeatherCheck
	Previous    domain.AppointmentStatus
	Changed     bool
}

// RecheckWeatherHandler handles the RecheckWeatherCommand.
type RecheckWeatherHandler struct {
	booker  *Booker
	weather *services.WeatherChecker
}

// NewRecheckWeatherHandler creates a new RecheckWeatherHandler.
func NewRecheckWeatherHandler(booker *Booker, weather *services.WeatherChecker) *RecheckWeatherHandler {
	return &RecheckWeatherHandler{booker: booker, weather: weather}
}

// Handle moves Confirmed to WeatherHold when the forecast fails, and back once
// a verified forecast passes. Holds stay in place either way; a degraded pass
// never lifts a weather hold.
func (h *RecheckWeatherHandler) Handle(ctx context.Context, cmd RecheckWeatherCommand) (*RecheckWeatherResult, error) {
	b := h.booker
	appt, err := b.Appointments.FindByID(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	result := &RecheckWeatherResult{Appointment: appt, Previous: appt.Status()}
	if appt.Status().IsTerminal() {
		return nil, domain.NewValidationError("appointment", "is "+string(appt.Status()))
	}
	if !appt.WeatherDependent() {
		result.Check = domain.SkippedWeatherCheck(time.Now().UTC())
		return result, nil
	}

	apptType, err := b.Planner.Catalog().Lookup(appt.Kind())
	if err != nil {
		return nil, err
	}
	check := h.weather.Check(ctx, appt.Location(), appt.Window().Start, apptType.WeatherProfile)
	result.Check = check

	switch {
	case appt.Status() == domain.StatusConfirmed && !check.Satisfied():
		if err := appt.PlaceOnWeatherHold(check); err != nil {
			return nil, err
		}
		result.Changed = true
	case appt.Status() == domain.StatusWeatherHold && check.Verified():
		if err := appt.ReleaseWeatherHold(check); err != nil {
			return nil, err
		}
		result.Changed = true
	default:
		appt.RecordWeatherCheck(check)
	}

	reason := check.Outcome()
	if len(check.Reasons) > 0 {
		reason += ": " + strings.Join(check.Reasons, "; ")
	}
	err = sharedApplication.WithUnitOfWork(ctx, b.UnitOfWork, func(txCtx context.Context) error {
		if err := b.Appointments.Save(txCtx, appt); err != nil {
			return err
		}
		entry := domain.NewAuditEntry(appt.ID(), domain.AuditWeatherRechecked, check.Satisfied(), reason)
		entry.Window = appt.Window()
		entry.ParticipantID = appt.Lead()
		if err := b.Audit.Append(txCtx, entry); err != nil {
			return err
		}
		return b.emit(txCtx, cmd.RequestedBy, appt)
	})
	if err != nil {
		return nil, err
	}

	b.Logger.InfoContext(ctx, "weather rechecked",
		"appointment_id", appt.ID(),
		"outcome", check.Outcome(),
		"from", result.Previous,
		"to", appt.Status(),
	)
	return result, nil
}
