package cli

import (
	"context"

	internalApp "github.com/felixgeelhaar/crewplan/internal/app"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/pkg/config"
	"github.com/google/uuid"
)

// App holds the CLI application dependencies.
type App struct {
	Config  *config.Config
	Catalog *domain.Catalog

	// Participant and availability administration
	RegisterParticipantHandler *commands.RegisterParticipantHandler
	UpsertSlotHandler          *commands.UpsertSlotHandler
	ImportAvailabilityHandler  *commands.ImportAvailabilityHandler

	// Booking
	CommitAppointmentHandler  *commands.CommitAppointmentHandler
	AutoScheduleHandler       *commands.AutoScheduleHandler
	ResolveConflictHandler    *commands.ResolveConflictHandler
	CancelAppointmentHandler  *commands.CancelAppointmentHandler
	RecheckWeatherHandler     *commands.RecheckWeatherHandler
	RespondParticipantHandler *commands.RespondParticipantHandler

	// Queries
	FindSlotsHandler        *queries.FindSlotsHandler
	GetAppointmentHandler   *queries.GetAppointmentHandler
	ListAuditHandler        *queries.ListAuditHandler
	ListParticipantsHandler *queries.ListParticipantsHandler

	// OperatorID is recorded as the actor of every command.
	OperatorID uuid.UUID

	flush func(ctx context.Context) error
	close func()
}

// NewApp creates a CLI application backed by the container.
func NewApp(c *internalApp.Container, operatorID uuid.UUID) *App {
	return &App{
		Config:                     c.Config,
		Catalog:                    c.Catalog,
		RegisterParticipantHandler: c.RegisterParticipantHandler,
		UpsertSlotHandler:          c.UpsertSlotHandler,
		ImportAvailabilityHandler:  c.ImportAvailabilityHandler,
		CommitAppointmentHandler:   c.CommitAppointmentHandler,
		AutoScheduleHandler:        c.AutoScheduleHandler,
		ResolveConflictHandler:     c.ResolveConflictHandler,
		CancelAppointmentHandler:   c.CancelAppointmentHandler,
		RecheckWeatherHandler:      c.RecheckWeatherHandler,
		RespondParticipantHandler:  c.RespondParticipantHandler,
		FindSlotsHandler:           c.FindSlotsHandler,
		GetAppointmentHandler:      c.GetAppointmentHandler,
		ListAuditHandler:           c.ListAuditHandler,
		ListParticipantsHandler:    c.ListParticipantsHandler,
		OperatorID:                 operatorID,
		flush:                      c.FlushOutbox,
		close:                      c.Close,
	}
}

// Flush publishes the events written by the last command. Without a worker
// running, this is the only point where the outbox drains.
func (a *App) Flush(ctx context.Context) {
	if a == nil || a.flush == nil {
		return
	}
	if err := a.flush(ctx); err != nil {
		Logger().Warn("failed to flush outbox", "error", err)
	}
}

// Close releases the container behind the app.
func (a *App) Close() {
	if a == nil || a.close == nil {
		return
	}
	a.close()
	a.close = nil
}

// app is the global CLI application instance.
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
