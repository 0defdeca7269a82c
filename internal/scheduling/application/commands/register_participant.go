package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// RegisterParticipantCommand creates or updates a bookable participant.
type RegisterParticipantCommand struct {
	// ID updates an existing participant when set.
	ID                uuid.UUID
	Name              string
	Skills            []string
	Home              domain.Location
	DailyCap          int
	TravelRadiusMiles float64
	Deactivate        bool
}

// RegisterParticipantHandler handles the RegisterParticipantCommand.
type RegisterParticipantHandler struct {
	participants domain.ParticipantRepository
	logger       *slog.Logger
}

// NewRegisterParticipantHandler creates a new RegisterParticipantHandler.
func NewRegisterParticipantHandler(participants domain.ParticipantRepository, logger *slog.Logger) *RegisterParticipantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterParticipantHandler{participants: participants, logger: logger}
}

// Handle executes the RegisterParticipantCommand.
func (h *RegisterParticipantHandler) Handle(ctx context.Context, cmd RegisterParticipantCommand) (*domain.Participant, error) {
	var p *domain.Participant
	if cmd.ID != uuid.Nil {
		existing, err := h.participants.FindByID(ctx, cmd.ID)
		switch {
		case err == nil:
			if err := existing.UpdateProfile(cmd.Skills, cmd.Home, cmd.DailyCap, cmd.TravelRadiusMiles); err != nil {
				return nil, err
			}
			p = existing
		case !errors.Is(err, domain.ErrParticipantNotFound):
			return nil, err
		}
	}
	if p == nil {
		created, err := domain.NewParticipant(cmd.Name, cmd.Skills, cmd.Home, cmd.DailyCap, cmd.TravelRadiusMiles)
		if err != nil {
			return nil, err
		}
		p = created
	}
	if cmd.Deactivate {
		p.Deactivate()
	}
	if err := h.participants.Save(ctx, p); err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "participant registered",
		"participant_id", p.ID(),
		"skills", p.Skills(),
		"active", p.IsActive(),
	)
	return p, nil
}
