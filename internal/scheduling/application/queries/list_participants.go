package queries

import (
	"context"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
)

// ListParticipantsQuery filters the bookable pool by skill.
type ListParticipantsQuery struct {
	Skills []string
}

// ListParticipantsHandler handles the ListParticipantsQuery.
type ListParticipantsHandler struct {
	participants domain.ParticipantRepository
}

// NewListParticipantsHandler creates a new ListParticipantsHandler.
func NewListParticipantsHandler(participants domain.ParticipantRepository) *ListParticipantsHandler {
	return &ListParticipantsHandler{participants: participants}
}

// Handle executes the ListParticipantsQuery.
func (h *ListParticipantsHandler) Handle(ctx context.Context, query ListParticipantsQuery) ([]*domain.Participant, error) {
	return h.participants.FindActive(ctx, query.Skills)
}
