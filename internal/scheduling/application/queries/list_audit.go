package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// ListAuditQuery selects audit entries by appointment, or everything since a time.
type ListAuditQuery struct {
	AppointmentID uuid.UUID
	Since         time.Time
	Limit         int
}

// ListAuditHandler handles the ListAuditQuery.
type ListAuditHandler struct {
	audit domain.AuditRepository
}

// NewListAuditHandler creates a new ListAuditHandler.
func NewListAuditHandler(audit domain.AuditRepository) *ListAuditHandler {
	return &ListAuditHandler{audit: audit}
}

// Handle executes the ListAuditQuery.
func (h *ListAuditHandler) Handle(ctx context.Context, query ListAuditQuery) ([]domain.AuditEntry, error) {
	if query.AppointmentID != uuid.Nil {
		entries, err := h.audit.ListByAppointment(ctx, query.AppointmentID)
		if err != nil {
			return nil, err
		}
		if query.Limit > 0 && len(entries) > query.Limit {
			entries = entries[len(entries)-query.Limit:]
		}
		return entries, nil
	}
	since := query.Since
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}
	return h.audit.ListSince(ctx, since.UTC(), query.Limit)
}
