package queries

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
)

// FindSlotsQuery contains the parameters for a candidate search.
type FindSlotsQuery struct {
	Request domain.SchedulingRequest
	// Limit truncates the ranked list. Zero returns every candidate.
	Limit int
	// Exclude drops participant/window combinations from the search.
	Exclude []domain.Exclusion
}

// FindSlotsResult is the ranked answer to a search.
type FindSlotsResult struct {
	Request    domain.SchedulingRequest `json:"request"`
	Type       domain.AppointmentType   `json:"type"`
	Candidates []domain.CandidateSlot   `json:"candidates"`
	Total      int                      `json:"total"`
}

// Lookup returns the candidate led by participantID starting at start.
func (r *FindSlotsResult) Lookup(participantID uuid.UUID, start time.Time) (domain.CandidateSlot, bool) {
	for _, c := range r.Candidates {
		if c.ParticipantID == participantID && c.Window.Start.Equal(start) {
			return c, true
		}
	}
	return domain.CandidateSlot{}, false
}

// FindSlotsHandler handles the FindSlotsQuery.
type FindSlotsHandler struct {
	planner *services.Planner
	audit   domain.AuditRepository
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewFindSlotsHandler creates a new FindSlotsHandler. audit may be nil.
func NewFindSlotsHandler(planner *services.Planner, audit domain.AuditRepository, logger *slog.Logger) *FindSlotsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FindSlotsHandler{planner: planner, audit: audit, logger: logger, metrics: observability.NoopMetrics{}}
}

// WithMetrics records search timings on m.
func (h *FindSlotsHandler) WithMetrics(m observability.Metrics) *FindSlotsHandler {
	if m != nil {
		h.metrics = m
	}
	return h
}

// Handle executes the FindSlotsQuery. It reserves nothing; a search that finds
// nothing returns a *domain.NoAvailabilityError naming the failing constraint.
func (h *FindSlotsHandler) Handle(ctx context.Context, query FindSlotsQuery) (*FindSlotsResult, error) {
	return observability.TimeOperationResult(ctx, h.logger, h.metrics, "find_slots", func() (*FindSlotsResult, error) {
		return h.find(ctx, query)
	})
}

func (h *FindSlotsHandler) find(ctx context.Context, query FindSlotsQuery) (*FindSlotsResult, error) {
	plan, err := h.planner.FindSlots(ctx, query.Request, services.SearchOptions{Exclusions: query.Exclude})
	if err != nil {
		return nil, err
	}
	result := &FindSlotsResult{
		Request:    plan.Request,
		Type:       plan.Type,
		Candidates: plan.Candidates,
		Total:      len(plan.Candidates),
	}
	if query.Limit > 0 && len(result.Candidates) > query.Limit {
		result.Candidates = result.Candidates[:query.Limit]
	}

	if best, ok := plan.Best(); ok && h.audit != nil {
		entry := domain.NewAuditEntry(uuid.Nil, domain.AuditFound, true,
			fmt.Sprintf("%d candidates for %s", result.Total, plan.Request.Kind)).WithCandidate(best)
		entry.RequestID = plan.Request.RequestID
		if err := h.audit.Append(ctx, entry); err != nil {
			h.logger.WarnContext(ctx, "audit append failed", "error", err)
		}
	}
	return result, nil
}
