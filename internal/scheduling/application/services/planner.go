package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
	"github.com/google/uuid"
)

// SearchOptions narrows a candidate search.
type SearchOptions struct {
	Exclusions []domain.Exclusion
	// IgnoreAppointment hides the holds of an appointment being moved.
	IgnoreAppointment uuid.UUID
}

// PlanResult is the ranked outcome of a candidate search.
type PlanResult struct {
	Request    domain.SchedulingRequest
	Type       domain.AppointmentType
	Candidates []domain.CandidateSlot
}

// Best returns the top-ranked candidate.
func (r *PlanResult) Best() (domain.CandidateSlot, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return domain.CandidateSlot{}, false
	}
	return r.Candidates[0], true
}

// Planner runs the read-only pipeline: registry query, parallel enrichment,
// pure scoring. It holds no locks and reserves nothing.
type Planner struct {
	catalog  atomic.Pointer[domain.Catalog]
	registry *Registry
	enricher *Enricher
	scoring  *ScoringEngine
	logger   *slog.Logger
	metrics  observability.Metrics
}

// NewPlanner creates a planner.
func NewPlanner(
	catalog *domain.Catalog,
	registry *Registry,
	enricher *Enricher,
	scoring *ScoringEngine,
	logger *slog.Logger,
	metrics observability.Metrics,
) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if catalog == nil {
		catalog = domain.DefaultCatalog()
	}
	p := &Planner{
		registry: registry,
		enricher: enricher,
		scoring:  scoring,
		logger:   logger,
		metrics:  metrics,
	}
	p.catalog.Store(catalog)
	return p
}

// Catalog returns the active appointment-type catalog.
func (p *Planner) Catalog() *domain.Catalog {
	return p.catalog.Load()
}

// SetCatalog swaps the catalog for subsequent requests.
func (p *Planner) SetCatalog(c *domain.Catalog) {
	if c != nil {
		p.catalog.Store(c)
	}
}

// Registry returns the availability registry the planner queries.
func (p *Planner) Registry() *Registry {
	return p.registry
}

// Scoring returns the scoring engine.
func (p *Planner) Scoring() *ScoringEngine {
	return p.scoring
}

// Normalize validates req in place and resolves its appointment type.
func (p *Planner) Normalize(req *domain.SchedulingRequest) (domain.AppointmentType, error) {
	return req.Normalize(p.Catalog())
}

// FindSlots returns every feasible candidate for req, ranked best first.
// It returns a *domain.NoAvailabilityError naming the failing constraint when
// nothing qualifies.
func (p *Planner) FindSlots(ctx context.Context, req domain.SchedulingRequest, opts SearchOptions) (*PlanResult, error) {
	start := time.Now()
	apptType, err := p.Normalize(&req)
	if err != nil {
		return nil, err
	}

	var drafts []Draft
	if req.IsMultiParticipant() {
		drafts, err = p.teamDrafts(ctx, req, apptType, opts)
	} else {
		drafts, err = p.poolDrafts(ctx, req, apptType, opts)
	}
	if err != nil {
		return nil, err
	}

	enriched, err := p.enricher.Enrich(ctx, req, apptType.WeatherProfile, drafts)
	if err != nil {
		return nil, err
	}
	ranked := p.scoring.Rank(enriched, ContextFor(req, apptType))

	p.metrics.Counter(observability.MetricCandidatesGenerated, int64(len(ranked)), observability.T("kind", string(req.Kind)))
	p.logger.InfoContext(ctx, "candidates ranked",
		"request_id", req.RequestID,
		"kind", req.Kind,
		"candidates", len(ranked),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &PlanResult{Request: req, Type: apptType, Candidates: ranked}, nil
}

func (p *Planner) poolDrafts(ctx context.Context, req domain.SchedulingRequest, apptType domain.AppointmentType, opts SearchOptions) ([]Draft, error) {
	result, err := p.registry.QueryAvailable(ctx, AvailabilityQuery{
		Range:             req.SearchRange,
		Duration:          req.Duration,
		Location:          req.Location,
		RequiredSkills:    apptType.RequiredSkills,
		Participants:      req.RequiredParticipants,
		Exclusions:        opts.Exclusions,
		IgnoreAppointment: opts.IgnoreAppointment,
		Preferred:         req.PreferredWindows,
		Limit:             p.registry.Config().MaxOptionsPerParticipant,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Options) == 0 {
		return nil, result.Diagnostics.FailingConstraint()
	}
	drafts := make([]Draft, len(result.Options))
	for i, opt := range result.Options {
		drafts[i] = DraftFromOption(opt)
	}
	return drafts, nil
}

// teamDrafts pairs each free window of the lead with the team members free
// for exactly that window. A window qualifies when the lead plus the free
// members reach the quorum.
func (p *Planner) teamDrafts(ctx context.Context, req domain.SchedulingRequest, apptType domain.AppointmentType, opts SearchOptions) ([]Draft, error) {
	lead := req.Lead()
	leadResult, err := p.registry.QueryAvailable(ctx, AvailabilityQuery{
		Range:             req.SearchRange,
		Duration:          req.Duration,
		Location:          req.Location,
		RequiredSkills:    apptType.RequiredSkills,
		Participants:      []uuid.UUID{lead},
		Exclusions:        opts.Exclusions,
		IgnoreAppointment: opts.IgnoreAppointment,
	})
	if err != nil {
		return nil, err
	}
	if len(leadResult.Options) == 0 {
		return nil, leadResult.Diagnostics.FailingConstraint()
	}

	team := req.AllParticipants()[1:]
	teamResult, err := p.registry.QueryAvailable(ctx, AvailabilityQuery{
		Range:             req.SearchRange,
		Duration:          req.Duration,
		Location:          req.Location,
		Participants:      team,
		Exclusions:        opts.Exclusions,
		IgnoreAppointment: opts.IgnoreAppointment,
	})
	if err != nil {
		return nil, err
	}

	type memberSlot struct {
		participant uuid.UUID
		slot        uuid.UUID
	}
	free := make(map[string][]memberSlot)
	for _, opt := range teamResult.Options {
		key := opt.Window.String()
		seen := false
		for _, m := range free[key] {
			if m.participant == opt.Participant.ID() {
				seen = true
				break
			}
		}
		if !seen {
			free[key] = append(free[key], memberSlot{participant: opt.Participant.ID(), slot: opt.Slot.ID()})
		}
	}

	var drafts []Draft
	for _, opt := range leadResult.Options {
		available := free[opt.Window.String()]
		if 1+len(available) < req.MinQuorum {
			continue
		}
		d := DraftFromOption(opt)
		// keep the request's member order
		for _, id := range team {
			for _, m := range available {
				if m.participant == id {
					d.Candidate.Team = append(d.Candidate.Team, m.participant)
					d.Candidate.TeamSlots = append(d.Candidate.TeamSlots, m.slot)
				}
			}
		}
		drafts = append(drafts, d)
	}
	if len(drafts) == 0 {
		return nil, &domain.NoAvailabilityError{
			Constraint: domain.ConstraintTeamAvailability,
			Detail:     fmt.Sprintf("no window where %d of %d participants are free together", req.MinQuorum, len(team)+1),
		}
	}
	return drafts, nil
}
