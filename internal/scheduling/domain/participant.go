package domain

import (
	"sort"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/crewplan/internal/shared/domain"
	"github.com/google/uuid"
)

// Participant is a bookable field team member.
type Participant struct {
	sharedDomain.BaseEntity
	name              string
	skills            []string
	homeLocation      Location
	dailyCap          int
	travelRadiusMiles float64
	active            bool
}

// NewParticipant creates a participant. A zero daily cap or radius means unlimited.
func NewParticipant(name string, skills []string, home Location, dailyCap int, travelRadiusMiles float64) (*Participant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewValidationError("name", "is required")
	}
	if dailyCap < 0 {
		return nil, NewValidationError("daily_cap", "must not be negative")
	}
	if travelRadiusMiles < 0 {
		return nil, NewValidationError("travel_radius", "must not be negative")
	}
	if err := home.Validate(); err != nil {
		return nil, err
	}
	return &Participant{
		BaseEntity:        sharedDomain.NewBaseEntity(),
		name:              strings.TrimSpace(name),
		skills:            normalizeSkills(skills),
		homeLocation:      home,
		dailyCap:          dailyCap,
		travelRadiusMiles: travelRadiusMiles,
		active:            true,
	}, nil
}

// RehydrateParticipant recreates a participant from persisted state.
func RehydrateParticipant(
	id uuid.UUID,
	name string,
	skills []string,
	home Location,
	dailyCap int,
	travelRadiusMiles float64,
	active bool,
	createdAt, updatedAt time.Time,
) *Participant {
	return &Participant{
		BaseEntity:        sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		name:              name,
		skills:            normalizeSkills(skills),
		homeLocation:      home,
		dailyCap:          dailyCap,
		travelRadiusMiles: travelRadiusMiles,
		active:            active,
	}
}

func (p *Participant) Name() string               { return p.name }
func (p *Participant) HomeLocation() Location     { return p.homeLocation }
func (p *Participant) DailyCap() int              { return p.dailyCap }
func (p *Participant) TravelRadiusMiles() float64 { return p.travelRadiusMiles }
func (p *Participant) IsActive() bool             { return p.active }

// Skills returns a copy of the participant's skill tags.
func (p *Participant) Skills() []string {
	out := make([]string, len(p.skills))
	copy(out, p.skills)
	return out
}

// HasSkills reports whether every required skill is held.
func (p *Participant) HasSkills(required []string) bool {
	for _, r := range required {
		if !p.hasSkill(r) {
			return false
		}
	}
	return true
}

// CountSkills returns how many of the given skills the participant holds.
func (p *Participant) CountSkills(skills []string) int {
	n := 0
	for _, s := range skills {
		if p.hasSkill(s) {
			n++
		}
	}
	return n
}

// CanReach reports whether site lies within the travel radius of home.
func (p *Participant) CanReach(site Location) bool {
	if p.travelRadiusMiles == 0 {
		return true
	}
	return p.homeLocation.DistanceMiles(site) <= p.travelRadiusMiles
}

// AtCap reports whether load appointments already fill the daily cap.
func (p *Participant) AtCap(load int) bool {
	return p.dailyCap > 0 && load >= p.dailyCap
}

// UpdateProfile replaces the mutable attributes.
func (p *Participant) UpdateProfile(skills []string, home Location, dailyCap int, travelRadiusMiles float64) error {
	if dailyCap < 0 || travelRadiusMiles < 0 {
		return NewValidationError("participant", "cap and radius must not be negative")
	}
	if err := home.Validate(); err != nil {
		return err
	}
	p.skills = normalizeSkills(skills)
	p.homeLocation = home
	p.dailyCap = dailyCap
	p.travelRadiusMiles = travelRadiusMiles
	p.Touch()
	return nil
}

// Deactivate removes the participant from the bookable pool.
func (p *Participant) Deactivate() {
	p.active = false
	p.Touch()
}

func (p *Participant) hasSkill(skill string) bool {
	skill = strings.ToLower(strings.TrimSpace(skill))
	i := sort.SearchStrings(p.skills, skill)
	return i < len(p.skills) && p.skills[i] == skill
}

func normalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
