package domain

import "github.com/google/uuid"

// ScoreBreakdown itemises the additive scoring factors of one candidate.
type ScoreBreakdown struct {
	Base           float64 `json:"base"`
	Priority       float64 `json:"priority"`
	Travel         float64 `json:"travel"`
	Weather        float64 `json:"weather"`
	Specialization float64 `json:"specialization"`
	Preference     float64 `json:"preference"`
	Workload       float64 `json:"workload"`
	Total          float64 `json:"total"`
}

// CandidateSlot is a scored proposal pairing a participant with a window.
// It lives for one scheduling request.
type CandidateSlot struct {
	ParticipantID     uuid.UUID      `json:"participant_id"`
	ParticipantName   string         `json:"participant_name,omitempty"`
	Team              []uuid.UUID    `json:"team,omitempty"`
	SlotID            uuid.UUID      `json:"slot_id"`
	TeamSlots         []uuid.UUID    `json:"team_slots,omitempty"`
	Window            TimeRange      `json:"window"`
	TravelMinutes     int            `json:"travel_minutes"`
	TravelMeasured    bool           `json:"travel_measured"`
	Weather           WeatherCheck   `json:"weather"`
	ParticipantSkills []string       `json:"participant_skills,omitempty"`
	DayLoad           int            `json:"day_load"`
	DailyCap          int            `json:"daily_cap"`
	Score             float64        `json:"score"`
	Breakdown         ScoreBreakdown `json:"breakdown"`
}

// WeatherSuitable reports the weather flag surfaced to callers.
func (c CandidateSlot) WeatherSuitable() bool {
	return c.Weather.Suitable
}

// Participants returns the lead followed by the team.
func (c CandidateSlot) Participants() []uuid.UUID {
	out := make([]uuid.UUID, 0, 1+len(c.Team))
	out = append(out, c.ParticipantID)
	return append(out, c.Team...)
}

// SlotFor returns the slot backing participant id within the candidate.
func (c CandidateSlot) SlotFor(id uuid.UUID) (uuid.UUID, bool) {
	if id == c.ParticipantID {
		return c.SlotID, true
	}
	for i, member := range c.Team {
		if member == id && i < len(c.TeamSlots) {
			return c.TeamSlots[i], true
		}
	}
	return uuid.Nil, false
}

// Key identifies a candidate's participant and window for exclusion lists.
func (c CandidateSlot) Key() Exclusion {
	return Exclusion{ParticipantID: c.ParticipantID, Window: c.Window}
}

// Exclusion removes a participant, a window, or both from availability queries.
type Exclusion struct {
	ParticipantID uuid.UUID `json:"participant_id,omitempty"`
	Window        TimeRange `json:"window,omitempty"`
}

// Matches reports whether participant and window fall under the exclusion.
func (e Exclusion) Matches(participantID uuid.UUID, window TimeRange) bool {
	if e.ParticipantID != uuid.Nil && e.ParticipantID != participantID {
		return false
	}
	if !e.Window.IsZero() && !e.Window.Overlaps(window) {
		return false
	}
	return e.ParticipantID != uuid.Nil || !e.Window.IsZero()
}
