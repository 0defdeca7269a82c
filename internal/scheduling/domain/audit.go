package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction describes what the engine decided.
type AuditAction string

const (
	AuditFound                AuditAction = "found"
	AuditCommitted            AuditAction = "committed"
	AuditProposed             AuditAction = "proposed"
	AuditRejected             AuditAction = "rejected"
	AuditConflictDetected     AuditAction = "conflict_detected"
	AuditReservationConflict  AuditAction = "reservation_conflict"
	AuditResolved             AuditAction = "resolved"
	AuditCancelled            AuditAction = "cancelled"
	AuditWeatherRechecked     AuditAction = "weather_rechecked"
	AuditQuorumTimeout        AuditAction = "quorum_timeout"
	AuditParticipantResponded AuditAction = "participant_responded"
)

// AuditEntry records why a slot was accepted, rejected or re-resolved.
type AuditEntry struct {
	ID            uuid.UUID       `json:"id"`
	AppointmentID uuid.UUID       `json:"appointment_id"`
	RequestID     uuid.UUID       `json:"request_id,omitempty"`
	Action        AuditAction     `json:"action"`
	ParticipantID uuid.UUID       `json:"participant_id,omitempty"`
	Window        TimeRange       `json:"window"`
	Success       bool            `json:"success"`
	Reason        string          `json:"reason,omitempty"`
	Breakdown     *ScoreBreakdown `json:"breakdown,omitempty"`
	ConflictIDs   []uuid.UUID     `json:"conflict_ids,omitempty"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// NewAuditEntry creates an entry stamped now.
func NewAuditEntry(appointmentID uuid.UUID, action AuditAction, success bool, reason string) AuditEntry {
	return AuditEntry{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Action:        action,
		Success:       success,
		Reason:        reason,
		RecordedAt:    time.Now().UTC(),
	}
}

// WithCandidate copies the candidate's participant, window and score breakdown.
func (e AuditEntry) WithCandidate(c CandidateSlot) AuditEntry {
	b := c.Breakdown
	e.ParticipantID = c.ParticipantID
	e.Window = c.Window
	e.Breakdown = &b
	return e
}

// WithConflicts records the conflicts behind the entry.
func (e AuditEntry) WithConflicts(conflicts []*Conflict) AuditEntry {
	for _, c := range conflicts {
		e.ConflictIDs = append(e.ConflictIDs, c.ID())
	}
	return e
}
