package domain

import (
	"fmt"
	"time"

	sharedDomain "github.com/felixgeelhaar/crewplan/internal/shared/domain"
	"github.com/google/uuid"
)

// CoordinationStatus is the quorum state of a multi-participant proposal.
type CoordinationStatus string

const (
	CoordinationProposed           CoordinationStatus = "proposed"
	CoordinationPartiallyConfirmed CoordinationStatus = "partially_confirmed"
	CoordinationConfirmed          CoordinationStatus = "confirmed"
	CoordinationQuorumTimeout      CoordinationStatus = "quorum_timeout"
	CoordinationCancelled          CoordinationStatus = "cancelled"
	CoordinationRescheduled        CoordinationStatus = "rescheduled"
)

// MemberState tracks one participant's answer.
type MemberState string

const (
	MemberPending  MemberState = "pending"
	MemberHeld     MemberState = "held"
	MemberDeclined MemberState = "declined"
)

// GroupMember is one invited participant of a coordination group.
type GroupMember struct {
	ParticipantID uuid.UUID   `json:"participant_id"`
	SlotID        uuid.UUID   `json:"slot_id"`
	State         MemberState `json:"state"`
	RespondedAt   *time.Time  `json:"responded_at,omitempty"`
}

// CoordinationGroup tracks provisional holds until quorum, with the lead always included.
type CoordinationGroup struct {
	sharedDomain.BaseEntity
	appointmentID uuid.UUID
	lead          uuid.UUID
	members       []GroupMember
	minQuorum     int
	deadline      time.Time
	status        CoordinationStatus
}

// NewCoordinationGroup opens coordination for an appointment. members must include the lead.
func NewCoordinationGroup(appointmentID, lead uuid.UUID, members []GroupMember, minQuorum int, deadline time.Time) (*CoordinationGroup, error) {
	if minQuorum < 1 || minQuorum > len(members) {
		return nil, NewValidationError("min_quorum", fmt.Sprintf("must be between 1 and %d", len(members)))
	}
	g := &CoordinationGroup{
		BaseEntity:    sharedDomain.NewBaseEntity(),
		appointmentID: appointmentID,
		lead:          lead,
		minQuorum:     minQuorum,
		deadline:      deadline,
		status:        CoordinationProposed,
	}
	leadFound := false
	for _, m := range members {
		m.State = MemberPending
		m.RespondedAt = nil
		g.members = append(g.members, m)
		if m.ParticipantID == lead {
			leadFound = true
		}
	}
	if !leadFound {
		return nil, NewValidationError("lead", "must be a group member")
	}
	return g, nil
}

// RehydrateCoordinationGroup recreates a group from persisted state.
func RehydrateCoordinationGroup(
	id, appointmentID, lead uuid.UUID,
	members []GroupMember,
	minQuorum int,
	deadline time.Time,
	status CoordinationStatus,
	createdAt, updatedAt time.Time,
) *CoordinationGroup {
	return &CoordinationGroup{
		BaseEntity:    sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		appointmentID: appointmentID,
		lead:          lead,
		members:       members,
		minQuorum:     minQuorum,
		deadline:      deadline,
		status:        status,
	}
}

func (g *CoordinationGroup) AppointmentID() uuid.UUID   { return g.appointmentID }
func (g *CoordinationGroup) Lead() uuid.UUID            { return g.lead }
func (g *CoordinationGroup) MinQuorum() int             { return g.minQuorum }
func (g *CoordinationGroup) Deadline() time.Time        { return g.deadline }
func (g *CoordinationGroup) Status() CoordinationStatus { return g.status }

// Members returns a copy of the member list.
func (g *CoordinationGroup) Members() []GroupMember {
	return append([]GroupMember(nil), g.members...)
}

// Member returns the member entry for a participant.
func (g *CoordinationGroup) Member(participantID uuid.UUID) (GroupMember, bool) {
	for _, m := range g.members {
		if m.ParticipantID == participantID {
			return m, true
		}
	}
	return GroupMember{}, false
}

// IsOpen reports whether members may still respond.
func (g *CoordinationGroup) IsOpen() bool {
	return g.status == CoordinationProposed || g.status == CoordinationPartiallyConfirmed
}

// RecordHold marks a participant's provisional reservation as held.
func (g *CoordinationGroup) RecordHold(participantID uuid.UUID, now time.Time) error {
	if err := g.respond(participantID, MemberHeld, now); err != nil {
		return err
	}
	g.status = CoordinationPartiallyConfirmed
	return nil
}

// RecordDecline marks a participant as unavailable.
func (g *CoordinationGroup) RecordDecline(participantID uuid.UUID, now time.Time) error {
	return g.respond(participantID, MemberDeclined, now)
}

func (g *CoordinationGroup) respond(participantID uuid.UUID, state MemberState, now time.Time) error {
	if !g.IsOpen() {
		return ErrCoordinationClosed
	}
	for i := range g.members {
		if g.members[i].ParticipantID != participantID {
			continue
		}
		at := now.UTC()
		g.members[i].State = state
		g.members[i].RespondedAt = &at
		g.Touch()
		return nil
	}
	return ErrNotGroupMember
}

// HeldParticipants lists members with a provisional hold.
func (g *CoordinationGroup) HeldParticipants() []uuid.UUID {
	return g.withState(MemberHeld)
}

// PendingParticipants lists members that have not answered.
func (g *CoordinationGroup) PendingParticipants() []uuid.UUID {
	return g.withState(MemberPending)
}

func (g *CoordinationGroup) withState(state MemberState) []uuid.UUID {
	var out []uuid.UUID
	for _, m := range g.members {
		if m.State == state {
			out = append(out, m.ParticipantID)
		}
	}
	return out
}

// QuorumMet reports whether enough members hold reservations and the lead is one of them.
func (g *CoordinationGroup) QuorumMet() bool {
	lead, ok := g.Member(g.lead)
	return ok && lead.State == MemberHeld && len(g.HeldParticipants()) >= g.minQuorum
}

// CanStillReachQuorum reports whether pending answers could still complete the group.
func (g *CoordinationGroup) CanStillReachQuorum() bool {
	lead, ok := g.Member(g.lead)
	if !ok || lead.State == MemberDeclined {
		return false
	}
	return len(g.HeldParticipants())+len(g.PendingParticipants()) >= g.minQuorum
}

// IsExpired reports whether the coordination window has elapsed on an open group.
func (g *CoordinationGroup) IsExpired(now time.Time) bool {
	return g.IsOpen() && !now.Before(g.deadline)
}

// Confirm closes the group once quorum holds.
func (g *CoordinationGroup) Confirm() error {
	if !g.IsOpen() {
		return ErrCoordinationClosed
	}
	if !g.QuorumMet() {
		return fmt.Errorf("%w: %d of %d held", ErrQuorumNotMet, len(g.HeldParticipants()), g.minQuorum)
	}
	return g.transition(CoordinationConfirmed)
}

// TimeOut closes an expired group that never reached quorum.
func (g *CoordinationGroup) TimeOut(now time.Time) error {
	if !g.IsExpired(now) {
		return fmt.Errorf("%w: coordination window open until %s", ErrInvalidTransition, g.deadline.Format(time.RFC3339))
	}
	if g.QuorumMet() {
		return fmt.Errorf("%w: quorum already met", ErrInvalidTransition)
	}
	return g.transition(CoordinationQuorumTimeout)
}

// Cancel abandons the group.
func (g *CoordinationGroup) Cancel() error {
	if !g.IsOpen() && g.status != CoordinationQuorumTimeout {
		return ErrCoordinationClosed
	}
	return g.transition(CoordinationCancelled)
}

// MarkRescheduled records that a successor appointment replaced the group.
func (g *CoordinationGroup) MarkRescheduled() error {
	if !g.IsOpen() && g.status != CoordinationQuorumTimeout && g.status != CoordinationConfirmed {
		return ErrCoordinationClosed
	}
	return g.transition(CoordinationRescheduled)
}

func (g *CoordinationGroup) transition(to CoordinationStatus) error {
	g.status = to
	g.Touch()
	return nil
}
