package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConflictType represents the type of scheduling conflict.
type ConflictType string

const (
	// ConflictTimeOverlap indicates the participant now holds an overlapping reservation.
	ConflictTimeOverlap ConflictType = "time_overlap"
	// ConflictTravelInfeasible indicates the gap since the prior appointment is shorter than the drive.
	ConflictTravelInfeasible ConflictType = "travel_infeasible"
	// ConflictTeamUnavailable indicates a required team member was booked elsewhere.
	ConflictTeamUnavailable ConflictType = "team_unavailable"
	// ConflictWeatherGated indicates the forecast fails the appointment's weather profile.
	ConflictWeatherGated ConflictType = "weather_gated"
	// ConflictQuorumTimeout indicates coordination expired before quorum.
	ConflictQuorumTimeout ConflictType = "quorum_timeout"
)

// Severity grades how a conflict affects commit.
type Severity string

const (
	SeverityHard          Severity = "hard"
	SeveritySoft          Severity = "soft"
	SeverityInformational Severity = "informational"
)

// Blocks reports whether a conflict of this severity stops a commit.
// Soft conflicts block unless the caller accepts them.
func (s Severity) Blocks(acceptSoft bool) bool {
	switch s {
	case SeverityHard:
		return true
	case SeveritySoft:
		return !acceptSoft
	default:
		return false
	}
}

// ResolutionKind names an advisor action.
type ResolutionKind string

const (
	ResolutionAlternateSlot     ResolutionKind = "alternate_slot"
	ResolutionReassign          ResolutionKind = "reassign"
	ResolutionReduceScope       ResolutionKind = "reduce_scope"
	ResolutionUseBackupDate     ResolutionKind = "use_backup_date"
	ResolutionRequestBackupDate ResolutionKind = "request_backup_date"
	ResolutionDefer             ResolutionKind = "defer"
	ResolutionAcceptSoft        ResolutionKind = "accept_soft"
)

// ResolutionOption is one ranked, unapplied remedy for a conflict.
type ResolutionOption struct {
	ID           string         `json:"id"`
	Kind         ResolutionKind `json:"kind"`
	Description  string         `json:"description"`
	Score        float64        `json:"score"`
	Candidate    *CandidateSlot `json:"candidate,omitempty"`
	BackupDate   *time.Time     `json:"backup_date,omitempty"`
	Participants []uuid.UUID    `json:"participants,omitempty"`
}

// Actionable reports whether the option carries a candidate to commit.
func (o ResolutionOption) Actionable() bool {
	return o.Candidate != nil
}

// Conflict is a detected violation, persisted with its options for later resolution.
type Conflict struct {
	id             uuid.UUID
	conflictType   ConflictType
	severity       Severity
	appointmentIDs []uuid.UUID
	participantID  uuid.UUID
	window         TimeRange
	message        string
	options        []ResolutionOption
	request        SchedulingRequest
	candidate      CandidateSlot
	resolvedOption string
	resolvedAt     *time.Time
	createdAt      time.Time
}

// NewConflict creates a new conflict.
func NewConflict(conflictType ConflictType, severity Severity, participantID uuid.UUID, window TimeRange, message string) *Conflict {
	return &Conflict{
		id:            uuid.New(),
		conflictType:  conflictType,
		severity:      severity,
		participantID: participantID,
		window:        window,
		message:       message,
		createdAt:     time.Now().UTC(),
	}
}

// ConflictSnapshot carries persisted state for rehydration.
type ConflictSnapshot struct {
	ID             uuid.UUID
	Type           ConflictType
	Severity       Severity
	AppointmentIDs []uuid.UUID
	ParticipantID  uuid.UUID
	Window         TimeRange
	Message        string
	Options        []ResolutionOption
	Request        SchedulingRequest
	Candidate      CandidateSlot
	ResolvedOption string
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

// RehydrateConflict recreates a conflict from persisted state.
func RehydrateConflict(s ConflictSnapshot) *Conflict {
	return &Conflict{
		id:             s.ID,
		conflictType:   s.Type,
		severity:       s.Severity,
		appointmentIDs: s.AppointmentIDs,
		participantID:  s.ParticipantID,
		window:         s.Window,
		message:        s.Message,
		options:        s.Options,
		request:        s.Request,
		candidate:      s.Candidate,
		resolvedOption: s.ResolvedOption,
		resolvedAt:     s.ResolvedAt,
		createdAt:      s.CreatedAt,
	}
}

// Snapshot exports the persisted state.
func (c *Conflict) Snapshot() ConflictSnapshot {
	return ConflictSnapshot{
		ID:             c.id,
		Type:           c.conflictType,
		Severity:       c.severity,
		AppointmentIDs: c.AppointmentIDs(),
		ParticipantID:  c.participantID,
		Window:         c.window,
		Message:        c.message,
		Options:        c.Options(),
		Request:        c.request,
		Candidate:      c.candidate,
		ResolvedOption: c.resolvedOption,
		ResolvedAt:     c.resolvedAt,
		CreatedAt:      c.createdAt,
	}
}

// ID returns the conflict's unique identifier.
func (c *Conflict) ID() uuid.UUID {
	return c.id
}

// Type returns the type of conflict.
func (c *Conflict) Type() ConflictType {
	return c.conflictType
}

// Severity returns how the conflict affects commit.
func (c *Conflict) Severity() Severity {
	return c.severity
}

// ParticipantID returns the participant the conflict concerns, if any.
func (c *Conflict) ParticipantID() uuid.UUID {
	return c.participantID
}

// Window returns the contested window.
func (c *Conflict) Window() TimeRange {
	return c.window
}

// Message returns a human-readable explanation.
func (c *Conflict) Message() string {
	return c.message
}

// AppointmentIDs returns the affected appointments.
func (c *Conflict) AppointmentIDs() []uuid.UUID {
	return append([]uuid.UUID(nil), c.appointmentIDs...)
}

// Options returns the ranked resolution options.
func (c *Conflict) Options() []ResolutionOption {
	return append([]ResolutionOption(nil), c.options...)
}

// Request returns the scheduling request the conflict arose from.
func (c *Conflict) Request() SchedulingRequest {
	return c.request
}

// Candidate returns the candidate that failed validation.
func (c *Conflict) Candidate() CandidateSlot {
	return c.candidate
}

// ResolvedOption returns the chosen option ID, if resolved.
func (c *Conflict) ResolvedOption() string {
	return c.resolvedOption
}

// ResolvedAt returns when the conflict was resolved.
func (c *Conflict) ResolvedAt() *time.Time {
	return c.resolvedAt
}

// CreatedAt returns when the conflict was created.
func (c *Conflict) CreatedAt() time.Time {
	return c.createdAt
}

// IsPending returns true if the conflict is not yet resolved.
func (c *Conflict) IsPending() bool {
	return c.resolvedAt == nil
}

// PrimaryAppointment returns the appointment the conflict was raised for.
func (c *Conflict) PrimaryAppointment() uuid.UUID {
	if len(c.appointmentIDs) == 0 {
		return uuid.Nil
	}
	return c.appointmentIDs[0]
}

// Attach links the conflict to the appointment it concerns and the context needed to re-plan.
func (c *Conflict) Attach(appointmentID uuid.UUID, req SchedulingRequest, candidate CandidateSlot) {
	c.appointmentIDs = append([]uuid.UUID{appointmentID}, c.appointmentIDs...)
	c.request = req
	c.candidate = candidate
}

// AddAffected records another appointment involved in the conflict.
func (c *Conflict) AddAffected(appointmentID uuid.UUID) {
	for _, id := range c.appointmentIDs {
		if id == appointmentID {
			return
		}
	}
	c.appointmentIDs = append(c.appointmentIDs, appointmentID)
}

// SetOptions replaces the options, numbering them in rank order.
func (c *Conflict) SetOptions(options []ResolutionOption) {
	c.options = make([]ResolutionOption, len(options))
	for i, o := range options {
		o.ID = fmt.Sprintf("opt-%d", i+1)
		c.options[i] = o
	}
}

// Option looks up an option by ID.
func (c *Conflict) Option(id string) (ResolutionOption, error) {
	for _, o := range c.options {
		if o.ID == id {
			return o, nil
		}
	}
	return ResolutionOption{}, ErrOptionNotFound
}

// Resolve records the chosen option.
func (c *Conflict) Resolve(optionID string, now time.Time) error {
	if !c.IsPending() {
		return ErrConflictResolved
	}
	if _, err := c.Option(optionID); err != nil {
		return err
	}
	at := now.UTC()
	c.resolvedOption = optionID
	c.resolvedAt = &at
	return nil
}

// Blocking filters the conflicts that stop a commit.
func Blocking(conflicts []*Conflict, acceptSoft bool) []*Conflict {
	var out []*Conflict
	for _, c := range conflicts {
		if c.severity.Blocks(acceptSoft) {
			out = append(out, c)
		}
	}
	return out
}
