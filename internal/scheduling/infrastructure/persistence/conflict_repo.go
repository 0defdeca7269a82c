package persistence

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const conflictColumns = `id, conflict_type, severity, appointment_ids, primary_appointment_id,
	participant_id, starts_at, ends_at, message, detail, resolved_option, resolved_at, created_at`

// SQLConflictRepository implements domain.ConflictRepository.
type SQLConflictRepository struct {
	conn database.Connection
	d    database.Dialect
}

// NewSQLConflictRepository creates a conflict repository.
func NewSQLConflictRepository(conn database.Connection) *SQLConflictRepository {
	return &SQLConflictRepository{conn: conn, d: database.DialectOf(conn)}
}

// conflictDetail is the JSON column holding what a later resolve needs.
type conflictDetail struct {
	Options   []domain.ResolutionOption `json:"options"`
	Request   domain.SchedulingRequest  `json:"request"`
	Candidate domain.CandidateSlot      `json:"candidate"`
}

// Save persists a conflict (create or update).
func (r *SQLConflictRepository) Save(ctx context.Context, c *domain.Conflict) error {
	s := c.Snapshot()
	ids, err := database.JSONArg(nonNilIDs(s.AppointmentIDs))
	if err != nil {
		return err
	}
	detail, err := database.JSONArg(conflictDetail{Options: s.Options, Request: s.Request, Candidate: s.Candidate})
	if err != nil {
		return fmt.Errorf("encode conflict detail: %w", err)
	}
	var primary uuid.NullUUID
	if id := c.PrimaryAppointment(); id != uuid.Nil {
		primary = uuid.NullUUID{UUID: id, Valid: true}
	}
	var participant uuid.NullUUID
	if s.ParticipantID != uuid.Nil {
		participant = uuid.NullUUID{UUID: s.ParticipantID, Valid: true}
	}

	query := `
		INSERT INTO conflicts (` + conflictColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			appointment_ids = excluded.appointment_ids,
			primary_appointment_id = excluded.primary_appointment_id,
			detail = excluded.detail,
			resolved_option = excluded.resolved_option,
			resolved_at = excluded.resolved_at
	`
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err = exec.Exec(ctx, r.d.Rebind(query),
		s.ID,
		string(s.Type),
		string(s.Severity),
		ids,
		primary,
		participant,
		r.d.Time(s.Window.Start),
		r.d.Time(s.Window.End),
		s.Message,
		detail,
		s.ResolvedOption,
		r.d.NullTime(s.ResolvedAt),
		r.d.Time(s.CreatedAt),
	)
	return err
}

// FindByID retrieves a conflict by its ID.
func (r *SQLConflictRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE id = $1`
	exec := database.ExecutorFromContext(ctx, r.conn)
	c, err := scanConflict(exec.QueryRow(ctx, r.d.Rebind(query), id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrConflictNotFound
		}
		return nil, err
	}
	return c, nil
}

// FindByAppointment retrieves the conflicts raised for an appointment, oldest first.
func (r *SQLConflictRepository) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*domain.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts
		WHERE primary_appointment_id = $1
		ORDER BY created_at, id`
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.d.Rebind(query), appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*domain.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func scanConflict(row database.Row) (*domain.Conflict, error) {
	var (
		s           domain.ConflictSnapshot
		kind, sev   string
		ids, detail database.JSON
		primary     uuid.NullUUID
		participant uuid.NullUUID
		start, end  database.Timestamp
		resolvedAt  database.Timestamp
		createdAt   database.Timestamp
	)
	err := row.Scan(
		&s.ID,
		&kind,
		&sev,
		&ids,
		&primary,
		&participant,
		&start,
		&end,
		&s.Message,
		&detail,
		&s.ResolvedOption,
		&resolvedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	var d conflictDetail
	if err := detail.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode detail of conflict %s: %w", s.ID, err)
	}
	if err := ids.Decode(&s.AppointmentIDs); err != nil {
		return nil, fmt.Errorf("decode appointments of conflict %s: %w", s.ID, err)
	}
	s.Type = domain.ConflictType(kind)
	s.Severity = domain.Severity(sev)
	s.ParticipantID = participant.UUID
	s.Window = domain.TimeRange{Start: start.Time, End: end.Time}
	s.Options = d.Options
	s.Request = d.Request
	s.Candidate = d.Candidate
	s.ResolvedAt = resolvedAt.Ptr()
	s.CreatedAt = createdAt.Time
	return domain.RehydrateConflict(s), nil
}
