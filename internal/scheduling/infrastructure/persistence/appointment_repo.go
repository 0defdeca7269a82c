package persistence

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const appointmentColumns = `id, kind, priority, starts_at, ends_at, location, weather_dependent,
	backup_date, required_participants, optional_participants, lead_participant_id,
	min_quorum, status, weather_check, notes, customer_ref, score,
	rescheduled_from, rescheduled_to, cancel_reason, version, created_at, updated_at`

// SQLAppointmentRepository implements domain.AppointmentRepository.
type SQLAppointmentRepository struct {
	conn database.Connection
	d    database.Dialect
}

// NewSQLAppointmentRepository creates an appointment repository.
func NewSQLAppointmentRepository(conn database.Connection) *SQLAppointmentRepository {
	return &SQLAppointmentRepository{conn: conn, d: database.DialectOf(conn)}
}

// appointmentRow represents a database row for appointments.
type appointmentRow struct {
	ID               uuid.UUID
	Kind             string
	Priority         string
	StartsAt         database.Timestamp
	EndsAt           database.Timestamp
	Location         database.JSON
	WeatherDependent bool
	BackupDate       database.Timestamp
	Required         database.JSON
	Optional         database.JSON
	Lead             uuid.UUID
	MinQuorum        int
	Status           string
	WeatherCheck     database.JSON
	Notes            database.JSON
	CustomerRef      string
	Score            float64
	RescheduledFrom  uuid.NullUUID
	RescheduledTo    uuid.NullUUID
	CancelReason     string
	Version          int
	CreatedAt        database.Timestamp
	UpdatedAt        database.Timestamp
}

// Save persists an appointment. An update whose version no longer matches the
// stored row fails with domain.ErrOptimisticLocking.
func (r *SQLAppointmentRepository) Save(ctx context.Context, a *domain.Appointment) error {
	s := a.Snapshot()
	location, err := database.JSONArg(s.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	required, err := database.JSONArg(nonNilIDs(s.Required))
	if err != nil {
		return err
	}
	optional, err := database.JSONArg(nonNilIDs(s.Optional))
	if err != nil {
		return err
	}
	notes, err := database.JSONArg(nonNilStrings(s.Notes))
	if err != nil {
		return err
	}
	var check any
	if s.WeatherCheck != nil {
		if check, err = database.JSONArg(s.WeatherCheck); err != nil {
			return fmt.Errorf("encode weather check: %w", err)
		}
	}

	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			backup_date = excluded.backup_date,
			required_participants = excluded.required_participants,
			optional_participants = excluded.optional_participants,
			lead_participant_id = excluded.lead_participant_id,
			status = excluded.status,
			weather_check = excluded.weather_check,
			notes = excluded.notes,
			score = excluded.score,
			rescheduled_from = excluded.rescheduled_from,
			rescheduled_to = excluded.rescheduled_to,
			cancel_reason = excluded.cancel_reason,
			version = appointments.version + 1,
			updated_at = excluded.updated_at
		WHERE appointments.version = $21
		RETURNING version
	`

	var version int
	exec := database.ExecutorFromContext(ctx, r.conn)
	err = exec.QueryRow(ctx, r.d.Rebind(query),
		s.ID,
		string(s.Kind),
		string(s.Priority),
		r.d.Time(s.Window.Start),
		r.d.Time(s.Window.End),
		location,
		s.WeatherDependent,
		r.d.NullTime(s.BackupDate),
		required,
		optional,
		s.Lead,
		s.MinQuorum,
		string(s.Status),
		check,
		notes,
		s.CustomerRef,
		s.Score,
		nullID(s.RescheduledFrom),
		nullID(s.RescheduledTo),
		s.CancelReason,
		s.Version,
		r.d.Time(s.CreatedAt),
		r.d.Time(s.UpdatedAt),
	).Scan(&version)
	if err != nil {
		if database.IsNoRows(err) {
			return fmt.Errorf("%w: appointment %s", domain.ErrOptimisticLocking, s.ID)
		}
		return err
	}
	a.SetVersion(version)
	return nil
}

// FindByID retrieves an appointment by its ID.
func (r *SQLAppointmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	exec := database.ExecutorFromContext(ctx, r.conn)
	a, err := scanAppointment(exec.QueryRow(ctx, r.d.Rebind(query), id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrAppointmentNotFound
		}
		return nil, err
	}
	return a, nil
}

// FindByStatusInRange retrieves appointments with one of statuses that start inside rng.
func (r *SQLAppointmentRepository) FindByStatusInRange(ctx context.Context, statuses []domain.AppointmentStatus, rng domain.TimeRange) ([]*domain.Appointment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []any{r.d.Time(rng.Start), r.d.Time(rng.End)}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE starts_at >= $1 AND starts_at < $2
		AND status IN (` + database.Placeholders(3, len(statuses)) + `)
		ORDER BY starts_at, id`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []*domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

func scanAppointment(row database.Row) (*domain.Appointment, error) {
	var ar appointmentRow
	err := row.Scan(
		&ar.ID,
		&ar.Kind,
		&ar.Priority,
		&ar.StartsAt,
		&ar.EndsAt,
		&ar.Location,
		&ar.WeatherDependent,
		&ar.BackupDate,
		&ar.Required,
		&ar.Optional,
		&ar.Lead,
		&ar.MinQuorum,
		&ar.Status,
		&ar.WeatherCheck,
		&ar.Notes,
		&ar.CustomerRef,
		&ar.Score,
		&ar.RescheduledFrom,
		&ar.RescheduledTo,
		&ar.CancelReason,
		&ar.Version,
		&ar.CreatedAt,
		&ar.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s := domain.AppointmentSnapshot{
		ID:               ar.ID,
		Kind:             domain.AppointmentKind(ar.Kind),
		Priority:         domain.Priority(ar.Priority),
		Window:           domain.TimeRange{Start: ar.StartsAt.Time, End: ar.EndsAt.Time},
		WeatherDependent: ar.WeatherDependent,
		BackupDate:       ar.BackupDate.Ptr(),
		Lead:             ar.Lead,
		MinQuorum:        ar.MinQuorum,
		Status:           domain.AppointmentStatus(ar.Status),
		CustomerRef:      ar.CustomerRef,
		Score:            ar.Score,
		RescheduledFrom:  idPtr(ar.RescheduledFrom),
		RescheduledTo:    idPtr(ar.RescheduledTo),
		CancelReason:     ar.CancelReason,
		Version:          ar.Version,
		CreatedAt:        ar.CreatedAt.Time,
		UpdatedAt:        ar.UpdatedAt.Time,
	}
	if err := ar.Location.Decode(&s.Location); err != nil {
		return nil, fmt.Errorf("decode location of appointment %s: %w", ar.ID, err)
	}
	if err := ar.Required.Decode(&s.Required); err != nil {
		return nil, fmt.Errorf("decode participants of appointment %s: %w", ar.ID, err)
	}
	if err := ar.Optional.Decode(&s.Optional); err != nil {
		return nil, fmt.Errorf("decode participants of appointment %s: %w", ar.ID, err)
	}
	if err := ar.Notes.Decode(&s.Notes); err != nil {
		return nil, fmt.Errorf("decode notes of appointment %s: %w", ar.ID, err)
	}
	if len(ar.WeatherCheck) > 0 {
		var check domain.WeatherCheck
		if err := ar.WeatherCheck.Decode(&check); err != nil {
			return nil, fmt.Errorf("decode weather check of appointment %s: %w", ar.ID, err)
		}
		s.WeatherCheck = &check
	}
	return domain.RehydrateAppointment(s), nil
}

func nullID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func idPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
