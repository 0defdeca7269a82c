package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const auditColumns = `id, appointment_id, request_id, action, participant_id, starts_at, ends_at,
	success, reason, breakdown, conflict_ids, recorded_at`

// SQLAuditRepository implements domain.AuditRepository. Entries are append-only.
type SQLAuditRepository struct {
	conn database.Connection
	d    database.Dialect
}

// NewSQLAuditRepository creates an audit repository.
func NewSQLAuditRepository(conn database.Connection) *SQLAuditRepository {
	return &SQLAuditRepository{conn: conn, d: database.DialectOf(conn)}
}

// Append stores entries in one transaction.
func (r *SQLAuditRepository) Append(ctx context.Context, entries ...domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	query := r.d.Rebind(`INSERT INTO audit_entries (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)

	return database.RunInTx(ctx, r.conn, func(ctx context.Context) error {
		exec := database.ExecutorFromContext(ctx, r.conn)
		for _, e := range entries {
			args, err := r.args(e)
			if err != nil {
				return err
			}
			if _, err := exec.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("append audit entry: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLAuditRepository) args(e domain.AuditEntry) ([]any, error) {
	conflictIDs, err := database.JSONArg(nonNilIDs(e.ConflictIDs))
	if err != nil {
		return nil, err
	}
	var breakdown any
	if e.Breakdown != nil {
		if breakdown, err = database.JSONArg(e.Breakdown); err != nil {
			return nil, err
		}
	}
	var start, end any
	if !e.Window.IsZero() {
		start, end = r.d.Time(e.Window.Start), r.d.Time(e.Window.End)
	}
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	return []any{
		e.ID,
		optionalID(e.AppointmentID),
		optionalID(e.RequestID),
		string(e.Action),
		optionalID(e.ParticipantID),
		start,
		end,
		e.Success,
		e.Reason,
		breakdown,
		conflictIDs,
		r.d.Time(recordedAt),
	}, nil
}

// ListByAppointment returns an appointment's trail in the order it was recorded.
func (r *SQLAuditRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries
		WHERE appointment_id = $1
		ORDER BY recorded_at, id`
	return r.list(ctx, query, appointmentID)
}

// ListSince returns up to limit entries recorded at or after since.
func (r *SQLAuditRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + auditColumns + ` FROM audit_entries
		WHERE recorded_at >= $1
		ORDER BY recorded_at, id
		LIMIT $2`
	return r.list(ctx, query, r.d.Time(since), limit)
}

func (r *SQLAuditRepository) list(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e                                     domain.AuditEntry
			appointmentID, requestID, participant uuid.NullUUID
			action                                string
			start, end, recordedAt                database.Timestamp
			breakdown, conflictIDs                database.JSON
		)
		err := rows.Scan(
			&e.ID,
			&appointmentID,
			&requestID,
			&action,
			&participant,
			&start,
			&end,
			&e.Success,
			&e.Reason,
			&breakdown,
			&conflictIDs,
			&recordedAt,
		)
		if err != nil {
			return nil, err
		}
		e.AppointmentID = appointmentID.UUID
		e.RequestID = requestID.UUID
		e.ParticipantID = participant.UUID
		e.Action = domain.AuditAction(action)
		if start.Valid && end.Valid {
			e.Window = domain.TimeRange{Start: start.Time, End: end.Time}
		}
		e.RecordedAt = recordedAt.Time
		if len(breakdown) > 0 {
			var b domain.ScoreBreakdown
			if err := breakdown.Decode(&b); err != nil {
				return nil, fmt.Errorf("decode breakdown of audit entry %s: %w", e.ID, err)
			}
			e.Breakdown = &b
		}
		if err := conflictIDs.Decode(&e.ConflictIDs); err != nil {
			return nil, fmt.Errorf("decode conflicts of audit entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func optionalID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
