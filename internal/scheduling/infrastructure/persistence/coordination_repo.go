package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const coordinationColumns = `id, appointment_id, lead_participant_id, members, min_quorum,
	deadline, status, created_at, updated_at`

// SQLCoordinationRepository implements domain.CoordinationRepository.
type SQLCoordinationRepository struct {
	conn database.Connection
	d    database.Dialect
}

// NewSQLCoordinationRepository creates a coordination group repository.
func NewSQLCoordinationRepository(conn database.Connection) *SQLCoordinationRepository {
	return &SQLCoordinationRepository{conn: conn, d: database.DialectOf(conn)}
}

// Save persists a group (create or update). One group exists per appointment.
func (r *SQLCoordinationRepository) Save(ctx context.Context, g *domain.CoordinationGroup) error {
	members, err := database.JSONArg(g.Members())
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	query := `
		INSERT INTO coordination_groups (` + coordinationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			members = excluded.members,
			deadline = excluded.deadline,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err = exec.Exec(ctx, r.d.Rebind(query),
		g.ID(),
		g.AppointmentID(),
		g.Lead(),
		members,
		g.MinQuorum(),
		r.d.Time(g.Deadline()),
		string(g.Status()),
		r.d.Time(g.CreatedAt()),
		r.d.Time(g.UpdatedAt()),
	)
	return err
}

// FindByAppointment retrieves the group coordinating an appointment.
func (r *SQLCoordinationRepository) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.CoordinationGroup, error) {
	query := `SELECT ` + coordinationColumns + ` FROM coordination_groups WHERE appointment_id = $1`
	exec := database.ExecutorFromContext(ctx, r.conn)
	g, err := scanGroup(exec.QueryRow(ctx, r.d.Rebind(query), appointmentID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrCoordinationNotFound
		}
		return nil, err
	}
	return g, nil
}

// FindExpiring retrieves open groups whose deadline is at or before now.
func (r *SQLCoordinationRepository) FindExpiring(ctx context.Context, now time.Time) ([]*domain.CoordinationGroup, error) {
	query := `SELECT ` + coordinationColumns + ` FROM coordination_groups
		WHERE status IN ($1, $2) AND deadline <= $3
		ORDER BY deadline, id`
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.d.Rebind(query),
		string(domain.CoordinationProposed),
		string(domain.CoordinationPartiallyConfirmed),
		r.d.Time(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*domain.CoordinationGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func scanGroup(row database.Row) (*domain.CoordinationGroup, error) {
	var (
		id, appointmentID, lead uuid.UUID
		members                 database.JSON
		minQuorum               int
		deadline                database.Timestamp
		status                  string
		createdAt, updatedAt    database.Timestamp
	)
	err := row.Scan(&id, &appointmentID, &lead, &members, &minQuorum, &deadline, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	var decoded []domain.GroupMember
	if err := members.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode members of group %s: %w", id, err)
	}
	return domain.RehydrateCoordinationGroup(
		id, appointmentID, lead,
		decoded,
		minQuorum,
		deadline.Time,
		domain.CoordinationStatus(status),
		createdAt.Time, updatedAt.Time,
	), nil
}
