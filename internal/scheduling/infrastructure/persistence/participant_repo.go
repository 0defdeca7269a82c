package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const participantColumns = `id, name, skills, home_lat, home_lon, home_address,
	daily_cap, travel_radius_miles, active, created_at, updated_at`

// SQLParticipantRepository implements domain.ParticipantRepository for
// PostgreSQL and SQLite.
type SQLParticipantRepository struct {
	conn database.Connection
	d    database.Dialect
}

// NewSQLParticipantRepository creates a participant repository.
func NewSQLParticipantRepository(conn database.Connection) *SQLParticipantRepository {
	return &SQLParticipantRepository{conn: conn, d: database.DialectOf(conn)}
}

// participantRow represents a database row for participants.
type participantRow struct {
	ID                uuid.UUID
	Name              string
	Skills            database.JSON
	HomeLat           float64
	HomeLon           float64
	HomeAddress       string
	DailyCap          int
	TravelRadiusMiles float64
	Active            bool
	CreatedAt         database.Timestamp
	UpdatedAt         database.Timestamp
}

// Save persists a participant (create or update).
func (r *SQLParticipantRepository) Save(ctx context.Context, p *domain.Participant) error {
	skills, err := database.JSONArg(p.Skills())
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	home := p.HomeLocation()

	query := `
		INSERT INTO participants (` + participantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			skills = excluded.skills,
			home_lat = excluded.home_lat,
			home_lon = excluded.home_lon,
			home_address = excluded.home_address,
			daily_cap = excluded.daily_cap,
			travel_radius_miles = excluded.travel_radius_miles,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err = exec.Exec(ctx, r.d.Rebind(query),
		p.ID(),
		p.Name(),
		skills,
		home.Latitude,
		home.Longitude,
		home.Address,
		p.DailyCap(),
		p.TravelRadiusMiles(),
		p.IsActive(),
		r.d.Time(p.CreatedAt()),
		r.d.Time(p.UpdatedAt()),
	)
	return err
}

// FindByID retrieves a participant by its ID.
func (r *SQLParticipantRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`

	exec := database.ExecutorFromContext(ctx, r.conn)
	p, err := scanParticipant(exec.QueryRow(ctx, r.d.Rebind(query), id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, err
	}
	return p, nil
}

// FindByIDs retrieves the participants that exist among ids.
func (r *SQLParticipantRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Participant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + participantColumns + ` FROM participants
		WHERE id IN (` + database.Placeholders(1, len(ids)) + `)
		ORDER BY name, id`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.d.Rebind(query), uuidArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParticipants(rows)
}

// FindActive retrieves active participants holding every skill in skills.
// Skills are filtered in Go since the column encoding differs per driver.
func (r *SQLParticipantRepository) FindActive(ctx context.Context, skills []string) ([]*domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants
		WHERE active = $1
		ORDER BY name, id`

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.d.Rebind(query), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := scanParticipants(rows)
	if err != nil {
		return nil, err
	}
	matching := all[:0]
	for _, p := range all {
		if p.HasSkills(skills) {
			matching = append(matching, p)
		}
	}
	return matching, nil
}

func scanParticipant(row database.Row) (*domain.Participant, error) {
	var pr participantRow
	err := row.Scan(
		&pr.ID,
		&pr.Name,
		&pr.Skills,
		&pr.HomeLat,
		&pr.HomeLon,
		&pr.HomeAddress,
		&pr.DailyCap,
		&pr.TravelRadiusMiles,
		&pr.Active,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pr.toDomain()
}

func scanParticipants(rows database.Rows) ([]*domain.Participant, error) {
	var participants []*domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}

func (pr participantRow) toDomain() (*domain.Participant, error) {
	var skills []string
	if err := pr.Skills.Decode(&skills); err != nil {
		return nil, fmt.Errorf("decode skills of participant %s: %w", pr.ID, err)
	}
	return domain.RehydrateParticipant(
		pr.ID,
		pr.Name,
		skills,
		domain.Location{Latitude: pr.HomeLat, Longitude: pr.HomeLon, Address: strings.TrimSpace(pr.HomeAddress)},
		pr.DailyCap,
		pr.TravelRadiusMiles,
		pr.Active,
		pr.CreatedAt.Time,
		pr.UpdatedAt.Time,
	), nil
}

func uuidArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
