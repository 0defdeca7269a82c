package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// SlotChangedChannel is the PostgreSQL NOTIFY channel for reservation changes.
const SlotChangedChannel = "crewplan_slot_changed"

// SlotNotification is the payload sent on SlotChangedChannel.
type SlotNotification struct {
	Origin      string             `json:"origin"`
	Change      domain.SlotChange  `json:"change"`
	Reservation domain.Reservation `json:"reservation"`
}

const slotColumns = `id, participant_id, starts_at, ends_at, capacity, blocked,
	source, external_ref, created_at, updated_at`

const reservationColumns = `id, participant_id, slot_id, appointment_id, starts_at, ends_at,
	location, state, created_at`

// SQLAvailabilityStore implements domain.AvailabilityStore.
//
// Reserve is serialized per participant. On PostgreSQL the participant row is
// locked with SELECT ... FOR UPDATE for the length of the transaction. SQLite
// runs on a single connection, so transactions are already serialized.
type SQLAvailabilityStore struct {
	conn   database.Connection
	d      database.Dialect
	origin string
	now    func() time.Time
}

// NewSQLAvailabilityStore creates an availability store. origin tags the
// notifications this process emits so its own listener can skip them.
func NewSQLAvailabilityStore(conn database.Connection, origin string) *SQLAvailabilityStore {
	return &SQLAvailabilityStore{conn: conn, d: database.DialectOf(conn), origin: origin, now: time.Now}
}

// slotRow represents a database row for availability slots.
type slotRow struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID
	StartsAt      database.Timestamp
	EndsAt        database.Timestamp
	Capacity      int
	Blocked       database.JSON
	Source        string
	ExternalRef   string
	CreatedAt     database.Timestamp
	UpdatedAt     database.Timestamp
}

// reservationRow represents a database row for reservations.
type reservationRow struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID
	SlotID        uuid.UUID
	AppointmentID uuid.UUID
	StartsAt      database.Timestamp
	EndsAt        database.Timestamp
	Location      database.JSON
	State         string
	CreatedAt     database.Timestamp
}

// SaveSlot persists a slot (create or update).
func (s *SQLAvailabilityStore) SaveSlot(ctx context.Context, slot *domain.AvailabilitySlot) error {
	blocked, err := database.JSONArg(slot.Blocked())
	if err != nil {
		return fmt.Errorf("encode blocked ranges: %w", err)
	}
	query := `
		INSERT INTO availability_slots (` + slotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			capacity = excluded.capacity,
			blocked = excluded.blocked,
			source = excluded.source,
			external_ref = excluded.external_ref,
			updated_at = excluded.updated_at
	`
	exec := database.ExecutorFromContext(ctx, s.conn)
	_, err = exec.Exec(ctx, s.d.Rebind(query),
		slot.ID(),
		slot.ParticipantID(),
		s.d.Time(slot.Window().Start),
		s.d.Time(slot.Window().End),
		slot.Capacity(),
		blocked,
		string(slot.Source()),
		slot.ExternalRef(),
		s.d.Time(slot.CreatedAt()),
		s.d.Time(slot.UpdatedAt()),
	)
	return err
}

// DeleteSlot removes a slot. Reservations inside it are left in place.
func (s *SQLAvailabilityStore) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	exec := database.ExecutorFromContext(ctx, s.conn)
	result, err := exec.Exec(ctx, s.d.Rebind(`DELETE FROM availability_slots WHERE id = $1`), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

// FindSlot retrieves a slot by its ID.
func (s *SQLAvailabilityStore) FindSlot(ctx context.Context, id uuid.UUID) (*domain.AvailabilitySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM availability_slots WHERE id = $1`
	exec := database.ExecutorFromContext(ctx, s.conn)
	slot, err := scanSlot(exec.QueryRow(ctx, s.d.Rebind(query), id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrSlotNotFound
		}
		return nil, err
	}
	return slot, nil
}

// FindSlotByExternalRef retrieves an imported slot by its calendar reference.
func (s *SQLAvailabilityStore) FindSlotByExternalRef(ctx context.Context, participantID uuid.UUID, ref string) (*domain.AvailabilitySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM availability_slots
		WHERE participant_id = $1 AND external_ref = $2`
	exec := database.ExecutorFromContext(ctx, s.conn)
	slot, err := scanSlot(exec.QueryRow(ctx, s.d.Rebind(query), participantID, ref))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrSlotNotFound
		}
		return nil, err
	}
	return slot, nil
}

// SlotsInRange returns slots overlapping r. No participant IDs means all participants.
func (s *SQLAvailabilityStore) SlotsInRange(ctx context.Context, participantIDs []uuid.UUID, r domain.TimeRange) ([]*domain.AvailabilitySlot, error) {
	query, args := s.rangeQuery(`SELECT `+slotColumns+` FROM availability_slots`, participantIDs, r)
	query += ` ORDER BY participant_id, starts_at`

	exec := database.ExecutorFromContext(ctx, s.conn)
	rows, err := exec.Query(ctx, s.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []*domain.AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// ReservationsInRange returns reservations overlapping r.
func (s *SQLAvailabilityStore) ReservationsInRange(ctx context.Context, participantIDs []uuid.UUID, r domain.TimeRange) ([]domain.Reservation, error) {
	query, args := s.rangeQuery(`SELECT `+reservationColumns+` FROM reservations`, participantIDs, r)
	query += ` ORDER BY starts_at, participant_id`
	return s.queryReservations(ctx, query, args...)
}

// ReservationsForAppointment returns the reservations held for an appointment.
func (s *SQLAvailabilityStore) ReservationsForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE appointment_id = $1
		ORDER BY starts_at, participant_id`
	return s.queryReservations(ctx, query, appointmentID)
}

// Reserve validates req against live state and stores the reservation.
func (s *SQLAvailabilityStore) Reserve(ctx context.Context, req domain.ReserveRequest, rules domain.ReservationRules) (*domain.Reservation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var reserved *domain.Reservation
	err := database.RunInTx(ctx, s.conn, func(ctx context.Context) error {
		if err := s.lockParticipant(ctx, req.ParticipantID); err != nil {
			return err
		}

		slot, err := s.FindSlot(ctx, req.SlotID)
		if err != nil && !errors.Is(err, domain.ErrSlotNotFound) {
			return err
		}
		active, err := s.ReservationsInRange(ctx, []uuid.UUID{req.ParticipantID}, rules.LookupRange(slot, req.Window))
		if err != nil {
			return err
		}
		existing, err := rules.Check(slot, req, active)
		if err != nil {
			return err
		}
		if existing != nil {
			reserved = existing
			return nil
		}

		res := domain.NewReservation(req, s.now())
		if err := s.insertReservation(ctx, res); err != nil {
			return err
		}
		if err := s.notify(ctx, domain.SlotReserved, res); err != nil {
			return err
		}
		reserved = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// Release removes the participant's reservations contained in window.
func (s *SQLAvailabilityStore) Release(ctx context.Context, participantID uuid.UUID, window domain.TimeRange) ([]domain.Reservation, error) {
	query := `DELETE FROM reservations
		WHERE participant_id = $1 AND starts_at >= $2 AND ends_at <= $3
		RETURNING ` + reservationColumns
	return s.mutate(ctx, domain.SlotReleased, query, participantID, s.d.Time(window.Start), s.d.Time(window.End))
}

// ReleaseAppointment removes every reservation of an appointment.
func (s *SQLAvailabilityStore) ReleaseAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	query := `DELETE FROM reservations WHERE appointment_id = $1 RETURNING ` + reservationColumns
	return s.mutate(ctx, domain.SlotReleased, query, appointmentID)
}

// ConfirmAppointment turns an appointment's provisional holds into confirmed reservations.
func (s *SQLAvailabilityStore) ConfirmAppointment(ctx context.Context, appointmentID uuid.UUID) ([]domain.Reservation, error) {
	query := `UPDATE reservations SET state = $1
		WHERE appointment_id = $2
		RETURNING ` + reservationColumns
	return s.mutate(ctx, domain.SlotConfirmed, query, string(domain.ReservationConfirmed), appointmentID)
}

// mutate runs a DELETE or UPDATE ... RETURNING and notifies every affected row.
func (s *SQLAvailabilityStore) mutate(ctx context.Context, change domain.SlotChange, query string, args ...any) ([]domain.Reservation, error) {
	var changed []domain.Reservation
	err := database.RunInTx(ctx, s.conn, func(ctx context.Context) error {
		var err error
		changed, err = s.queryReservations(ctx, query, args...)
		if err != nil {
			return err
		}
		for _, res := range changed {
			if err := s.notify(ctx, change, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func (s *SQLAvailabilityStore) lockParticipant(ctx context.Context, participantID uuid.UUID) error {
	if !s.d.IsPostgres() {
		return nil
	}
	var id uuid.UUID
	exec := database.ExecutorFromContext(ctx, s.conn)
	err := exec.QueryRow(ctx, `SELECT id FROM participants WHERE id = $1 FOR UPDATE`, participantID).Scan(&id)
	if err != nil {
		if database.IsNoRows(err) {
			return domain.ErrParticipantNotFound
		}
		return fmt.Errorf("lock participant: %w", err)
	}
	return nil
}

func (s *SQLAvailabilityStore) insertReservation(ctx context.Context, res domain.Reservation) error {
	location, err := database.JSONArg(res.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	query := `INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	exec := database.ExecutorFromContext(ctx, s.conn)
	_, err = exec.Exec(ctx, s.d.Rebind(query),
		res.ID,
		res.ParticipantID,
		res.SlotID,
		res.AppointmentID,
		s.d.Time(res.Window.Start),
		s.d.Time(res.Window.End),
		location,
		string(res.State),
		s.d.Time(res.CreatedAt),
	)
	return err
}

// notify is delivered by PostgreSQL when the transaction commits.
func (s *SQLAvailabilityStore) notify(ctx context.Context, change domain.SlotChange, res domain.Reservation) error {
	if !s.d.IsPostgres() {
		return nil
	}
	payload, err := json.Marshal(SlotNotification{Origin: s.origin, Change: change, Reservation: res})
	if err != nil {
		return err
	}
	exec := database.ExecutorFromContext(ctx, s.conn)
	if _, err := exec.Exec(ctx, `SELECT pg_notify($1, $2)`, SlotChangedChannel, string(payload)); err != nil {
		return fmt.Errorf("notify slot change: %w", err)
	}
	return nil
}

func (s *SQLAvailabilityStore) rangeQuery(base string, participantIDs []uuid.UUID, r domain.TimeRange) (string, []any) {
	query := base + ` WHERE starts_at < $1 AND ends_at > $2`
	args := []any{s.d.Time(r.End), s.d.Time(r.Start)}
	if len(participantIDs) > 0 {
		query += ` AND participant_id IN (` + database.Placeholders(3, len(participantIDs)) + `)`
		args = append(args, uuidArgs(participantIDs)...)
	}
	return query, args
}

func (s *SQLAvailabilityStore) queryReservations(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	exec := database.ExecutorFromContext(ctx, s.conn)
	rows, err := exec.Query(ctx, s.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		var rr reservationRow
		err := rows.Scan(
			&rr.ID,
			&rr.ParticipantID,
			&rr.SlotID,
			&rr.AppointmentID,
			&rr.StartsAt,
			&rr.EndsAt,
			&rr.Location,
			&rr.State,
			&rr.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		res := domain.Reservation{
			ID:            rr.ID,
			ParticipantID: rr.ParticipantID,
			SlotID:        rr.SlotID,
			AppointmentID: rr.AppointmentID,
			Window:        domain.TimeRange{Start: rr.StartsAt.Time, End: rr.EndsAt.Time},
			State:         domain.ReservationState(rr.State),
			CreatedAt:     rr.CreatedAt.Time,
		}
		if err := rr.Location.Decode(&res.Location); err != nil {
			return nil, fmt.Errorf("decode reservation location: %w", err)
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func scanSlot(row database.Row) (*domain.AvailabilitySlot, error) {
	var sr slotRow
	err := row.Scan(
		&sr.ID,
		&sr.ParticipantID,
		&sr.StartsAt,
		&sr.EndsAt,
		&sr.Capacity,
		&sr.Blocked,
		&sr.Source,
		&sr.ExternalRef,
		&sr.CreatedAt,
		&sr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	var blocked []domain.TimeRange
	if err := sr.Blocked.Decode(&blocked); err != nil {
		return nil, fmt.Errorf("decode blocked ranges of slot %s: %w", sr.ID, err)
	}
	return domain.RehydrateAvailabilitySlot(
		sr.ID,
		sr.ParticipantID,
		domain.TimeRange{Start: sr.StartsAt.Time, End: sr.EndsAt.Time},
		sr.Capacity,
		blocked,
		domain.SlotSource(sr.Source),
		sr.ExternalRef,
		sr.CreatedAt.Time,
		sr.UpdatedAt.Time,
	), nil
}
