package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
)

const messageColumns = `id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	payload, metadata, created_at, published_at, next_retry_at, retry_count,
	last_error, dead_lettered_at, dead_letter_reason`

// SQLRepository implements Repository on PostgreSQL or SQLite.
type SQLRepository struct {
	conn database.Connection
	d    database.Dialect
	now  func() time.Time
}

// NewSQLRepository creates a new outbox repository.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn, d: database.DialectOf(conn), now: time.Now}
}

// Save stores a new outbox message. Inside a unit of work the message commits
// with the aggregate that raised it.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, next_retry_at, dead_lettered_at, dead_letter_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	metadata := msg.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	exec := database.ExecutorFromContext(ctx, r.conn)
	return exec.QueryRow(ctx, r.d.Rebind(query),
		msg.EventID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		string(metadata),
		r.d.Time(createdAt),
		r.d.NullTime(msg.NextRetryAt),
		r.d.NullTime(msg.DeadLetteredAt),
		msg.DeadLetterReason,
	).Scan(&msg.ID)
}

// SaveBatch stores multiple outbox messages atomically.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return database.RunInTx(ctx, r.conn, func(ctx context.Context) error {
		for _, msg := range msgs {
			if err := r.Save(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetUnpublished retrieves unpublished messages ordered by creation time.
func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at, id
		LIMIT $2
	`
	return r.query(ctx, query, r.d.Time(r.now()), limit)
}

// MarkPublished marks a message as successfully published.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	query := `UPDATE outbox SET published_at = $1, dead_lettered_at = NULL WHERE id = $2`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, r.d.Rebind(query), r.d.Time(r.now()), id)
	return err
}

// MarkFailed records a publish failure with error message.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	query := `
		UPDATE outbox
		SET retry_count = retry_count + 1,
			last_error = $2,
			next_retry_at = $3
		WHERE id = $1
	`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, r.d.Rebind(query), id, errMsg, r.d.Time(nextRetryAt))
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE outbox
		SET dead_lettered_at = $2,
			dead_letter_reason = $3
		WHERE id = $1
	`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, r.d.Rebind(query), id, r.d.Time(r.now()), reason)
	return err
}

// GetFailed retrieves failed messages eligible for retry.
func (r *SQLRepository) GetFailed(ctx context.Context, maxRetries, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND retry_count > 0
		  AND retry_count < $1
		  AND (next_retry_at IS NULL OR next_retry_at <= $2)
		ORDER BY created_at, id
		LIMIT $3
	`
	return r.query(ctx, query, maxRetries, r.d.Time(r.now()), limit)
}

// DeleteOld removes successfully published messages older than the retention period.
func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	query := `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL
		  AND published_at < $1
	`
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	result, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, r.d.Rebind(query), r.d.Time(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SQLRepository) query(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			msg                                 Message
			payload, metadata                   database.JSON
			createdAt, publishedAt, nextRetryAt database.Timestamp
			deadLetteredAt                      database.Timestamp
		)
		err := rows.Scan(
			&msg.ID,
			&msg.EventID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.RoutingKey,
			&payload,
			&metadata,
			&createdAt,
			&publishedAt,
			&nextRetryAt,
			&msg.RetryCount,
			&msg.LastError,
			&deadLetteredAt,
			&msg.DeadLetterReason,
		)
		if err != nil {
			return nil, err
		}
		msg.Payload = json.RawMessage(payload)
		msg.Metadata = json.RawMessage(metadata)
		msg.CreatedAt = createdAt.Time
		msg.PublishedAt = publishedAt.Ptr()
		msg.NextRetryAt = nextRetryAt.Ptr()
		msg.DeadLetteredAt = deadLetteredAt.Ptr()
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
