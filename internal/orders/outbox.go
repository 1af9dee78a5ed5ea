package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

type OutboxEvent struct {
	ID            uuid.UUID
	Topic         string
	Key           []byte
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	LastError     *string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	SentAt        *time.Time
}

type OutboxRepo struct{ DB *pgxpool.Pool }

// Due returns pending rows whose retry window has opened, oldest first.
// Rows are not claimed; a concurrent dispatcher may double-publish, which
// the at-least-once channel already permits and the consumer dedups.
func (r *OutboxRepo) Due(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, topic, key, payload, status, attempts, last_error, next_attempt_at, created_at, sent_at
		FROM outbox_events
		WHERE status = 'pending' AND next_attempt_at <= now()
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Key, &ev.Payload, &ev.Status, &ev.Attempts, &ev.LastError, &ev.NextAttemptAt, &ev.CreatedAt, &ev.SentAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *OutboxRepo) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE outbox_events SET status='sent', sent_at=now() WHERE id=$1`, id)
	return err
}

// MarkFailed records a publish failure. Terminal failures move the row to
// 'failed' and out of the dispatch path; otherwise it stays pending with a
// pushed-out next_attempt_at.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, nextAttempt time.Time, terminal bool) error {
	status := OutboxPending
	if terminal {
		status = OutboxFailed
	}
	_, err := r.DB.Exec(ctx, `
		UPDATE outbox_events
		SET status=$2, attempts=$3, last_error=$4, next_attempt_at=$5
		WHERE id=$1`, id, status, attempts, lastErr, nextAttempt)
	return err
}
