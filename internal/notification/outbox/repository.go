// Package outbox persists notifications as durable rows before delivery.
// Senders insert rows in the same flow that produced the event; a dispatcher
// claims due rows and hands them to the delivery queue, so a crashed process
// never loses a notification.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusEnqueued       Status = "enqueued"
	StatusProcessing     Status = "processing"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	errRepoNotConfigured        = "outbox repository not configured"
)

// Record is one notification waiting for, or finished with, delivery.
type Record struct {
	ID       uuid.UUID
	Kind     string
	Template string
	Payload  json.RawMessage
	RunAt    time.Time
	Status   Status
	Attempts int
}

type InsertParams struct {
	Kind     string
	Template string
	Payload  any
	RunAt    time.Time // zero means now
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, errors.New(errRepoNotConfigured)
	}
	if p.Kind == "" {
		return uuid.Nil, fmt.Errorf("kind is required")
	}
	if p.Template == "" {
		return uuid.Nil, fmt.Errorf("template is required")
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO notification_outbox (kind, template, payload, run_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		p.Kind, p.Template, payloadBytes, p.RunAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, errors.New(errRepoNotConfigured)
	}

	var rec Record
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, kind, template, payload, run_at, status, attempts
		 FROM notification_outbox
		 WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Kind, &rec.Template, &rec.Payload, &rec.RunAt, &status, &rec.Attempts)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

// ClaimDue flips up to limit due pending rows to enqueued and returns them.
// FOR UPDATE SKIP LOCKED keeps concurrent dispatchers from claiming the same
// rows. Rows stuck in enqueued for over two minutes are reclaimed, so a task
// lost between claim and delivery does not orphan the notification; delivery
// is therefore at-least-once.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM notification_outbox
		WHERE (status = 'pending' AND run_at <= now())
		   OR (status = 'enqueued' AND updated_at < now() - interval '2 minutes')
		ORDER BY run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE notification_outbox o
	SET status = 'enqueued', updated_at = now()
	FROM cte
	WHERE o.id = cte.id
	RETURNING o.id, o.kind, o.template, o.payload, o.run_at, o.status, o.attempts`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Template, &rec.Payload, &rec.RunAt, &status, &rec.Attempts); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		results = append(results, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// ClaimByID flips one specific pending row to enqueued. Returns false when
// the row was already claimed, delivered or parked, so two dispatch paths
// racing on the same row enqueue it once.
func (r *Repository) ClaimByID(ctx context.Context, id uuid.UUID) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = 'enqueued', updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPending puts a row back in the dispatcher's reach, recording why the
// previous attempt did not stick. The retry is pushed out by thirty seconds
// per attempt already made, so a down mail server is not hammered.
func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = 'pending',
		     run_at = now() + interval '30 seconds' * attempts,
		     last_error = $2,
		     updated_at = now()
		 WHERE id = $1`,
		id, lastError,
	)
	return err
}

func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	return err
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = 'succeeded', last_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = 'failed', last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, lastError,
	)
	return err
}
