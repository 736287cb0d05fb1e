package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"hireline_backend/internal/requests/domain"
)

// AppendLogParams holds one interaction log line.
type AppendLogParams struct {
	RequestID  uuid.UUID
	Step       string
	Detail     string
	Status     string
	CallID     string
	Transcript string
}

// AppendLog writes one audit trail line for a request.
func (r *Repository) AppendLog(ctx context.Context, params AppendLogParams) error {
	status := params.Status
	if status == "" {
		status = domain.LogInfo
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO interaction_log (request_id, step, detail, status, call_id, transcript)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		params.RequestID, params.Step, params.Detail, status, params.CallID, params.Transcript,
	)
	if err != nil {
		return fmt.Errorf("append interaction log: %w", err)
	}
	return nil
}

// ListLog returns the audit trail of a request in chronological order.
func (r *Repository) ListLog(ctx context.Context, requestID uuid.UUID) ([]domain.InteractionLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, step, COALESCE(detail, ''), status,
			COALESCE(call_id, ''), COALESCE(transcript, ''), created_at
		FROM interaction_log
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list interaction log: %w", err)
	}
	defer rows.Close()

	var entries []domain.InteractionLogEntry
	for rows.Next() {
		var e domain.InteractionLogEntry
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Step, &e.Detail, &e.Status,
			&e.CallID, &e.Transcript, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan interaction log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction log: %w", err)
	}
	return entries, nil
}
