// Package repository persists reconciled call results. The in-memory cache
// is the hot read path; this table is the durable copy that survives restarts
// and feeds transcript archival.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hireline_backend/internal/calls/domain"
	"hireline_backend/platform/apperr"
)

const callNotFoundMessage = "call record not found"

// Repository defines the persistence operations for call records.
type Repository interface {
	UpsertResult(ctx context.Context, res domain.CallResult) error
	GetResult(ctx context.Context, callID string) (domain.CallResult, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.CallResult, error)
	ListUnarchived(ctx context.Context, limit int) ([]domain.CallResult, error)
	SetArchiveKey(ctx context.Context, callID, key string) error
}

// Repo implements Repository with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a call records repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// UpsertResult writes the reconciled snapshot of a call. Completeness never
// regresses and an empty transcript never overwrites a stored one, so a late
// or out-of-order write cannot erase data.
func (r *Repo) UpsertResult(ctx context.Context, res domain.CallResult) error {
	query := `
		INSERT INTO call_records (
			call_id, request_id, provider_id, provider_name, phone, status,
			execution_method, duration_seconds, ended_reason, transcript,
			summary, analysis, success_evaluation, cost, completeness,
			received_at, enriched_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now())
		ON CONFLICT (call_id) DO UPDATE SET
			request_id       = COALESCE(EXCLUDED.request_id, call_records.request_id),
			provider_id      = COALESCE(EXCLUDED.provider_id, call_records.provider_id),
			provider_name    = CASE WHEN EXCLUDED.provider_name = '' THEN call_records.provider_name ELSE EXCLUDED.provider_name END,
			phone            = CASE WHEN EXCLUDED.phone = '' THEN call_records.phone ELSE EXCLUDED.phone END,
			status           = EXCLUDED.status,
			execution_method = CASE WHEN EXCLUDED.execution_method = '' THEN call_records.execution_method ELSE EXCLUDED.execution_method END,
			duration_seconds = GREATEST(EXCLUDED.duration_seconds, call_records.duration_seconds),
			ended_reason     = CASE WHEN EXCLUDED.ended_reason = '' THEN call_records.ended_reason ELSE EXCLUDED.ended_reason END,
			transcript       = CASE WHEN EXCLUDED.transcript = '' THEN call_records.transcript ELSE EXCLUDED.transcript END,
			summary          = CASE WHEN EXCLUDED.summary = '' THEN call_records.summary ELSE EXCLUDED.summary END,
			analysis         = COALESCE(EXCLUDED.analysis, call_records.analysis),
			success_evaluation = CASE WHEN EXCLUDED.success_evaluation = '' THEN call_records.success_evaluation ELSE EXCLUDED.success_evaluation END,
			cost             = GREATEST(EXCLUDED.cost, call_records.cost),
			completeness     = CASE WHEN call_records.completeness = 'complete' THEN call_records.completeness ELSE EXCLUDED.completeness END,
			enriched_at      = COALESCE(EXCLUDED.enriched_at, call_records.enriched_at),
			updated_at       = now()`

	var summary, successEvaluation string
	var structured map[string]any
	if res.Analysis != nil {
		summary = res.Analysis.Summary
		successEvaluation = res.Analysis.SuccessEvaluation
		if len(res.Analysis.StructuredData) > 0 {
			structured = res.Analysis.StructuredData
		}
	}

	receivedAt := res.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, query,
		res.CallID, res.RequestID, res.ProviderID, res.ProviderName, res.Phone,
		string(res.Status), string(res.ExecutionMethod), res.DurationSeconds,
		res.EndedReason, res.Transcript, summary, structured, successEvaluation,
		res.Cost, string(res.Completeness), receivedAt, res.EnrichedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert call record: %w", err)
	}
	return nil
}

const callColumns = `
	call_id, request_id, provider_id, provider_name, phone, status,
	execution_method, duration_seconds, ended_reason, transcript,
	summary, analysis, success_evaluation, cost, completeness,
	received_at, enriched_at`

// GetResult retrieves a persisted call record by call ID.
func (r *Repo) GetResult(ctx context.Context, callID string) (domain.CallResult, error) {
	query := `SELECT` + callColumns + ` FROM call_records WHERE call_id = $1`

	res, err := scanCall(r.pool.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CallResult{}, apperr.NotFound(callNotFoundMessage)
		}
		return domain.CallResult{}, fmt.Errorf("get call record: %w", err)
	}
	return res, nil
}

// ListByRequest retrieves all call records linked to a service request.
func (r *Repo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.CallResult, error) {
	query := `SELECT` + callColumns + ` FROM call_records WHERE request_id = $1 ORDER BY received_at ASC`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list call records: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// ListUnarchived retrieves finalized records whose transcript has not been
// archived yet, oldest first.
func (r *Repo) ListUnarchived(ctx context.Context, limit int) ([]domain.CallResult, error) {
	query := `SELECT` + callColumns + `
		FROM call_records
		WHERE archive_key IS NULL
		  AND completeness IN ('complete', 'fetch_failed')
		  AND transcript <> ''
		ORDER BY received_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unarchived call records: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// SetArchiveKey records where a call's transcript was archived.
func (r *Repo) SetArchiveKey(ctx context.Context, callID, key string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE call_records SET archive_key = $2, updated_at = now() WHERE call_id = $1`,
		callID, key,
	)
	if err != nil {
		return fmt.Errorf("set archive key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(callNotFoundMessage)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (domain.CallResult, error) {
	var (
		res               domain.CallResult
		status            string
		method            string
		completeness      string
		summary           string
		successEvaluation string
		structured        map[string]any
	)
	err := row.Scan(
		&res.CallID, &res.RequestID, &res.ProviderID, &res.ProviderName,
		&res.Phone, &status, &method, &res.DurationSeconds, &res.EndedReason,
		&res.Transcript, &summary, &structured, &successEvaluation, &res.Cost,
		&completeness, &res.ReceivedAt, &res.EnrichedAt,
	)
	if err != nil {
		return domain.CallResult{}, err
	}

	res.Status = domain.CallStatus(status)
	res.ExecutionMethod = domain.ExecutionMethod(method)
	res.Completeness = domain.Completeness(completeness)
	if summary != "" || successEvaluation != "" || len(structured) > 0 {
		res.Analysis = &domain.Analysis{
			Summary:           summary,
			StructuredData:    structured,
			SuccessEvaluation: successEvaluation,
		}
	}
	return res, nil
}

func scanCalls(rows pgx.Rows) ([]domain.CallResult, error) {
	var results []domain.CallResult
	for rows.Next() {
		res, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call records: %w", err)
	}
	return results, nil
}
