package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hireline_backend/internal/requests/domain"
	"hireline_backend/platform/apperr"
)

const providerNotFoundMessage = "provider not found"

// CreateProviderParams holds one discovered provider candidate.
type CreateProviderParams struct {
	Name        string
	Phone       string
	ExternalRef string
}

const providerColumns = `
	id, request_id, name, phone, COALESCE(external_ref, ''),
	COALESCE(call_id, ''), call_status, rank, created_at, updated_at`

// InsertProviders attaches discovered candidates to a request in a single
// transaction, all in the pending call state.
func (r *Repository) InsertProviders(ctx context.Context, requestID uuid.UUID, params []CreateProviderParams) ([]domain.Provider, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert providers: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO request_providers (request_id, name, phone, external_ref)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING` + providerColumns

	providers := make([]domain.Provider, 0, len(params))
	for _, p := range params {
		provider, err := scanProvider(tx.QueryRow(ctx, query, requestID, p.Name, p.Phone, p.ExternalRef))
		if err != nil {
			return nil, fmt.Errorf("insert provider: %w", err)
		}
		providers = append(providers, provider)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert providers: %w", err)
	}
	return providers, nil
}

// ListProviders returns the providers attached to a request in insertion
// order.
func (r *Repository) ListProviders(ctx context.Context, requestID uuid.UUID) ([]domain.Provider, error) {
	query := `SELECT` + providerColumns + `
		FROM request_providers
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []domain.Provider
	for rows.Next() {
		provider, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, provider)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return providers, nil
}

// GetProvider retrieves one provider row scoped to its request.
func (r *Repository) GetProvider(ctx context.Context, requestID, providerID uuid.UUID) (domain.Provider, error) {
	query := `SELECT` + providerColumns + `
		FROM request_providers
		WHERE request_id = $1 AND id = $2`

	provider, err := scanProvider(r.pool.QueryRow(ctx, query, requestID, providerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Provider{}, apperr.NotFound(providerNotFoundMessage)
		}
		return domain.Provider{}, fmt.Errorf("get provider: %w", err)
	}
	return provider, nil
}

// MarkProviderQueued flags a provider as handed to the dispatcher and clears
// any previous call binding. A new call for this provider will report under a
// fresh call ID; clearing the old one keeps late events for the previous call
// from touching this row.
func (r *Repository) MarkProviderQueued(ctx context.Context, requestID, providerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE request_providers
		SET call_status = 'queued', call_id = NULL, updated_at = now()
		WHERE request_id = $1 AND id = $2`,
		requestID, providerID,
	)
	if err != nil {
		return fmt.Errorf("mark provider queued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(providerNotFoundMessage)
	}
	return nil
}

// BindProviderCall records the call placed for a provider and its current
// status. Identified by (request, provider) because the first event for a
// call arrives before any binding exists.
func (r *Repository) BindProviderCall(ctx context.Context, requestID, providerID uuid.UUID, callID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE request_providers
		SET call_id = NULLIF($3, ''), call_status = $4, updated_at = now()
		WHERE request_id = $1 AND id = $2`,
		requestID, providerID, callID, status,
	)
	if err != nil {
		return fmt.Errorf("bind provider call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(providerNotFoundMessage)
	}
	return nil
}

// UpdateCallStatusByCallID updates the provider row currently bound to the
// given call and reports how many rows matched. Zero is normal: it means the
// binding moved on (a rebooking replaced the call ID) and the event is stale.
func (r *Repository) UpdateCallStatusByCallID(ctx context.Context, callID, status string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE request_providers
		SET call_status = $2, updated_at = now()
		WHERE call_id = $1`,
		callID, status,
	)
	if err != nil {
		return 0, fmt.Errorf("update call status: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SetProviderRanks stores the ranking positions assigned to providers after
// analysis, in a single transaction.
func (r *Repository) SetProviderRanks(ctx context.Context, requestID uuid.UUID, ranks map[uuid.UUID]int) error {
	if len(ranks) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set ranks: %w", err)
	}
	defer tx.Rollback(ctx)

	for providerID, rank := range ranks {
		if _, err := tx.Exec(ctx, `
			UPDATE request_providers
			SET rank = $3, updated_at = now()
			WHERE request_id = $1 AND id = $2`,
			requestID, providerID, rank,
		); err != nil {
			return fmt.Errorf("set provider rank: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit set ranks: %w", err)
	}
	return nil
}

func scanProvider(row rowScanner) (domain.Provider, error) {
	var p domain.Provider
	err := row.Scan(
		&p.ID, &p.RequestID, &p.Name, &p.Phone, &p.ExternalRef,
		&p.CallID, &p.CallStatus, &p.Rank, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Provider{}, err
	}
	return p, nil
}
