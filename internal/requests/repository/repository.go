// Package repository persists service requests, their candidate providers,
// and the interaction log that records each lifecycle run.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hireline_backend/internal/requests/domain"
	"hireline_backend/platform/apperr"
)

const requestNotFoundMessage = "service request not found"

// Repository implements RequestsRepository with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a requests repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRequestParams holds the intake fields of a new service request.
type CreateRequestParams struct {
	ServiceType string
	Description string
	Urgency     string
	Location    string
	NotifyEmail string
}

const requestColumns = `
	id, service_type, description, urgency, location, status,
	selected_provider_id, recommendations, COALESCE(outcome, ''),
	COALESCE(appointment_day, ''), COALESCE(appointment_time, ''),
	COALESCE(notify_email, ''), created_at, updated_at`

// Create inserts a new request in the pending state.
func (r *Repository) Create(ctx context.Context, params CreateRequestParams) (domain.ServiceRequest, error) {
	query := `
		INSERT INTO service_requests (service_type, description, urgency, location, notify_email)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING` + requestColumns

	req, err := scanRequest(r.pool.QueryRow(ctx, query,
		params.ServiceType, params.Description, params.Urgency, params.Location, params.NotifyEmail,
	))
	if err != nil {
		return domain.ServiceRequest{}, fmt.Errorf("create service request: %w", err)
	}
	return req, nil
}

// GetByID retrieves one request with its persisted recommendations.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.ServiceRequest, error) {
	query := `SELECT` + requestColumns + ` FROM service_requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ServiceRequest{}, apperr.NotFound(requestNotFoundMessage)
		}
		return domain.ServiceRequest{}, fmt.Errorf("get service request: %w", err)
	}
	return req, nil
}

// ListStale returns non-terminal requests that have not moved since the
// cutoff, oldest first. The reaper fails these.
func (r *Repository) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.ServiceRequest, error) {
	query := `SELECT` + requestColumns + `
		FROM service_requests
		WHERE status NOT IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query,
		string(domain.StateCompleted), string(domain.StateFailed), updatedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service requests: %w", err)
	}
	return requests, nil
}

// TransitionParams carries optional fields written atomically with a state
// change.
type TransitionParams struct {
	Outcome            *string
	SelectedProviderID *uuid.UUID
	AppointmentDay     *string
	AppointmentTime    *string
}

// Transition moves a request from one state to another. The update is guarded
// by the expected current state: when the guard misses, the caller gets a
// conflict naming the actual state, so a concurrent step that already moved
// the request cannot be double-applied.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to domain.State, params TransitionParams) (domain.ServiceRequest, error) {
	setClauses := []string{"status = $1", "updated_at = now()"}
	args := []any{string(to)}
	argIdx := 2

	if params.Outcome != nil {
		setClauses = append(setClauses, fmt.Sprintf("outcome = NULLIF($%d, '')", argIdx))
		args = append(args, *params.Outcome)
		argIdx++
	}
	if params.SelectedProviderID != nil {
		setClauses = append(setClauses, fmt.Sprintf("selected_provider_id = $%d", argIdx))
		args = append(args, *params.SelectedProviderID)
		argIdx++
	}
	if params.AppointmentDay != nil {
		setClauses = append(setClauses, fmt.Sprintf("appointment_day = NULLIF($%d, '')", argIdx))
		args = append(args, *params.AppointmentDay)
		argIdx++
	}
	if params.AppointmentTime != nil {
		setClauses = append(setClauses, fmt.Sprintf("appointment_time = NULLIF($%d, '')", argIdx))
		args = append(args, *params.AppointmentTime)
		argIdx++
	}

	query := fmt.Sprintf(`
		UPDATE service_requests SET %s
		WHERE id = $%d AND status = $%d
		RETURNING`+requestColumns,
		strings.Join(setClauses, ", "), argIdx, argIdx+1)
	args = append(args, id, string(from))

	req, err := scanRequest(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ServiceRequest{}, fmt.Errorf("transition service request: %w", err)
	}

	// Guard missed: either the row is gone or another step moved it first.
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return domain.ServiceRequest{}, getErr
	}
	return domain.ServiceRequest{}, apperr.Conflict(
		fmt.Sprintf("request is %s, expected %s", current.Status, from))
}

// SaveRecommendations persists the ranked provider list on the request.
func (r *Repository) SaveRecommendations(ctx context.Context, id uuid.UUID, recs []domain.Recommendation) error {
	payload, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE service_requests SET recommendations = $2, updated_at = now() WHERE id = $1`,
		id, payload,
	)
	if err != nil {
		return fmt.Errorf("save recommendations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(requestNotFoundMessage)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.ServiceRequest, error) {
	var (
		req    domain.ServiceRequest
		status string
		recs   []byte
	)
	err := row.Scan(
		&req.ID, &req.ServiceType, &req.Description, &req.Urgency, &req.Location,
		&status, &req.SelectedProviderID, &recs, &req.Outcome,
		&req.AppointmentDay, &req.AppointmentTime, &req.NotifyEmail,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	req.Status = domain.State(status)
	if len(recs) > 0 {
		if err := json.Unmarshal(recs, &req.Recommendations); err != nil {
			return domain.ServiceRequest{}, fmt.Errorf("decode recommendations: %w", err)
		}
	}
	return req, nil
}
