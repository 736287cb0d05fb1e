package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/requests/domain"
)

// RequestReader provides read access to service requests.
type RequestReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.ServiceRequest, error)
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.ServiceRequest, error)
}

// RequestWriter provides write operations on service requests. Transition is
// the only way to change a request's status: it is guarded by the expected
// current state so concurrent lifecycle steps cannot double-apply.
type RequestWriter interface {
	Create(ctx context.Context, params CreateRequestParams) (domain.ServiceRequest, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.State, params TransitionParams) (domain.ServiceRequest, error)
	SaveRecommendations(ctx context.Context, id uuid.UUID, recs []domain.Recommendation) error
}

// ProviderStore manages the providers attached to a request and the progress
// of the calls placed to them.
type ProviderStore interface {
	InsertProviders(ctx context.Context, requestID uuid.UUID, params []CreateProviderParams) ([]domain.Provider, error)
	ListProviders(ctx context.Context, requestID uuid.UUID) ([]domain.Provider, error)
	GetProvider(ctx context.Context, requestID, providerID uuid.UUID) (domain.Provider, error)
	MarkProviderQueued(ctx context.Context, requestID, providerID uuid.UUID) error
	BindProviderCall(ctx context.Context, requestID, providerID uuid.UUID, callID, status string) error
	UpdateCallStatusByCallID(ctx context.Context, callID, status string) (int, error)
	SetProviderRanks(ctx context.Context, requestID uuid.UUID, ranks map[uuid.UUID]int) error
}

// InteractionLogStore records the audit trail of a lifecycle run.
type InteractionLogStore interface {
	AppendLog(ctx context.Context, params AppendLogParams) error
	ListLog(ctx context.Context, requestID uuid.UUID) ([]domain.InteractionLogEntry, error)
}

// RequestsRepository is the complete persistence surface of the requests
// module, composed of the focused interfaces above.
type RequestsRepository interface {
	RequestReader
	RequestWriter
	ProviderStore
	InteractionLogStore
}

// Ensure Repository implements RequestsRepository.
var _ RequestsRepository = (*Repository)(nil)
