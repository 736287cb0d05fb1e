package adapters

import (
	"context"

	calldomain "hireline_backend/internal/calls/domain"
	"hireline_backend/internal/calls/dispatch"
	requestsrepo "hireline_backend/internal/requests/repository"
	"hireline_backend/platform/logger"
)

// CallProgressMarker adapts the requests provider store as the dispatcher's
// queued-marking hook, so provider rows show progress before the first call
// outcome lands.
type CallProgressMarker struct {
	store requestsrepo.ProviderStore
	log   *logger.Logger
}

// NewCallProgressMarker creates a new call progress marker adapter.
func NewCallProgressMarker(store requestsrepo.ProviderStore, log *logger.Logger) *CallProgressMarker {
	return &CallProgressMarker{store: store, log: log}
}

// MarkQueued flags every accepted item's provider row as queued. Items that
// were not placed on behalf of a service request carry no provider reference
// and are skipped.
func (a *CallProgressMarker) MarkQueued(ctx context.Context, reqs []calldomain.CallRequest) {
	for _, req := range reqs {
		if req.RequestID == nil || req.ProviderID == nil {
			continue
		}
		if err := a.store.MarkProviderQueued(ctx, *req.RequestID, *req.ProviderID); err != nil {
			a.log.Error("failed to mark provider queued",
				"requestId", *req.RequestID,
				"providerId", *req.ProviderID,
				"error", err,
			)
		}
	}
}

// Compile-time check.
var _ dispatch.ProgressMarker = (*CallProgressMarker)(nil)
