package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	appevents "hireline_backend/internal/events"
	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/requests/repository"
	"hireline_backend/platform/apperr"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
)

const (
	reaperInterval   = time.Minute
	reaperBatchSize  = 50
	staleOutcome     = "request timed out"
	defaultStaleMark = 2 * time.Hour
)

// RequestStore is the slice of the requests repository the reaper uses.
type RequestStore interface {
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.ServiceRequest, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.State, params repository.TransitionParams) (domain.ServiceRequest, error)
	AppendLog(ctx context.Context, params repository.AppendLogParams) error
}

// StaleReaper fails requests that have not moved within the configured
// window. A crashed orchestration leaves its request stranded mid-lifecycle;
// the reaper turns that into an honest terminal state, so callers and
// notifications see the failure instead of a request that never settles.
type StaleReaper struct {
	store  RequestStore
	bus    events.Bus
	cutoff time.Duration
	log    *logger.Logger
}

func NewStaleReaper(store RequestStore, bus events.Bus, cutoff time.Duration, log *logger.Logger) *StaleReaper {
	if cutoff <= 0 {
		cutoff = defaultStaleMark
	}
	return &StaleReaper{store: store, bus: bus, cutoff: cutoff, log: log}
}

// Run sweeps immediately and then once per minute until the context ends.
func (r *StaleReaper) Run(ctx context.Context) {
	r.Sweep(ctx)

	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep fails one batch of stale requests, oldest first.
func (r *StaleReaper) Sweep(ctx context.Context) {
	stale, err := r.store.ListStale(ctx, time.Now().Add(-r.cutoff), reaperBatchSize)
	if err != nil {
		r.log.Warn("stale request scan failed", "error", err)
		return
	}

	for _, req := range stale {
		r.reap(ctx, req)
	}
}

// reap moves one stuck request to failed. The reaper fails any non-terminal
// state, including states the lifecycle graph has no failed edge for; the
// transition guard on the observed state keeps it from racing a still-live
// orchestration.
func (r *StaleReaper) reap(ctx context.Context, req domain.ServiceRequest) {
	outcome := staleOutcome
	updated, err := r.store.Transition(ctx, req.ID, req.Status, domain.StateFailed, repository.TransitionParams{
		Outcome: &outcome,
	})
	if err != nil {
		// Moved or gone since the scan: leave it to whoever moved it.
		if apperr.Is(err, apperr.KindConflict) || apperr.Is(err, apperr.KindNotFound) {
			return
		}
		r.log.Error("failed to reap stale request", "requestId", req.ID, "error", err)
		return
	}

	r.log.Info("stale request failed", "requestId", req.ID, "stuckIn", string(req.Status))

	if err := r.store.AppendLog(ctx, repository.AppendLogParams{
		RequestID: req.ID,
		Step:      "state:" + string(domain.StateFailed),
		Detail:    staleOutcome,
		Status:    domain.LogError,
	}); err != nil {
		r.log.Warn("failed to record reap in interaction log", "requestId", req.ID, "error", err)
	}

	r.bus.Publish(ctx, appevents.RequestStateChanged{
		BaseEvent: events.NewBaseEvent(),
		RequestID: req.ID,
		FromState: string(req.Status),
		ToState:   string(domain.StateFailed),
		Detail:    staleOutcome,
	})
	r.bus.Publish(ctx, appevents.RequestFailed{
		BaseEvent:   events.NewBaseEvent(),
		RequestID:   req.ID,
		ServiceType: updated.ServiceType,
		Outcome:     staleOutcome,
		NotifyEmail: updated.NotifyEmail,
	})
}

// Compile-time check.
var _ RequestStore = (*repository.Repository)(nil)
