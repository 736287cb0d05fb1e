// Package enrich reconciles partial call results with the provider's
// authoritative record. Completion notifications often arrive before
// transcription and analysis have finished; the fetcher retries the provider
// API a bounded number of times until the record is complete.
package enrich

import (
	"context"
	"time"

	"hireline_backend/internal/calls/cache"
	"hireline_backend/internal/calls/domain"
	"hireline_backend/internal/events"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/tasks"
)

// RecordSource fetches the authoritative call record from the provider.
type RecordSource interface {
	GetCall(ctx context.Context, callID string) (domain.CallResult, error)
}

// ResultStore persists reconciled results. Persistence failures are logged,
// never propagated: the cache remains the read path for live requests.
type ResultStore interface {
	UpsertResult(ctx context.Context, res domain.CallResult) error
}

// Fetcher drives the partial -> fetching -> complete|fetch_failed
// reconciliation for cached call results. At most one enrichment task runs
// per call ID.
type Fetcher struct {
	cache       *cache.Cache
	source      RecordSource
	store       ResultStore
	bus         events.Bus
	sup         *tasks.Supervisor
	log         *logger.Logger
	maxAttempts int
	delays      []time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetcher(cfg config.EnrichmentConfig, resultCache *cache.Cache, source RecordSource, store ResultStore, bus events.Bus, sup *tasks.Supervisor, log *logger.Logger) *Fetcher {
	maxAttempts := cfg.GetEnrichMaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delays := cfg.GetEnrichRetryDelays()
	if len(delays) == 0 {
		delays = []time.Duration{3 * time.Second, 5 * time.Second, 8 * time.Second}
	}

	return &Fetcher{
		cache:       resultCache,
		source:      source,
		store:       store,
		bus:         bus,
		sup:         sup,
		log:         log,
		maxAttempts: maxAttempts,
		delays:      delays,
		sleep:       sleepCtx,
	}
}

// Reconcile inspects the cached result for callID and either finalizes it
// immediately (already complete) or starts a background enrichment task.
// Duplicate triggers for a call already being enriched are ignored. It
// reports whether a background task was started.
func (f *Fetcher) Reconcile(ctx context.Context, callID string) bool {
	res, ok := f.cache.Get(callID)
	if !ok {
		return false
	}
	if res.Completeness == domain.CompletenessComplete || res.Completeness == domain.CompletenessFetchFailed {
		return false
	}
	if res.IsComplete() {
		f.finalize(ctx, callID, domain.CompletenessComplete)
		return false
	}
	if f.source == nil {
		// No provider API to enrich from; what the notification carried is
		// all we will ever have.
		f.finalize(ctx, callID, domain.CompletenessFetchFailed)
		return false
	}

	_, started := f.sup.TryGo(ctx, "enrich:"+callID, func(taskCtx context.Context) error {
		// Mark fetching inside the task so the marker can never land after
		// the task's own terminal marker.
		f.cache.Update(callID, func(r *domain.CallResult) {
			r.SetCompleteness(domain.CompletenessFetching)
		})
		f.run(taskCtx, callID)
		return nil
	})
	if started {
		f.log.WithCallID(callID).Info("enrichment started", "status", res.Status)
	}
	return started
}

func (f *Fetcher) run(ctx context.Context, callID string) {
	log := f.log.WithCallID(callID)

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if err := f.sleep(ctx, f.delayFor(attempt)); err != nil {
			log.Warn("enrichment aborted", "attempt", attempt, "error", err)
			return
		}

		fetched, err := f.source.GetCall(ctx, callID)
		if err != nil {
			log.Warn("enrichment fetch failed", "attempt", attempt, "error", err)
			continue
		}

		merged, ok := f.cache.Update(callID, func(r *domain.CallResult) {
			r.Merge(fetched)
		})
		if !ok {
			// The cache entry expired mid-enrichment. Seed a fresh entry
			// from the fetched record so the data is not lost.
			merged = f.cache.Upsert(callID, func(r *domain.CallResult) {
				r.Merge(fetched)
				r.SetCompleteness(domain.CompletenessFetching)
			})
			log.Warn("cache entry expired during enrichment, reseeded", "attempt", attempt)
		}

		if merged.IsComplete() {
			f.finalize(ctx, callID, domain.CompletenessComplete)
			log.Info("enrichment complete", "attempts", attempt)
			return
		}
		log.Info("record still incomplete", "attempt", attempt, "status", merged.Status)
	}

	f.finalize(ctx, callID, domain.CompletenessFetchFailed)
	log.Warn("enrichment gave up, keeping partial record", "attempts", f.maxAttempts)
}

// delayFor returns the wait before the given 1-based attempt; the last
// configured delay repeats when there are more attempts than delays.
func (f *Fetcher) delayFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx >= len(f.delays) {
		idx = len(f.delays) - 1
	}
	return f.delays[idx]
}

// finalize stamps the terminal completeness marker, persists the record, and
// announces that the result will not get any richer. A record that already
// reached a final marker is left alone.
func (f *Fetcher) finalize(ctx context.Context, callID string, marker domain.Completeness) {
	now := time.Now()
	already := false
	res, ok := f.cache.Update(callID, func(r *domain.CallResult) {
		if r.Completeness == domain.CompletenessComplete || r.Completeness == domain.CompletenessFetchFailed {
			already = true
			return
		}
		if r.SetCompleteness(marker) == domain.CompletenessComplete && r.EnrichedAt == nil {
			r.EnrichedAt = &now
		}
	})
	if !ok || already {
		return
	}

	if f.store != nil {
		if err := f.store.UpsertResult(ctx, res); err != nil {
			f.log.WithCallID(callID).Error("failed to persist call result", "error", err)
		}
	}

	f.bus.Publish(ctx, events.CallResultCompleted{
		BaseEvent:     events.NewBaseEvent(),
		CallID:        callID,
		RequestID:     res.RequestID,
		Status:        string(res.Status),
		Completeness:  string(res.Completeness),
		EndedAt:       res.ReceivedAt,
		HasTranscript: res.HasUsableTranscript(),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
