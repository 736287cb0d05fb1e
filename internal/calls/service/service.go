// Package service implements call result reconciliation: every completion
// notification, regardless of which backend produced it, funnels through
// Ingest so the cache, the database and downstream subscribers see one
// consistent record per call.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/calls/cache"
	"hireline_backend/internal/calls/domain"
	"hireline_backend/internal/calls/repository"
	"hireline_backend/internal/calls/transport"
	appevents "hireline_backend/internal/events"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
)

// Reconciler triggers completeness reconciliation for a cached call result.
type Reconciler interface {
	Reconcile(ctx context.Context, callID string) bool
}

// Service provides business logic for call results.
type Service struct {
	cache   *cache.Cache
	repo    repository.Repository
	fetcher Reconciler
	bus     events.Bus
	log     *logger.Logger
}

// New creates a new call result service.
func New(resultCache *cache.Cache, repo repository.Repository, fetcher Reconciler, bus events.Bus, log *logger.Logger) *Service {
	return &Service{cache: resultCache, repo: repo, fetcher: fetcher, bus: bus, log: log}
}

// Ingest reconciles one incoming call result. The result is merged into the
// cached record (never discarding data already received), announced on the
// bus, persisted best-effort when terminal, and handed to the enrichment
// fetcher to close any completeness gap. Returns the merged record.
func (s *Service) Ingest(ctx context.Context, res domain.CallResult) domain.CallResult {
	if strings.TrimSpace(res.CallID) == "" {
		s.log.Warn("dropping call result without call id", "status", res.Status)
		return res
	}
	res.Status = domain.NormalizeStatus(string(res.Status))
	if res.ReceivedAt.IsZero() {
		res.ReceivedAt = time.Now()
	}

	merged := s.cache.Upsert(res.CallID, func(r *domain.CallResult) {
		r.Merge(res)
	})

	s.bus.Publish(ctx, appevents.CallResultReceived{
		BaseEvent:    events.NewBaseEvent(),
		CallID:       merged.CallID,
		RequestID:    merged.RequestID,
		ProviderID:   merged.ProviderID,
		ProviderName: merged.ProviderName,
		Status:       string(merged.Status),
		Completeness: string(merged.Completeness),
	})

	if !domain.IsTerminalStatus(merged.Status) {
		s.log.Debug("call progress update", "callId", merged.CallID, "status", merged.Status)
		return merged
	}

	s.log.Info("call result received",
		"callId", merged.CallID,
		"status", merged.Status,
		"completeness", merged.Completeness,
		"hasTranscript", merged.HasUsableTranscript())

	if err := s.repo.UpsertResult(ctx, merged); err != nil {
		s.log.Error("failed to persist call result", "callId", merged.CallID, "error", err)
	}

	s.fetcher.Reconcile(ctx, merged.CallID)
	return merged
}

// RecordOutcome implements the dispatcher's result sink: the outcome goes
// through the regular reconciliation path and is additionally announced as a
// dispatch event.
func (s *Service) RecordOutcome(ctx context.Context, res domain.CallResult) {
	merged := s.Ingest(ctx, res)
	s.bus.Publish(ctx, appevents.CallDispatched{
		BaseEvent:       events.NewBaseEvent(),
		CallID:          merged.CallID,
		Phone:           merged.Phone,
		ExecutionMethod: string(merged.ExecutionMethod),
		Success:         !domain.IsFailedStatus(merged.Status),
		Reason:          merged.EndedReason,
	})
}

// HandleWebhook processes one provider webhook message. Non-outcome message
// types and messages without a call id are dropped; the webhook endpoint
// acknowledges them regardless so the provider does not retry.
func (s *Service) HandleWebhook(ctx context.Context, msg transport.WebhookMessage) bool {
	if !msg.IsCallOutcome() {
		s.log.Debug("ignoring webhook message", "type", msg.Type)
		return false
	}
	if strings.TrimSpace(msg.Call.ID) == "" {
		s.log.Warn("webhook message missing call id", "type", msg.Type)
		return false
	}
	s.Ingest(ctx, msg.ToResult())
	return true
}

// Lookup returns the reconciled record for one call, preferring the cache and
// falling back to the database once the cache entry has expired.
func (s *Service) Lookup(ctx context.Context, callID string) (domain.CallResult, error) {
	if res, ok := s.cache.Get(callID); ok {
		return res, nil
	}
	return s.repo.GetResult(ctx, callID)
}

// GetResult retrieves one call result for the API.
func (s *Service) GetResult(ctx context.Context, callID string) (transport.CallResultResponse, error) {
	res, err := s.Lookup(ctx, callID)
	if err != nil {
		return transport.CallResultResponse{}, err
	}
	return transport.NewCallResultResponse(res), nil
}

// ResultsForRequest returns all call results recorded for a service request,
// enriched with any fresher data still held in the cache.
func (s *Service) ResultsForRequest(ctx context.Context, requestID uuid.UUID) ([]domain.CallResult, error) {
	rows, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		cached, ok := s.cache.Get(rows[i].CallID)
		if !ok {
			continue
		}
		rows[i].Merge(cached)
		if cached.Completeness == domain.CompletenessComplete {
			rows[i].Completeness = cached.Completeness
		}
	}
	return rows, nil
}

// CacheStats reports the current shape of the result cache.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// DeleteCacheEntry evicts one call result from the cache. The persisted
// record is untouched.
func (s *Service) DeleteCacheEntry(callID string) bool {
	deleted := s.cache.Delete(callID)
	if deleted {
		s.log.Info("cache entry evicted", "callId", callID)
	}
	return deleted
}
